package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

// ErrSessionForbidden 表示会话不属于当前用户。
var ErrSessionForbidden = errors.New("session belongs to another user")

// OutcomeScheduler 为会话歌曲安排生成终态，mock 模式下由模拟引擎实现。
type OutcomeScheduler interface {
	ScheduleOutcome(key string, apply func(success bool, duration int, failMsg string))
}

// SessionService 管理创作会话：CRUD 与消息投递。
// sendMessage 的返回是增量（messageUpdates / songUpdates），
// 客户端把增量合并进本地会话状态；歌曲由生成引擎异步推进到终态。
type SessionService struct {
	sessionRepo SessionRepository
	engine      OutcomeScheduler
}

// NewSessionService 创建会话服务。engine 可为 nil（歌曲停留在 GENERATING）。
func NewSessionService(sessionRepo SessionRepository, engine OutcomeScheduler) *SessionService {
	return &SessionService{sessionRepo: sessionRepo, engine: engine}
}

// Create 创建会话。标题为空时取默认值。
func (s *SessionService) Create(ctx context.Context, userID int64, title string) (*ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled Session"
	}
	now := time.Now()
	session := &ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Messages:  []ChatMessage{},
		Songs:     []Song{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	logger.LegacyPrintf("service.session", "[Session] 创建会话 id=%s user=%d", session.ID, userID)
	return session, nil
}

// Get 查询会话，校验归属。
func (s *SessionService) Get(ctx context.Context, userID int64, sessionID string) (*ChatSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionForbidden
	}
	return session, nil
}

// List 查询用户会话列表，最近更新在前。
func (s *SessionService) List(ctx context.Context, userID int64) ([]*ChatSession, error) {
	return s.sessionRepo.ListByUser(ctx, userID)
}

// Rename 修改会话标题。
func (s *SessionService) Rename(ctx context.Context, userID int64, sessionID, title string) (*ChatSession, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	session.Title = strings.TrimSpace(title)
	session.UpdatedAt = time.Now()
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete 删除会话。
func (s *SessionService) Delete(ctx context.Context, userID int64, sessionID string) error {
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.sessionRepo.Delete(ctx, sessionID)
}

// SendMessage 投递用户消息：追加用户消息与助手确认，并创建一条
// GENERATING 状态的歌曲条目，返回本次新增的增量。
func (s *SessionService) SendMessage(ctx context.Context, userID int64, sessionID, content string) (*SessionUpdate, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("message content is empty")
	}
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	userMsg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      MessageRoleUser,
		Content:   content,
		CreatedAt: now,
	}
	assistantMsg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      MessageRoleAssistant,
		Content:   "Got it, generating your track now.",
		CreatedAt: now,
	}
	song := Song{
		ID:        uuid.NewString(),
		Title:     songTitleFromPrompt(content),
		Status:    SongStatusGenerating,
		CreatedAt: now,
	}

	session.Messages = append(session.Messages, userMsg, assistantMsg)
	session.Songs = append(session.Songs, song)
	session.UpdatedAt = now
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if s.engine != nil {
		sessionID := session.ID
		songID := song.ID
		s.engine.ScheduleOutcome("song:"+songID, func(success bool, duration int, failMsg string) {
			s.applySongOutcome(context.Background(), sessionID, songID, success, duration, failMsg)
		})
	}

	return &SessionUpdate{
		MessageUpdates: []ChatMessage{userMsg, assistantMsg},
		SongUpdates:    []Song{song},
	}, nil
}

// applySongOutcome 生成引擎回写歌曲终态。会话可能已被删除，吞掉未找到错误。
func (s *SessionService) applySongOutcome(ctx context.Context, sessionID, songID string, success bool, duration int, failMsg string) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return
	}
	for i := range session.Songs {
		if session.Songs[i].ID != songID {
			continue
		}
		if success {
			session.Songs[i].Status = SongStatusCompleted
			session.Songs[i].AudioURL = fmt.Sprintf("/api/download/music-%s.mp3", songID)
			session.Songs[i].Duration = duration
		} else {
			session.Songs[i].Status = SongStatusFailed
		}
		session.UpdatedAt = time.Now()
		if err := s.sessionRepo.Update(ctx, session); err != nil {
			logger.LegacyPrintf("service.session", "[Session] 回写歌曲终态失败 session=%s song=%s err=%v", sessionID, songID, err)
		}
		return
	}
}

// songTitleFromPrompt 从提示词截取歌曲标题。按 rune 截断，避免把多字节字符切半。
func songTitleFromPrompt(prompt string) string {
	const maxTitle = 40
	title := strings.TrimSpace(prompt)
	if utf8.RuneCountInString(title) > maxTitle {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:maxTitle])) + "…"
	}
	return title
}

//go:build unit

package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

// ==================== Stub: SessionRepository ====================

var _ SessionRepository = (*stubSessionRepo)(nil)

type stubSessionRepo struct {
	sessions map[string]*ChatSession
	order    []string
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*ChatSession)}
}

func (r *stubSessionRepo) Create(_ context.Context, session *ChatSession) error {
	r.sessions[session.ID] = session
	r.order = append([]string{session.ID}, r.order...)
	return nil
}

func (r *stubSessionRepo) GetByID(_ context.Context, id string) (*ChatSession, error) {
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

func (r *stubSessionRepo) Update(_ context.Context, session *ChatSession) error {
	if _, ok := r.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *stubSessionRepo) Delete(_ context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

func (r *stubSessionRepo) ListByUser(_ context.Context, userID int64) ([]*ChatSession, error) {
	var out []*ChatSession
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok && s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

// ==================== Stub: OutcomeScheduler ====================

// immediateEngine 同步触发终态回调，省去测试等待。
type immediateEngine struct {
	success  bool
	duration int
	failMsg  string
	keys     []string
}

func (e *immediateEngine) ScheduleOutcome(key string, apply func(success bool, duration int, failMsg string)) {
	e.keys = append(e.keys, key)
	apply(e.success, e.duration, e.failMsg)
}

// ==================== Tests ====================

func TestSessionService_CreateDefaultTitle(t *testing.T) {
	svc := NewSessionService(newStubSessionRepo(), nil)

	session, err := svc.Create(context.Background(), 1, "   ")
	require.NoError(t, err)
	require.Equal(t, "Untitled Session", session.Title)
	require.NotEmpty(t, session.ID)
	require.Empty(t, session.Messages)
	require.Empty(t, session.Songs)
}

func TestSessionService_SendMessageAppendsAndSchedules(t *testing.T) {
	repo := newStubSessionRepo()
	engine := &immediateEngine{success: true, duration: 30}
	svc := NewSessionService(repo, engine)
	ctx := context.Background()

	session, err := svc.Create(ctx, 1, "Demo")
	require.NoError(t, err)

	update, err := svc.SendMessage(ctx, 1, session.ID, "epic orchestral trailer music")
	require.NoError(t, err)
	require.Len(t, update.MessageUpdates, 2)
	require.Equal(t, MessageRoleUser, update.MessageUpdates[0].Role)
	require.Equal(t, MessageRoleAssistant, update.MessageUpdates[1].Role)
	require.Len(t, update.SongUpdates, 1)
	require.Equal(t, "epic orchestral trailer music", update.SongUpdates[0].Title)
	require.Equal(t, []string{"song:" + update.SongUpdates[0].ID}, engine.keys)

	// 引擎同步回写后歌曲已是终态
	stored, err := svc.Get(ctx, 1, session.ID)
	require.NoError(t, err)
	require.Len(t, stored.Songs, 1)
	require.Equal(t, SongStatusCompleted, stored.Songs[0].Status)
	require.Equal(t, 30, stored.Songs[0].Duration)
	require.Equal(t, "/api/download/music-"+stored.Songs[0].ID+".mp3", stored.Songs[0].AudioURL)
}

func TestSessionService_SendMessageFailureOutcome(t *testing.T) {
	repo := newStubSessionRepo()
	engine := &immediateEngine{success: false, failMsg: "Processing timeout occurred"}
	svc := NewSessionService(repo, engine)
	ctx := context.Background()

	session, err := svc.Create(ctx, 1, "Demo")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, 1, session.ID, "lofi beats")
	require.NoError(t, err)

	stored, err := svc.Get(ctx, 1, session.ID)
	require.NoError(t, err)
	require.Equal(t, SongStatusFailed, stored.Songs[0].Status)
	require.Empty(t, stored.Songs[0].AudioURL)
}

func TestSessionService_SongTitleTruncated(t *testing.T) {
	long := "an extremely long and detailed description of the soundtrack I want"
	title := songTitleFromPrompt(long)
	require.LessOrEqual(t, len([]rune(title)), 41)
	require.Contains(t, title, "…")

	// 多字节提示词按 rune 截断，不能把字符切半
	wide := strings.Repeat("海上落日航拍", 10)
	title = songTitleFromPrompt(wide)
	require.True(t, utf8.ValidString(title))
	require.Equal(t, 41, len([]rune(title)))
	require.Equal(t, []rune(wide)[:40], []rune(title)[:40])

	short := "  chill piano  "
	require.Equal(t, "chill piano", songTitleFromPrompt(short))
}

func TestSessionService_OwnershipAndMissing(t *testing.T) {
	repo := newStubSessionRepo()
	svc := NewSessionService(repo, nil)
	ctx := context.Background()

	session, err := svc.Create(ctx, 1, "Demo")
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, session.ID)
	require.ErrorIs(t, err, ErrSessionForbidden)
	require.ErrorIs(t, svc.Delete(ctx, 2, session.ID), ErrSessionForbidden)
	_, err = svc.Get(ctx, 1, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_DeletedSessionOutcomeIgnored(t *testing.T) {
	repo := newStubSessionRepo()
	var lateApply func(bool, int, string)
	engine := captureEngine{apply: &lateApply}
	svc := NewSessionService(repo, engine)
	ctx := context.Background()

	session, err := svc.Create(ctx, 1, "Demo")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, 1, session.ID, "jazz")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1, session.ID))

	// 会话删除后引擎回调不得 panic，也不得复活会话
	require.NotNil(t, lateApply)
	lateApply(true, 20, "")
	_, err = svc.Get(ctx, 1, session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

type captureEngine struct {
	apply *func(bool, int, string)
}

func (e captureEngine) ScheduleOutcome(_ string, apply func(success bool, duration int, failMsg string)) {
	*e.apply = apply
}

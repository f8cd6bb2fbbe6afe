package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/Wei-Shaw/muse2api/internal/service"
)

// 会话存储键定义
//
// - session:{sessionID}            会话整体的 JSON blob
// - user_sessions:{userID}         该用户的会话 ID 集合（ZSET，score 为更新时间戳）
//
// 两个键同生共死：写入用 TxPipeline 保证 blob 与索引一致，
// TTL 到期后会话自然淘汰，索引里的悬挂 ID 在 ListByUser 时剔除。
const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

// RedisSessionRepo 会话的 Redis 存储实现，序列化使用 sonic。
type RedisSessionRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionRepo 创建会话存储。
func NewRedisSessionRepo(rdb *redis.Client, ttl time.Duration) *RedisSessionRepo {
	return &RedisSessionRepo{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func userSessionsKey(userID int64) string {
	return userSessionKeyPrefix + strconv.FormatInt(userID, 10)
}

func (r *RedisSessionRepo) save(ctx context.Context, session *service.ChatSession) error {
	blob, err := sonic.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), blob, r.ttl)
	pipe.ZAdd(ctx, userSessionsKey(session.UserID), redis.Z{
		Score:  float64(session.UpdatedAt.UnixMilli()),
		Member: session.ID,
	})
	pipe.Expire(ctx, userSessionsKey(session.UserID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Create 写入新会话。
func (r *RedisSessionRepo) Create(ctx context.Context, session *service.ChatSession) error {
	return r.save(ctx, session)
}

// GetByID 读取会话。
func (r *RedisSessionRepo) GetByID(ctx context.Context, id string) (*service.ChatSession, error) {
	blob, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, service.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session service.ChatSession
	if err := sonic.Unmarshal(blob, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Update 整体覆盖并刷新 TTL。
func (r *RedisSessionRepo) Update(ctx context.Context, session *service.ChatSession) error {
	return r.save(ctx, session)
}

// Delete 删除会话及索引项。
func (r *RedisSessionRepo) Delete(ctx context.Context, id string) error {
	session, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.ZRem(ctx, userSessionsKey(session.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListByUser 返回用户会话，按更新时间倒序。过期淘汰留下的悬挂索引顺手清理。
func (r *RedisSessionRepo) ListByUser(ctx context.Context, userID int64) ([]*service.ChatSession, error) {
	ids, err := r.rdb.ZRevRange(ctx, userSessionsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*service.ChatSession, 0, len(ids))
	var dangling []any
	for _, id := range ids {
		session, err := r.GetByID(ctx, id)
		if errors.Is(err, service.ErrSessionNotFound) {
			dangling = append(dangling, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if len(dangling) > 0 {
		_ = r.rdb.ZRem(ctx, userSessionsKey(userID), dangling...).Err()
	}
	return out, nil
}

package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/cache"
)

var (
	ErrRoomFull = errors.New("ROOM_FULL")
)

type Config struct {
	TTL                 time.Duration
	MaxMembers          int
	MessageHistoryLimit int
}

type Service struct {
	store cache.Store
	repo  MembershipRepo
	clk   clock.Clock
	cfg   Config
}

func NewService(store cache.Store, repo MembershipRepo, clk clock.Clock, cfg Config) *Service {
	return &Service{store: store, repo: repo, clk: clk, cfg: cfg}
}

// AddMember：把 socket 注册进房间名册，刷新房间 TTL，返回最新成员数。
// 满员时返回 ErrRoomFull（重复加入同一 socket 不算新增，不触发满员判断）。
func (s *Service) AddMember(ctx context.Context, roomID string, m Member) (int64, error) {
	key := cache.RoomMembersKey(roomID)

	if s.cfg.MaxMembers > 0 {
		n, err := s.store.HLen(ctx, key)
		if err != nil {
			return 0, err
		}
		if n >= int64(s.cfg.MaxMembers) {
			if _, err := s.store.HGet(ctx, key, m.SocketID); errors.Is(err, cache.ErrNotFound) {
				return n, ErrRoomFull
			} else if err != nil {
				return 0, err
			}
		}
	}

	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.clk.Now()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return 0, err
	}
	if err := s.store.HSet(ctx, key, m.SocketID, string(b)); err != nil {
		return 0, err
	}
	if err := s.touch(ctx, roomID); err != nil {
		return 0, err
	}
	return s.store.HLen(ctx, key)
}

// RemoveMember：把 socket 从名册移除；名册清空时主动清理房间派生的所有 key，
// 不等 TTL 自然过期（空房间不应该留尸体数据）。
func (s *Service) RemoveMember(ctx context.Context, roomID, socketID string) (int64, error) {
	key := cache.RoomMembersKey(roomID)
	if err := s.store.HDel(ctx, key, socketID); err != nil {
		return 0, err
	}
	n, err := s.store.HLen(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		if err := s.PurgeRoom(ctx, roomID); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// PurgeRoom：删除房间名册、房间状态、消息环和同名文档状态/整篇锁。
// 元素级锁无法在不扫描键空间的前提下枚举，留给自身 TTL 过期。
func (s *Service) PurgeRoom(ctx context.Context, roomID string) error {
	return s.store.Del(ctx,
		cache.RoomMembersKey(roomID),
		cache.RoomStateKey(roomID),
		cache.RoomMessagesKey(roomID),
		cache.DocStateKey(roomID),
		cache.LockKey(roomID, ""),
	)
}

func (s *Service) Members(ctx context.Context, roomID string) ([]Member, error) {
	raw, err := s.store.HGetAll(ctx, cache.RoomMembersKey(roomID))
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(raw))
	for _, v := range raw {
		var m Member
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func (s *Service) MemberCount(ctx context.Context, roomID string) (int64, error) {
	return s.store.HLen(ctx, cache.RoomMembersKey(roomID))
}

// touch：活跃即续期（房间相关 key 一起刷）
func (s *Service) touch(ctx context.Context, roomID string) error {
	if s.cfg.TTL <= 0 {
		return nil
	}
	for _, key := range []string{
		cache.RoomMembersKey(roomID),
		cache.RoomStateKey(roomID),
		cache.RoomMessagesKey(roomID),
	} {
		if err := s.store.Expire(ctx, key, s.cfg.TTL); err != nil {
			return err
		}
	}
	return nil
}

// AddMessage：消息环（最新的在头部），LPUSH 后立刻 LTRIM 到上限，
// 超过容量的最老消息被静默丢弃——这是有界内存策略，不是丢数据的 bug。
func (s *Service) AddMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = s.clk.Now()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	key := cache.RoomMessagesKey(msg.RoomID)
	if err := s.store.LPush(ctx, key, string(b)); err != nil {
		return Message{}, err
	}
	if s.cfg.MessageHistoryLimit > 0 {
		if err := s.store.LTrim(ctx, key, 0, int64(s.cfg.MessageHistoryLimit-1)); err != nil {
			return Message{}, err
		}
	}
	if err := s.touch(ctx, msg.RoomID); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// GetMessages：按最新优先返回，limit<=0 时用配置上限。
func (s *Service) GetMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > s.cfg.MessageHistoryLimit {
		limit = s.cfg.MessageHistoryLimit
	}
	raw, err := s.store.LRange(ctx, cache.RoomMessagesKey(roomID), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(raw))
	for _, v := range raw {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// GetRoomState：房间被清理或尚未写入时返回空的默认状态，而不是报错。
func (s *Service) GetRoomState(ctx context.Context, roomID string) (State, error) {
	raw, err := s.store.Get(ctx, cache.RoomStateKey(roomID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return State{State: json.RawMessage("{}")}, nil
		}
		return State{}, err
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// UpdateRoomState：读-改-写，Version 恰好 +1。
func (s *Service) UpdateRoomState(ctx context.Context, roomID string, blob json.RawMessage) (State, error) {
	cur, err := s.GetRoomState(ctx, roomID)
	if err != nil {
		return State{}, err
	}
	next := State{
		State:        blob,
		Version:      cur.Version + 1,
		LastModified: s.clk.Now(),
	}
	b, err := json.Marshal(next)
	if err != nil {
		return State{}, err
	}
	if err := s.store.Set(ctx, cache.RoomStateKey(roomID), string(b), s.cfg.TTL); err != nil {
		return State{}, err
	}
	return next, nil
}

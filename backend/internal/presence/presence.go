package presence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/cache"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Record 落在共享存储里（presence:user:{userID}，带 TTL）。
// 没按时心跳的用户即使记录还没被逐出，也按 offline 对待。
type Record struct {
	UserID        uint64            `json:"userId"`
	Status        Status            `json:"status"`
	LastHeartbeat time.Time         `json:"lastHeartbeat"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type Config struct {
	TTL                time.Duration
	HeartbeatInterval  time.Duration
	OfflineGracePeriod time.Duration
}

type Service struct {
	store cache.Store
	clk   clock.Clock
	cfg   Config
}

func NewService(store cache.Store, clk clock.Clock, cfg Config) *Service {
	return &Service{store: store, clk: clk, cfg: cfg}
}

// UpdatePresence：幂等 upsert，每次都刷新 TTL（心跳即续期）。
// 存储不可达时错误原样上抛，绝不能静默降级成 offline。
func (s *Service) UpdatePresence(ctx context.Context, userID uint64, status Status, metadata map[string]string) error {
	rec := Record{
		UserID:        userID,
		Status:        status,
		LastHeartbeat: s.clk.Now(),
		Metadata:      metadata,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, cache.PresenceKey(userID), string(b), s.cfg.TTL)
}

// GetStatus：记录不存在 → offline；心跳超过宽限期 → offline（即使记录还在）。
func (s *Service) GetStatus(ctx context.Context, userID uint64) (Status, error) {
	raw, err := s.store.Get(ctx, cache.PresenceKey(userID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return StatusOffline, nil
		}
		return "", err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return "", err
	}
	if s.clk.Now().Sub(rec.LastHeartbeat) > s.cfg.OfflineGracePeriod {
		return StatusOffline, nil
	}
	return rec.Status, nil
}

// GetRecord：拿完整记录（含 metadata），不存在时返回 ok=false。
func (s *Service) GetRecord(ctx context.Context, userID uint64) (Record, bool, error) {
	raw, err := s.store.Get(ctx, cache.PresenceKey(userID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/cache"
)

// Lock：文档或文档元素上的短时排他令牌。
// ElementID 为空表示整篇文档的锁。纯应用层约定（advisory），
// 只用来控制 UI 上的独占操作，不参与 OT 排序。
type Lock struct {
	LockID      string    `json:"lockId"`
	UserID      uint64    `json:"userId"`
	DisplayName string    `json:"displayName"`
	ElementID   string    `json:"elementId,omitempty"`
	AcquiredAt  time.Time `json:"acquiredAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AcquireResult：Acquired=false 时 Holder 是当前持有者（给 UI 显示“xxx 正在编辑”）。
type AcquireResult struct {
	Acquired bool `json:"acquired"`
	Holder   Lock `json:"holder"`
}

type LockManager struct {
	store      cache.Store
	clk        clock.Clock
	defaultTTL time.Duration
	events     *EventDispatcher
}

func NewLockManager(store cache.Store, clk clock.Clock, defaultTTL time.Duration, events *EventDispatcher) *LockManager {
	return &LockManager{store: store, clk: clk, defaultTTL: defaultTTL, events: events}
}

// Acquire：SetNX + TTL，一把 (docID, elementID) 同一时刻最多一个未过期的锁。
// 已有未过期锁时返回 acquired=false 和持有者；
// 残留的过期记录（内存实现惰性过期边界）先清掉再抢一次。
func (lm *LockManager) Acquire(ctx context.Context, docID, elementID string, userID uint64, displayName string, duration time.Duration) (AcquireResult, error) {
	if duration <= 0 {
		duration = lm.defaultTTL
	}
	now := lm.clk.Now()
	l := Lock{
		LockID:      uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		ElementID:   elementID,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(duration),
	}
	b, err := json.Marshal(l)
	if err != nil {
		return AcquireResult{}, err
	}

	key := cache.LockKey(docID, elementID)
	ok, err := lm.store.SetNX(ctx, key, string(b), duration)
	if err != nil {
		return AcquireResult{}, err
	}
	if !ok {
		holder, found, err := lm.get(ctx, key)
		if err != nil {
			return AcquireResult{}, err
		}
		if found && now.Before(holder.ExpiresAt) {
			return AcquireResult{Acquired: false, Holder: holder}, nil
		}
		// 记录已逻辑过期但还没被逐出：清掉重试一次
		if err := lm.store.Del(ctx, key); err != nil {
			return AcquireResult{}, err
		}
		ok, err = lm.store.SetNX(ctx, key, string(b), duration)
		if err != nil {
			return AcquireResult{}, err
		}
		if !ok {
			// 别的实例刚抢到
			holder, _, err := lm.get(ctx, key)
			if err != nil {
				return AcquireResult{}, err
			}
			return AcquireResult{Acquired: false, Holder: holder}, nil
		}
	}

	if lm.events != nil {
		lm.events.TryEnqueue(CollabEvent{
			EventType: EventLockAcquired,
			DocID:     docID,
			UserID:    userID,
			Lock:      &l,
			At:        now,
		})
	}
	return AcquireResult{Acquired: true, Holder: l}, nil
}

// Release：幂等释放。
// 锁已不存在/已过期 → 成功；lockID+userID 不匹配 → 拒绝并记一条完整性告警
// （迟到或伪造的释放不能偷走别人的锁）。
func (lm *LockManager) Release(ctx context.Context, docID, elementID, lockID string, userID uint64) (bool, error) {
	key := cache.LockKey(docID, elementID)
	holder, found, err := lm.get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	now := lm.clk.Now()
	if !now.Before(holder.ExpiresAt) {
		// 已过期，等价于不存在
		return true, nil
	}
	if holder.LockID != lockID || holder.UserID != userID {
		log.Printf("lock release rejected: ownership mismatch doc=%s elem=%s caller=%d holder=%d",
			docID, elementID, userID, holder.UserID)
		return false, nil
	}
	if err := lm.store.Del(ctx, key); err != nil {
		return false, err
	}
	if lm.events != nil {
		lm.events.TryEnqueue(CollabEvent{
			EventType: EventLockReleased,
			DocID:     docID,
			UserID:    userID,
			Lock:      &holder,
			At:        now,
		})
	}
	return true, nil
}

// Get：查当前持有者（过期视作不存在）。
func (lm *LockManager) Get(ctx context.Context, docID, elementID string) (Lock, bool, error) {
	holder, found, err := lm.get(ctx, cache.LockKey(docID, elementID))
	if err != nil || !found {
		return Lock{}, false, err
	}
	if !lm.clk.Now().Before(holder.ExpiresAt) {
		return Lock{}, false, nil
	}
	return holder, true, nil
}

func (lm *LockManager) get(ctx context.Context, key string) (Lock, bool, error) {
	raw, err := lm.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return Lock{}, false, nil
		}
		return Lock{}, false, err
	}
	var l Lock
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return Lock{}, false, err
	}
	return l, true, nil
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// 内存实现：单进程内的 Store，TTL 语义与 redis 对齐（惰性过期）。
// 用于单元测试；时间源注入 clock.Clock，测试里用 clock.NewMock() 拨表。
type memoryStore struct {
	clk clock.Clock

	mu      sync.Mutex
	strings map[string]memEntry
	hashes  map[string]map[string]string
	lists   map[string][]string
	// key -> 过期时刻（零值表示不过期）；hash/list 的 TTL 也记在这里
	expiry map[string]time.Time
}

type memEntry struct {
	value string
}

func NewMemoryStore(clk clock.Clock) Store {
	return &memoryStore{
		clk:     clk,
		strings: make(map[string]memEntry),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		expiry:  make(map[string]time.Time),
	}
}

// 调用前必须持有 mu
func (s *memoryStore) reap(key string) {
	exp, ok := s.expiry[key]
	if !ok || exp.IsZero() {
		return
	}
	if !s.clk.Now().Before(exp) {
		delete(s.strings, key)
		delete(s.hashes, key)
		delete(s.lists, key)
		delete(s.expiry, key)
	}
}

func (s *memoryStore) setExpiry(key string, ttl time.Duration) {
	if ttl > 0 {
		s.expiry[key] = s.clk.Now().Add(ttl)
	} else {
		delete(s.expiry, key)
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	e, ok := s.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = memEntry{value: value}
	s.setExpiry(key, ttl)
	return nil
}

func (s *memoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	if _, ok := s.strings[key]; ok {
		return false, nil
	}
	s.strings[key] = memEntry{value: value}
	s.setExpiry(key, ttl)
	return true, nil
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.strings, key)
		delete(s.hashes, key)
		delete(s.lists, key)
		delete(s.expiry, key)
	}
	return nil
}

func (s *memoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	s.setExpiry(key, ttl)
	return nil
}

func (s *memoryStore) HSet(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *memoryStore) HGet(ctx context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	v, ok := s.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *memoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *memoryStore) HDel(ctx context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	h := s.hashes[key]
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(s.hashes, key)
	}
	return nil
}

func (s *memoryStore) HLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	return int64(len(s.hashes[key])), nil
}

func (s *memoryStore) LPush(ctx context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	// LPUSH 语义：逐个压到头部
	l := s.lists[key]
	for _, v := range values {
		l = append([]string{v}, l...)
	}
	s.lists[key] = l
	return nil
}

func (s *memoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	l := s.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, 0, stop-start+1)
	out = append(out, l[start:stop+1]...)
	return out, nil
}

func (s *memoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap(key)
	l := s.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		delete(s.lists, key)
		return nil
	}
	s.lists[key] = l[start : stop+1]
	return nil
}

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get absent = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("Get = (%q, %v), want v", v, err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	clk := clock.NewMock()
	s := NewMemoryStore(clk)
	ctx := context.Background()

	s.Set(ctx, "k", "v", time.Minute)
	clk.Add(59 * time.Second)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	clk.Add(2 * time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after expiry = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SetNX(t *testing.T) {
	clk := clock.NewMock()
	s := NewMemoryStore(clk)
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", "v1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = (%v, %v), want true", ok, err)
	}
	ok, _ = s.SetNX(ctx, "k", "v2", time.Minute)
	if ok {
		t.Fatal("SetNX on existing key should fail")
	}
	v, _ := s.Get(ctx, "k")
	if v != "v1" {
		t.Fatalf("value = %q, want original v1", v)
	}

	// 过期后 key 视作不存在
	clk.Add(2 * time.Minute)
	ok, _ = s.SetNX(ctx, "k", "v2", time.Minute)
	if !ok {
		t.Fatal("SetNX after expiry should succeed")
	}
}

func TestMemoryStore_Expire(t *testing.T) {
	clk := clock.NewMock()
	s := NewMemoryStore(clk)
	ctx := context.Background()

	s.Set(ctx, "k", "v", time.Minute)
	// 续期
	clk.Add(50 * time.Second)
	s.Expire(ctx, "k", time.Minute)
	clk.Add(50 * time.Second)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get after refresh: %v", err)
	}
	clk.Add(11 * time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after refreshed TTL elapsed = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Del(t *testing.T) {
	s := NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	s.Set(ctx, "a", "1", 0)
	s.HSet(ctx, "h", "f", "1")
	s.LPush(ctx, "l", "1")
	if err := s.Del(ctx, "a", "h", "l"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatal("string survived Del")
	}
	if n, _ := s.HLen(ctx, "h"); n != 0 {
		t.Fatal("hash survived Del")
	}
	if items, _ := s.LRange(ctx, "l", 0, -1); len(items) != 0 {
		t.Fatal("list survived Del")
	}
}

func TestMemoryStore_HashOps(t *testing.T) {
	s := NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	s.HSet(ctx, "h", "f1", "v1")
	s.HSet(ctx, "h", "f2", "v2")
	s.HSet(ctx, "h", "f1", "v1b") // upsert

	if n, _ := s.HLen(ctx, "h"); n != 2 {
		t.Fatalf("HLen = %d, want 2", n)
	}
	v, err := s.HGet(ctx, "h", "f1")
	if err != nil || v != "v1b" {
		t.Fatalf("HGet = (%q, %v), want v1b", v, err)
	}
	if _, err := s.HGet(ctx, "h", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("HGet missing field = %v, want ErrNotFound", err)
	}

	all, _ := s.HGetAll(ctx, "h")
	if len(all) != 2 || all["f2"] != "v2" {
		t.Fatalf("HGetAll = %v", all)
	}

	s.HDel(ctx, "h", "f1")
	if n, _ := s.HLen(ctx, "h"); n != 1 {
		t.Fatalf("HLen after HDel = %d, want 1", n)
	}
}

func TestMemoryStore_HashTTL(t *testing.T) {
	clk := clock.NewMock()
	s := NewMemoryStore(clk)
	ctx := context.Background()

	s.HSet(ctx, "h", "f", "v")
	s.Expire(ctx, "h", time.Minute)
	clk.Add(2 * time.Minute)
	if n, _ := s.HLen(ctx, "h"); n != 0 {
		t.Fatalf("HLen after TTL = %d, want 0", n)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	s.LPush(ctx, "l", "a")
	s.LPush(ctx, "l", "b")
	s.LPush(ctx, "l", "c")

	items, err := s.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(items) != 3 || items[0] != "c" || items[2] != "a" {
		t.Fatalf("items = %v, want [c b a]", items)
	}

	head, _ := s.LRange(ctx, "l", 0, 1)
	if len(head) != 2 || head[0] != "c" || head[1] != "b" {
		t.Fatalf("head = %v, want [c b]", head)
	}
}

func TestMemoryStore_LTrimCapsList(t *testing.T) {
	s := NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c", "d", "e"} {
		s.LPush(ctx, "l", v)
	}
	if err := s.LTrim(ctx, "l", 0, 2); err != nil {
		t.Fatalf("LTrim: %v", err)
	}
	items, _ := s.LRange(ctx, "l", 0, -1)
	if len(items) != 3 || items[0] != "e" || items[2] != "c" {
		t.Fatalf("items = %v, want [e d c]", items)
	}

	// 空区间等价于删除整个 list
	s.LTrim(ctx, "l", 5, 9)
	items, _ = s.LRange(ctx, "l", 0, -1)
	if len(items) != 0 {
		t.Fatalf("items after empty-range trim = %v, want empty", items)
	}
}

func TestMemoryStore_LRangeOutOfBounds(t *testing.T) {
	s := NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	s.LPush(ctx, "l", "a", "b")
	items, err := s.LRange(ctx, "l", 0, 99)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %v, want both", items)
	}
	if items, _ := s.LRange(ctx, "l", 5, 9); len(items) != 0 {
		t.Fatalf("out-of-range = %v, want empty", items)
	}
}

func TestKeyBuilders(t *testing.T) {
	cases := []struct{ got, want string }{
		{RoomMembersKey("r1"), "room:members:{r1}"},
		{RoomStateKey("r1"), "room:state:{r1}"},
		{RoomMessagesKey("r1"), "room:messages:{r1}"},
		{DocStateKey("d1"), "doc:state:{d1}"},
		{LockKey("d1", ""), "lock:{d1}"},
		{LockKey("d1", "el7"), "lock:{d1}:el7"},
		{PresenceKey(42), "presence:user:{42}"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("key = %q, want %q", tc.got, tc.want)
		}
	}
}

package collab

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/cache"
)

// 快照存储的内存替身：默认表现成"没有快照"（sql.ErrNoRows）
type fakeSnapshots struct {
	content string
	version uint64
	has     bool

	savedContent string
	savedVersion uint64
	saves        int
}

func (f *fakeSnapshots) SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error {
	f.savedContent = content
	f.savedVersion = version
	f.saves++
	return nil
}

func (f *fakeSnapshots) LoadDocumentSnapshot(ctx context.Context, docID string) (string, uint64, error) {
	if !f.has {
		return "", 0, sql.ErrNoRows
	}
	return f.content, f.version, nil
}

func newTestEngine(bufferSize int, snap SnapshotStore) *Engine {
	clk := clock.NewMock()
	return NewEngine(cache.NewMemoryStore(clk), snap, clk, nil, EngineConfig{
		BufferSize: bufferSize,
		DocTTL:     time.Hour,
	})
}

func mustApply(t *testing.T, e *Engine, docID string, op Operation, clientVersion uint64) ApplyResult {
	t.Helper()
	res, err := e.ApplyOperation(context.Background(), docID, op, clientVersion, 1)
	if err != nil {
		t.Fatalf("ApplyOperation: %v", err)
	}
	if !res.Success {
		t.Fatalf("ApplyOperation not accepted: %+v", res)
	}
	return res
}

func TestEngine_VersionMonotonic(t *testing.T) {
	e := newTestEngine(100, nil)
	ctx := context.Background()

	for i := uint64(0); i < 5; i++ {
		res := mustApply(t, e, "doc-1", Insert(int(i), "a"), i)
		if res.NewVersion != i+1 {
			t.Fatalf("version after op %d = %d, want %d", i, res.NewVersion, i+1)
		}
	}
	content, version, err := e.LoadDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if version != 5 || content != "aaaaa" {
		t.Fatalf("doc = %q v%d, want %q v5", content, version, "aaaaa")
	}
}

func TestEngine_TransformsAgainstMissedOps(t *testing.T) {
	e := newTestEngine(100, nil)
	ctx := context.Background()

	mustApply(t, e, "doc-1", Insert(0, "ABCD"), 0) // v1: "ABCD"

	// 两个客户端都基于 v1。先到的插入被原样接受，
	// 后到的删除要先变换过那次插入：delete(2,1) → delete(3,1)
	mustApply(t, e, "doc-1", Insert(1, "X"), 1) // v2: "AXBCD"
	res := mustApply(t, e, "doc-1", Delete(2, 1), 1)

	if res.NewVersion != 3 {
		t.Fatalf("version = %d, want 3", res.NewVersion)
	}
	if res.TransformedOp.Position != 3 || res.TransformedOp.Length != 1 {
		t.Fatalf("transformed = %+v, want position=3 length=1", res.TransformedOp)
	}
	content, _, err := e.LoadDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if content != "AXBD" {
		t.Fatalf("content = %q, want %q", content, "AXBD")
	}
}

func TestEngine_StaleClientConflictDoesNotMutate(t *testing.T) {
	e := newTestEngine(2, nil)
	ctx := context.Background()

	for i := uint64(0); i < 4; i++ {
		mustApply(t, e, "doc-1", Insert(int(i), "a"), i)
	}
	before, beforeV, _ := e.LoadDocument(ctx, "doc-1")

	// clientVersion 0 落后 4 个版本，缓冲只有 2 条，追不平
	res, err := e.ApplyOperation(ctx, "doc-1", Insert(0, "X"), 0, 1)
	if err != nil {
		t.Fatalf("ApplyOperation: %v", err)
	}
	if !res.Conflict || res.Success {
		t.Fatalf("result = %+v, want conflict", res)
	}
	if res.ServerVersion != beforeV || res.ServerState != before {
		t.Fatalf("conflict payload = v%d %q, want v%d %q", res.ServerVersion, res.ServerState, beforeV, before)
	}

	after, afterV, _ := e.LoadDocument(ctx, "doc-1")
	if after != before || afterV != beforeV {
		t.Fatalf("document mutated by rejected op: %q v%d -> %q v%d", before, beforeV, after, afterV)
	}
}

func TestEngine_FromFutureConflict(t *testing.T) {
	e := newTestEngine(100, nil)
	res, err := e.ApplyOperation(context.Background(), "doc-1", Insert(0, "X"), 7, 1)
	if err != nil {
		t.Fatalf("ApplyOperation: %v", err)
	}
	if !res.Conflict || res.ServerVersion != 0 {
		t.Fatalf("result = %+v, want conflict with serverVersion=0", res)
	}
}

func TestEngine_BufferEviction(t *testing.T) {
	e := newTestEngine(2, nil)
	ctx := context.Background()

	for i := uint64(0); i < 5; i++ {
		mustApply(t, e, "doc-1", Insert(int(i), "a"), i)
	}
	ops, err := e.OpsSince(ctx, "doc-1", 0, 0)
	if err != nil {
		t.Fatalf("OpsSince: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("buffered ops = %d, want 2", len(ops))
	}
	if ops[0].Version != 4 || ops[1].Version != 5 {
		t.Fatalf("buffered versions = %d,%d, want 4,5", ops[0].Version, ops[1].Version)
	}
}

func TestEngine_OpsSinceLimit(t *testing.T) {
	e := newTestEngine(100, nil)
	for i := uint64(0); i < 4; i++ {
		mustApply(t, e, "doc-1", Insert(int(i), "a"), i)
	}
	ops, err := e.OpsSince(context.Background(), "doc-1", 1, 2)
	if err != nil {
		t.Fatalf("OpsSince: %v", err)
	}
	if len(ops) != 2 || ops[0].Version != 2 || ops[1].Version != 3 {
		t.Fatalf("ops = %+v, want versions 2,3", ops)
	}
}

func TestEngine_SnapshotRecovery(t *testing.T) {
	snap := &fakeSnapshots{content: "hello", version: 5, has: true}
	e := newTestEngine(100, snap)
	ctx := context.Background()

	content, version, err := e.LoadDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if content != "hello" || version != 5 {
		t.Fatalf("recovered doc = %q v%d, want %q v5", content, version, "hello")
	}

	// 快照回源后缓冲为空：比快照版本还旧的客户端只能全量重同步
	res, err := e.ApplyOperation(ctx, "doc-1", Insert(0, "X"), 3, 1)
	if err != nil {
		t.Fatalf("ApplyOperation: %v", err)
	}
	if !res.Conflict || res.ServerVersion != 5 || res.ServerState != "hello" {
		t.Fatalf("result = %+v, want conflict with snapshot state", res)
	}

	// 拿着快照版本提交则正常推进
	res = mustApply(t, e, "doc-1", Insert(5, "!"), 5)
	if res.NewVersion != 6 {
		t.Fatalf("version = %d, want 6", res.NewVersion)
	}
}

func TestEngine_NoSnapshotStartsEmpty(t *testing.T) {
	snap := &fakeSnapshots{}
	e := newTestEngine(100, snap)
	content, version, err := e.LoadDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if content != "" || version != 0 {
		t.Fatalf("doc = %q v%d, want empty v0", content, version)
	}
}

func TestEngine_SaveSnapshot(t *testing.T) {
	snap := &fakeSnapshots{}
	e := newTestEngine(100, snap)
	ctx := context.Background()

	mustApply(t, e, "doc-1", Insert(0, "abc"), 0)
	if err := e.SaveSnapshot(ctx, "doc-1"); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if snap.saves != 1 || snap.savedContent != "abc" || snap.savedVersion != 1 {
		t.Fatalf("snapshot = %q v%d (saves=%d), want %q v1 (saves=1)", snap.savedContent, snap.savedVersion, snap.saves, "abc")
	}
}

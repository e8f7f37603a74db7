package collab

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/cache"
)

// 快照存储接口，只声明，实现在 store 中
type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error
	LoadDocumentSnapshot(ctx context.Context, docID string) (content string, version uint64, err error)
}

// AppliedOperation：已被服务端接受并落盘的操作，Version 即接受后的文档版本。
type AppliedOperation struct {
	OperationID string    `json:"operationId"`
	Version     uint64    `json:"version"`
	UserID      uint64    `json:"userId"`
	Op          Operation `json:"op"`
	AppliedAt   time.Time `json:"appliedAt"`
}

// DocumentState：持久化在共享存储里的文档状态。
// Operations 始终保留最近 N 条已应用操作，落后不超过 N 个版本的客户端
// 可以只靠缓冲追平；更老的客户端必须全量重同步。
type DocumentState struct {
	Content      string             `json:"content"`
	Version      uint64             `json:"version"`
	Operations   []AppliedOperation `json:"operations"`
	LastModified time.Time          `json:"lastModified"`
}

// ApplyResult：提交结果。
// Conflict=true 时带上权威版本和全量内容，客户端用它做全量重同步
// ——这是失步客户端唯一的恢复路径，属于预期内的可恢复状态，不算错误。
type ApplyResult struct {
	Success       bool      `json:"success"`
	Conflict      bool      `json:"conflict,omitempty"`
	TransformedOp Operation `json:"transformedOp,omitempty"`
	NewVersion    uint64    `json:"newVersion,omitempty"`
	ServerVersion uint64    `json:"serverVersion,omitempty"`
	ServerState   string    `json:"serverState,omitempty"`
}

type EngineConfig struct {
	// 操作缓冲容量 N（同时是失步判定阈值）
	BufferSize int
	// 文档状态 key 的 TTL，活跃即续期
	DocTTL time.Duration
}

// Engine：文档状态 + OT 变换引擎。
// 所有跨实例状态都在共享存储里；进程内用 per-doc 互斥串行化
// 读-改-写序列（跨实例的原子性依赖“同一文档路由到同一实例”的部署约定）。
type Engine struct {
	store     cache.Store
	snapshots SnapshotStore
	clk       clock.Clock
	cfg       EngineConfig

	events *EventDispatcher

	// 防止快照回源击穿（同一文档并发 miss 只回源一次）
	sf singleflight.Group

	mu   sync.Mutex
	docs map[string]*sync.Mutex
}

func NewEngine(store cache.Store, snapshots SnapshotStore, clk clock.Clock, events *EventDispatcher, cfg EngineConfig) *Engine {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	return &Engine{
		store:     store,
		snapshots: snapshots,
		clk:       clk,
		cfg:       cfg,
		events:    events,
		docs:      make(map[string]*sync.Mutex),
	}
}

func (e *Engine) docMutex(docID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.docs[docID]
	if m == nil {
		m = &sync.Mutex{}
		e.docs[docID] = m
	}
	return m
}

// loadState：存储里没有时回源 MySQL 快照（singleflight 包住），
// 快照也没有就是一篇空文档。
func (e *Engine) loadState(ctx context.Context, docID string) (DocumentState, error) {
	raw, err := e.store.Get(ctx, cache.DocStateKey(docID))
	if err == nil {
		var ds DocumentState
		if err := json.Unmarshal([]byte(raw), &ds); err != nil {
			return DocumentState{}, err
		}
		return ds, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return DocumentState{}, err
	}

	v, err, _ := e.sf.Do(docID, func() (interface{}, error) {
		if e.snapshots == nil {
			return DocumentState{}, nil
		}
		content, version, err := e.snapshots.LoadDocumentSnapshot(ctx, docID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return DocumentState{}, nil
			}
			return nil, err
		}
		return DocumentState{Content: content, Version: version}, nil
	})
	if err != nil {
		return DocumentState{}, err
	}
	return v.(DocumentState), nil
}

func (e *Engine) persist(ctx context.Context, docID string, ds DocumentState) error {
	b, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, cache.DocStateKey(docID), string(b), e.cfg.DocTTL)
}

// ApplyOperation：提交一条基于 clientVersion 的操作。
//  1. 失步判定：clientVersion 超出缓冲可追平的范围 → 冲突结果（带权威版本+全量内容），
//     不改动任何文档状态
//  2. 把操作依次变换过 clientVersion 之后的每条已应用操作（服务端接受顺序）
//  3. 应用到内容缓冲区，版本 +1，追加进有界缓冲（满了挤掉最老的）
//  4. 持久化，异步发事件，返回已变换的操作和新版本
func (e *Engine) ApplyOperation(ctx context.Context, docID string, op Operation, clientVersion uint64, userID uint64) (ApplyResult, error) {
	m := e.docMutex(docID)
	m.Lock()
	defer m.Unlock()

	ds, err := e.loadState(ctx, docID)
	if err != nil {
		return ApplyResult{}, err
	}

	// 太旧（缓冲已经装不下缺失的操作）或者声称来自未来，都只能全量重同步
	fromFuture := clientVersion > ds.Version
	tooStale := false
	if !fromFuture {
		missed := ds.Version - clientVersion
		if missed > uint64(e.cfg.BufferSize) {
			tooStale = true
		} else if missed > uint64(len(ds.Operations)) {
			// 缓冲实际内容覆盖不了缺口（比如刚从快照回源，缓冲是空的）
			tooStale = true
		}
	}
	if tooStale || fromFuture {
		return ApplyResult{
			Conflict:      true,
			ServerVersion: ds.Version,
			ServerState:   ds.Content,
		}, nil
	}

	transformed := op
	for _, applied := range ds.Operations {
		if applied.Version > clientVersion {
			transformed = transformAgainst(transformed, applied.Op)
		}
	}

	buf := NewPieceTable(ds.Content)
	buf.ApplyOperation(transformed)

	now := e.clk.Now()
	ds.Content = buf.String()
	ds.Version++
	ds.Operations = append(ds.Operations, AppliedOperation{
		OperationID: fmt.Sprintf("o-%s", uuid.NewString()),
		Version:     ds.Version,
		UserID:      userID,
		Op:          transformed,
		AppliedAt:   now,
	})
	if len(ds.Operations) > e.cfg.BufferSize {
		ds.Operations = ds.Operations[len(ds.Operations)-e.cfg.BufferSize:]
	}
	ds.LastModified = now

	if err := e.persist(ctx, docID, ds); err != nil {
		return ApplyResult{}, err
	}

	if e.events != nil {
		e.events.TryEnqueue(CollabEvent{
			EventType: EventOpApplied,
			DocID:     docID,
			UserID:    userID,
			Version:   ds.Version,
			Op:        &transformed,
			At:        now,
		})
	}

	return ApplyResult{
		Success:       true,
		TransformedOp: transformed,
		NewVersion:    ds.Version,
	}, nil
}

// LoadDocument：握手/重同步用，返回当前内容与版本。
func (e *Engine) LoadDocument(ctx context.Context, docID string) (string, uint64, error) {
	m := e.docMutex(docID)
	m.Lock()
	defer m.Unlock()

	ds, err := e.loadState(ctx, docID)
	if err != nil {
		return "", 0, err
	}
	return ds.Content, ds.Version, nil
}

// CurrentVersion：只读版本号。
func (e *Engine) CurrentVersion(ctx context.Context, docID string) (uint64, error) {
	ds, err := e.loadState(ctx, docID)
	if err != nil {
		return 0, err
	}
	return ds.Version, nil
}

// OpsSince：返回 fromVersion 之后的已应用操作（追平用）。
func (e *Engine) OpsSince(ctx context.Context, docID string, fromVersion uint64, limit int) ([]AppliedOperation, error) {
	ds, err := e.loadState(ctx, docID)
	if err != nil {
		return nil, err
	}
	var out []AppliedOperation
	for _, op := range ds.Operations {
		if op.Version > fromVersion {
			out = append(out, op)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// SaveSnapshot：把当前内容+版本落到 MySQL。
func (e *Engine) SaveSnapshot(ctx context.Context, docID string) error {
	if e.snapshots == nil {
		return errors.New("snapshot store not initialized")
	}
	m := e.docMutex(docID)
	m.Lock()
	defer m.Unlock()

	ds, err := e.loadState(ctx, docID)
	if err != nil {
		return err
	}
	return e.snapshots.SaveDocumentSnapshot(ctx, docID, ds.Version, ds.Content)
}

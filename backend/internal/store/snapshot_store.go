package store

import (
	"context"
	"database/sql"
)

type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveDocumentSnapshot：同一文档只保留最新快照（版本回退的写入直接覆盖，
// 快照只是恢复起点，不是操作日志）。
func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (doc_id, version, content)
		 VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE version = VALUES(version), content = VALUES(content)`,
		docID, version, content,
	)
	return err
}

// LoadDocumentSnapshot：没有快照时返回 sql.ErrNoRows，由调用方当成空文档处理。
func (s *SnapshotStore) LoadDocumentSnapshot(ctx context.Context, docID string) (string, uint64, error) {
	var content string
	var version uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT content, version FROM document_snapshots WHERE doc_id = ?`,
		docID,
	).Scan(&content, &version)
	return content, version, err
}

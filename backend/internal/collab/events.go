package collab

import "time"

const (
	EventOpApplied    = "OP_APPLIED"
	EventLockAcquired = "LOCK_ACQUIRED"
	EventLockReleased = "LOCK_RELEASED"
	EventMemberJoined = "MEMBER_JOINED"
	EventMemberLeft   = "MEMBER_LEFT"
)

// CollabEvent：协作事件流（下游做分析/会话归档消费）。
// 以 DocID（房间即文档）做 Kafka 分区 key，同一文档的事件保序。
type CollabEvent struct {
	EventType string     `json:"eventType"`
	DocID     string     `json:"docId"`
	RoomID    string     `json:"roomId,omitempty"`
	UserID    uint64     `json:"userId"`
	Version   uint64     `json:"version,omitempty"`
	Op        *Operation `json:"op,omitempty"`
	Lock      *Lock      `json:"lock,omitempty"`
	At        time.Time  `json:"at"`
}

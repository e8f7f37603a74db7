package ws

import (
	"time"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/collab"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/room"
)

type ClientMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId,omitempty"`
	RoomType string `json:"roomType,omitempty"`
	Content  string `json:"content,omitempty"`
	// heartbeat 附带的状态与元数据（光标、当前视图等）
	Status   string            `json:"status,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// op_submit
	Op            *collab.Operation `json:"op,omitempty"`
	ClientVersion uint64            `json:"clientVersion"`
	// lock_acquire / lock_release
	ElementID   string `json:"elementId,omitempty"`
	LockID      string `json:"lockId,omitempty"`
	DurationSec int    `json:"durationSec,omitempty"`
	// get_messages
	Limit int `json:"limit,omitempty"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

type MemberInfo struct {
	SocketID    string `json:"socketId"`
	UserID      uint64 `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

type ServerMessage struct {
	Type        string         `json:"type"`
	RoomID      string         `json:"roomId,omitempty"`
	UserID      uint64         `json:"userId,omitempty"`
	Content     string         `json:"content,omitempty"`
	Version     uint64         `json:"version,omitempty"`
	MemberCount int64          `json:"memberCount,omitempty"`
	Members     []MemberInfo   `json:"members,omitempty"`
	Messages    []room.Message `json:"messages,omitempty"`
}

type OpAppliedMessage struct {
	Type          string           `json:"type"` // 固定 "op_applied"
	RoomID        string           `json:"roomId"`
	ClientVersion uint64           `json:"clientVersion"` // 客户端提交时的 base
	NewVersion    uint64           `json:"newVersion"`    // 服务端应用后的最新版本
	TransformedOp collab.Operation `json:"transformedOp"`
}

// 广播给同房间其他连接的“已应用操作”事件。
// 与 op_applied(ack) 区分：这里推送给其他协作者（包括同用户的其他标签页）。
type OpBroadcastMessage struct {
	Type      string           `json:"type"` // 固定 "op_broadcast"
	RoomID    string           `json:"roomId"`
	Version   uint64           `json:"version"`
	AuthorID  uint64           `json:"authorId"`
	Op        collab.Operation `json:"op"`
	AppliedAt time.Time        `json:"appliedAt,omitempty"`
}

// 失步客户端的全量重同步通道：带权威版本和完整内容。
type ConflictMessage struct {
	Type          string `json:"type"` // 固定 "op_conflict"
	RoomID        string `json:"roomId"`
	Conflict      bool   `json:"conflict"` // 恒为 true
	ServerVersion uint64 `json:"serverVersion"`
	ServerState   string `json:"serverState"`
}

type LockResultMessage struct {
	Type      string       `json:"type"` // "lock_result" / "unlock_result"
	RoomID    string       `json:"roomId"`
	ElementID string       `json:"elementId,omitempty"`
	Acquired  bool         `json:"acquired,omitempty"`
	Released  bool         `json:"released,omitempty"`
	Holder    *collab.Lock `json:"holder,omitempty"`
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m OpAppliedMessage) MessageType() string   { return m.Type }
func (m OpBroadcastMessage) MessageType() string { return m.Type }
func (m ConflictMessage) MessageType() string    { return m.Type }
func (m LockResultMessage) MessageType() string  { return m.Type }

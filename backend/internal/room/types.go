package room

import (
	"encoding/json"
	"time"
)

// RoomType 是封闭的类型集合，CanJoinRoom 按类型做穷举分派。
// 新增房间类型必须同时补上对应的准入谓词。
type RoomType string

const (
	TypeClass     RoomType = "class"
	TypeSession   RoomType = "session"
	TypeDocument  RoomType = "document"
	TypePlanning  RoomType = "planning"
	TypeAnalytics RoomType = "analytics"
)

// Member 的身份是 socket 连接而不是用户：
// 同一用户开多个标签页就有多条 Member（不同 socketID）。
type Member struct {
	SocketID    string    `json:"socketId"`
	UserID      uint64    `json:"userId"`
	TenantID    string    `json:"tenantId"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// State 是房间级的应用状态（与文档 OT 状态互相独立）。
// Version 每次成功变更恰好 +1，单调不减。
type State struct {
	State        json.RawMessage `json:"state"`
	Version      uint64          `json:"version"`
	LastModified time.Time       `json:"lastModified"`
}

type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	UserID      uint64    `json:"userId"`
	DisplayName string    `json:"displayName,omitempty"`
	Content     string    `json:"content"`
	SentAt      time.Time `json:"sentAt"`
}

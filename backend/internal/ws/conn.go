package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/collab"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/httpapi/metrics"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/presence"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/room"
)

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	socketID string
	userID   uint64
	tenantID string
	username string
	// 当前所在房间（一个连接同一时刻只待一个房间，切房先离开旧的）
	roomID string

	send chan OutboundMessage

	rooms    *room.Service
	docs     *collab.Engine
	locks    *collab.LockManager
	presence *presence.Service
	// 信号量控制：op 提交的准入
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, socketID string, userID uint64, tenantID, username string,
	rooms *room.Service, docs *collab.Engine, locks *collab.LockManager, pres *presence.Service,
	sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		socketID: socketID,
		userID:   userID,
		tenantID: tenantID,
		username: username,
		send:     make(chan OutboundMessage, 32),
		rooms:    rooms,
		docs:     docs,
		locks:    locks,
		presence: pres,
		sem:      sem,
	}
}

func (c *Conn) enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
		// 队列满了，丢弃（fire-and-forget，不等客户端确认）
	}
}

func (c *Conn) sendError(code string) {
	c.enqueue(ServerMessage{Type: "error", Content: code})
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.send)
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read json error (user=%d, room=%s): %v", c.userID, c.roomID, err)
			}
			return
		}

		switch msg.Type {
		case "heartbeat":
			c.handleHeartbeat(ctx, msg)
		case "join_room":
			c.handleJoinRoom(ctx, msg)
		case "leave_room":
			c.leaveCurrentRoom(ctx)
		case "room_message":
			c.handleRoomMessage(ctx, msg)
		case "get_messages":
			c.handleGetMessages(ctx, msg)
		case "op_submit":
			c.handleOpSubmit(ctx, msg)
		case "load_document":
			c.handleLoadDocument(ctx, msg)
		case "lock_acquire":
			c.handleLockAcquire(ctx, msg)
		case "lock_release":
			c.handleLockRelease(ctx, msg)
		default:
			c.enqueue(ServerMessage{Type: "ignored", Content: "unknown message type"})
		}
	}
}

func (c *Conn) writeLoop() {
	// 持续消费发送队列直到 readLoop 关闭它
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}

// handleHeartbeat：心跳即续期——刷新在线记录 TTL，顺带刷新房间成员 TTL。
// 存储不可达属于基础设施故障，回 error 而不是装作一切正常。
func (c *Conn) handleHeartbeat(ctx context.Context, msg ClientMessage) {
	status := presence.Status(msg.Status)
	if status != presence.StatusAway {
		status = presence.StatusOnline
	}
	if err := c.presence.UpdatePresence(ctx, c.userID, status, msg.Metadata); err != nil {
		log.Printf("update presence error (user=%d): %v", c.userID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	if c.roomID != "" {
		if _, err := c.rooms.AddMember(ctx, c.roomID, c.member()); err != nil {
			log.Printf("refresh member error (user=%d, room=%s): %v", c.userID, c.roomID, err)
			c.sendError("STORE_UNAVAILABLE")
			return
		}
	}
	c.enqueue(ServerMessage{Type: "heartbeat_ack"})
}

func (c *Conn) member() room.Member {
	return room.Member{
		SocketID:    c.socketID,
		UserID:      c.userID,
		TenantID:    c.tenantID,
		DisplayName: c.username,
	}
}

func (c *Conn) handleJoinRoom(ctx context.Context, msg ClientMessage) {
	if msg.RoomID == "" {
		c.sendError("MISSING_ROOM_ID")
		return
	}

	ok, err := c.rooms.CanJoinRoom(ctx, c.userID, c.tenantID, msg.RoomID, room.RoomType(msg.RoomType))
	if err != nil {
		log.Printf("can join room error (user=%d, room=%s): %v", c.userID, msg.RoomID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	if !ok {
		// 准入拒绝：二值决策，不重试
		c.sendError("AUTHORIZATION_DENIED")
		return
	}

	// 切房先离开旧房间
	if c.roomID != "" && c.roomID != msg.RoomID {
		c.leaveCurrentRoom(ctx)
	}

	count, err := c.rooms.AddMember(ctx, msg.RoomID, c.member())
	if err != nil {
		if errors.Is(err, room.ErrRoomFull) {
			c.sendError("ROOM_FULL")
			return
		}
		log.Printf("add member error (user=%d, room=%s): %v", c.userID, msg.RoomID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	c.roomID = msg.RoomID
	c.hub.Join(msg.RoomID, c)

	c.hub.EmitToRoom(msg.RoomID, ServerMessage{
		Type:        "member_joined",
		RoomID:      msg.RoomID,
		UserID:      c.userID,
		Content:     c.username,
		MemberCount: count,
	}, c)
	c.enqueue(ServerMessage{Type: "room_joined", RoomID: msg.RoomID, MemberCount: count})
}

func (c *Conn) leaveCurrentRoom(ctx context.Context) {
	if c.roomID == "" {
		return
	}
	roomID := c.roomID
	c.roomID = ""
	c.hub.Leave(roomID, c)
	count, err := c.rooms.RemoveMember(ctx, roomID, c.socketID)
	if err != nil {
		log.Printf("remove member error (user=%d, room=%s): %v", c.userID, roomID, err)
		return
	}
	c.hub.EmitToRoom(roomID, ServerMessage{
		Type:        "member_left",
		RoomID:      roomID,
		UserID:      c.userID,
		Content:     c.username,
		MemberCount: count,
	}, c)
}

func (c *Conn) handleRoomMessage(ctx context.Context, msg ClientMessage) {
	if c.roomID == "" {
		c.sendError("NOT_IN_ROOM")
		return
	}
	saved, err := c.rooms.AddMessage(ctx, room.Message{
		RoomID:      c.roomID,
		UserID:      c.userID,
		DisplayName: c.username,
		Content:     msg.Content,
	})
	if err != nil {
		log.Printf("add message error (user=%d, room=%s): %v", c.userID, c.roomID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	c.hub.EmitToRoom(c.roomID, ServerMessage{
		Type:     "room_message",
		RoomID:   c.roomID,
		UserID:   c.userID,
		Messages: []room.Message{saved},
	}, nil)
}

func (c *Conn) handleGetMessages(ctx context.Context, msg ClientMessage) {
	if c.roomID == "" {
		c.sendError("NOT_IN_ROOM")
		return
	}
	msgs, err := c.rooms.GetMessages(ctx, c.roomID, msg.Limit)
	if err != nil {
		log.Printf("get messages error (user=%d, room=%s): %v", c.userID, c.roomID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	c.enqueue(ServerMessage{Type: "messages", RoomID: c.roomID, Messages: msgs})
}

func (c *Conn) handleOpSubmit(ctx context.Context, msg ClientMessage) {
	if c.roomID == "" {
		c.sendError("NOT_IN_ROOM")
		return
	}
	if msg.Op == nil {
		c.sendError("MISSING_OP")
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := c.sem.Acquire(submitCtx); err != nil {
		c.sendError("SUBMIT_BUSY")
		return
	}
	defer c.sem.Release()

	res, err := c.docs.ApplyOperation(ctx, c.roomID, *msg.Op, msg.ClientVersion, c.userID)
	if err != nil {
		log.Printf("apply operation error (user=%d, doc=%s): %v", c.userID, c.roomID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	if res.Conflict {
		// 预期内的可恢复状态：客户端拿全量内容重同步
		metrics.OperationConflicts.Inc()
		c.enqueue(ConflictMessage{
			Type:          "op_conflict",
			RoomID:        c.roomID,
			Conflict:      true,
			ServerVersion: res.ServerVersion,
			ServerState:   res.ServerState,
		})
		return
	}

	metrics.OperationsApplied.Inc()
	c.enqueue(OpAppliedMessage{
		Type:          "op_applied",
		RoomID:        c.roomID,
		ClientVersion: msg.ClientVersion,
		NewVersion:    res.NewVersion,
		TransformedOp: res.TransformedOp,
	})
	c.hub.EmitToRoom(c.roomID, OpBroadcastMessage{
		Type:      "op_broadcast",
		RoomID:    c.roomID,
		Version:   res.NewVersion,
		AuthorID:  c.userID,
		Op:        res.TransformedOp,
		AppliedAt: time.Now(),
	}, c)
}

func (c *Conn) handleLoadDocument(ctx context.Context, msg ClientMessage) {
	docID := msg.RoomID
	if docID == "" {
		docID = c.roomID
	}
	if docID == "" {
		c.sendError("MISSING_ROOM_ID")
		return
	}
	content, version, err := c.docs.LoadDocument(ctx, docID)
	if err != nil {
		log.Printf("load document error (user=%d, doc=%s): %v", c.userID, docID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	c.enqueue(ServerMessage{Type: "document", RoomID: docID, Content: content, Version: version})
}

func (c *Conn) handleLockAcquire(ctx context.Context, msg ClientMessage) {
	if c.roomID == "" {
		c.sendError("NOT_IN_ROOM")
		return
	}
	res, err := c.locks.Acquire(ctx, c.roomID, msg.ElementID, c.userID, c.username,
		time.Duration(msg.DurationSec)*time.Second)
	if err != nil {
		log.Printf("acquire lock error (user=%d, doc=%s): %v", c.userID, c.roomID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	holder := res.Holder
	c.enqueue(LockResultMessage{
		Type:      "lock_result",
		RoomID:    c.roomID,
		ElementID: msg.ElementID,
		Acquired:  res.Acquired,
		Holder:    &holder,
	})
	if res.Acquired {
		c.hub.EmitToRoom(c.roomID, LockResultMessage{
			Type:      "lock_changed",
			RoomID:    c.roomID,
			ElementID: msg.ElementID,
			Acquired:  true,
			Holder:    &holder,
		}, c)
	}
}

func (c *Conn) handleLockRelease(ctx context.Context, msg ClientMessage) {
	if c.roomID == "" {
		c.sendError("NOT_IN_ROOM")
		return
	}
	released, err := c.locks.Release(ctx, c.roomID, msg.ElementID, msg.LockID, c.userID)
	if err != nil {
		log.Printf("release lock error (user=%d, doc=%s): %v", c.userID, c.roomID, err)
		c.sendError("STORE_UNAVAILABLE")
		return
	}
	c.enqueue(LockResultMessage{
		Type:      "unlock_result",
		RoomID:    c.roomID,
		ElementID: msg.ElementID,
		Released:  released,
	})
	if released {
		c.hub.EmitToRoom(c.roomID, LockResultMessage{
			Type:      "lock_changed",
			RoomID:    c.roomID,
			ElementID: msg.ElementID,
			Released:  true,
		}, c)
	}
}

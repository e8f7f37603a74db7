package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/collab"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/presence"
	"github.com/artpromedia/aivo-platform-sub008/backend/internal/room"
)

// 全局的 WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub      *Hub
	rooms    *room.Service
	docs     *collab.Engine
	locks    *collab.LockManager
	presence *presence.Service
	sem      *collab.SemaphoreControl
}

func NewManager(hub *Hub, rooms *room.Service, docs *collab.Engine, locks *collab.LockManager,
	pres *presence.Service, sem *collab.SemaphoreControl) *Manager {
	return &Manager{hub: hub, rooms: rooms, docs: docs, locks: locks, presence: pres, sem: sem}
}

func (m *Manager) Hub() *Hub { return m.hub }

// WebSocketConnect：鉴权中间件已把身份写进 gin.Context；
// 这里升级连接、分配 socketID、登记在线，然后进读循环（阻塞至连接关闭）。
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")
	tenantID := c.GetString("tenantId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	socketID := uuid.NewString()
	wsConn := NewConn(conn, m.hub, socketID, userID, tenantID, username,
		m.rooms, m.docs, m.locks, m.presence, m.sem)

	ctx := c.Request.Context()
	m.hub.Register(wsConn)
	if err := m.presence.UpdatePresence(ctx, userID, presence.StatusOnline, nil); err != nil {
		log.Printf("initial presence error (user=%d): %v", userID, err)
	}

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	go wsConn.writeLoop()
	wsConn.enqueue(ServerMessage{Type: "welcome", Content: socketID})

	wsConn.readLoop(ctx)

	// 连接断开：退房、注销路由。在线记录交给 TTL 过期
	//（同一用户可能还有别的连接活着，这里不能直接标 offline）。
	wsConn.leaveCurrentRoom(ctx)
	m.hub.Unregister(wsConn)
}

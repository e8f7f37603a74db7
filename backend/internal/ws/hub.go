package ws

import (
	"sync"

	"github.com/artpromedia/aivo-platform-sub008/backend/internal/httpapi/metrics"
)

// Hub 只管本实例的连接路由：房间/用户/租户三个维度的连接集合。
// 跨实例共享的状态（名册、文档、锁、在线）都在共享存储里，不在这里。
type Hub struct {
	mu sync.RWMutex
	// roomID -> set of connections
	// 房间里存的是连接而不是 userID：一个用户可开多个标签页（多连接），
	// 广播要逐连接发，不能只按 userID 发一次。
	rooms   map[string]map[*Conn]struct{}
	users   map[uint64]map[*Conn]struct{}
	tenants map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Conn]struct{}),
		users:   make(map[uint64]map[*Conn]struct{}),
		tenants: make(map[string]map[*Conn]struct{}),
	}
}

// Register：连接完成鉴权后挂进用户/租户索引
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*Conn]struct{})
	}
	h.users[c.userID][c] = struct{}{}
	if c.tenantID != "" {
		if h.tenants[c.tenantID] == nil {
			h.tenants[c.tenantID] = make(map[*Conn]struct{})
		}
		h.tenants[c.tenantID][c] = struct{}{}
	}
	h.updateGauges()
}

func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, conns := range h.rooms {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
		}
	}
	if conns, ok := h.tenants[c.tenantID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.tenants, c.tenantID)
		}
	}
	h.updateGauges()
}

// Join 将连接加入指定房间
func (h *Hub) Join(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Conn]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	h.updateGauges()
}

// Leave 将连接从指定房间移除
func (h *Hub) Leave(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.updateGauges()
}

// EmitToRoom：fire-and-forget，慢消费者由连接自己的发送队列兜底（满了丢）。
// except 用来跳过发起者（比如 op 广播不用发回提交者）。
func (h *Hub) EmitToRoom(roomID string, msg OutboundMessage, except *Conn) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.enqueue(msg)
	}
}

// EmitToUser：发给该用户的所有连接（多端/多标签页）。
func (h *Hub) EmitToUser(userID uint64, msg OutboundMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.enqueue(msg)
	}
}

func (h *Hub) BroadcastToTenant(tenantID string, msg OutboundMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.tenants[tenantID]))
	for c := range h.tenants[tenantID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.enqueue(msg)
	}
}

// Stats：healthz/stats 端点用
func (h *Hub) Stats() (connections, rooms, users int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.users {
		connections += len(conns)
	}
	return connections, len(h.rooms), len(h.users)
}

// 调用前必须持有 mu
func (h *Hub) updateGauges() {
	conns := 0
	for _, set := range h.users {
		conns += len(set)
	}
	metrics.ActiveConnections.Set(float64(conns))
	metrics.ActiveRooms.Set(float64(len(h.rooms)))
	metrics.OnlineUsers.Set(float64(len(h.users)))
}

package handlers

import (
	"github.com/gin-gonic/gin"
)

// HubStats：运维端点需要的连接侧统计，由 ws.Hub 提供
type HubStats interface {
	Stats() (connections, rooms, users int)
}

func Healthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	}
}

// Stats：连接数 / 活跃房间数 / 在线用户数。只读，不承载核心逻辑。
func Stats(hub HubStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		connections, rooms, users := hub.Stats()
		c.JSON(200, gin.H{
			"connections": connections,
			"activeRooms": rooms,
			"onlineUsers": users,
		})
	}
}

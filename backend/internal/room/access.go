package room

import (
	"context"
	"fmt"
)

// MembershipRepo：准入判断依赖的关系数据（MySQL），
// 只声明接口，实现在 mysqldb 中。
type MembershipRepo interface {
	IsEnrolled(ctx context.Context, userID uint64, classID string) (bool, error)
	OwnsSession(ctx context.Context, userID uint64, sessionID string) (bool, error)
	HasDocumentAccess(ctx context.Context, userID uint64, docID string) (bool, error)
	InTenant(ctx context.Context, userID uint64, tenantID string) (bool, error)
}

// CanJoinRoom：纯准入决策，二值，没有部分访问。
// 按房间类型穷举分派；未知类型直接报错而不是默认放行。
func (s *Service) CanJoinRoom(ctx context.Context, userID uint64, tenantID, roomID string, roomType RoomType) (bool, error) {
	switch roomType {
	case TypeClass:
		return s.repo.IsEnrolled(ctx, userID, roomID)
	case TypeSession:
		return s.repo.OwnsSession(ctx, userID, roomID)
	case TypeDocument:
		return s.repo.HasDocumentAccess(ctx, userID, roomID)
	case TypePlanning, TypeAnalytics:
		// 规划板 / 分析房间对同租户成员开放
		return s.repo.InTenant(ctx, userID, tenantID)
	default:
		return false, fmt.Errorf("unknown room type: %q", roomType)
	}
}

package mysqldb

import (
	"context"

	"gorm.io/gorm"
)

// 准入判断依赖的关系表（由平台其他服务维护，这里只读）

type User struct {
	ID       uint64 `gorm:"primaryKey"`
	TenantID string `gorm:"column:tenant_id;index"`
	Username string
}

type Enrollment struct {
	ID      uint64 `gorm:"primaryKey"`
	UserID  uint64 `gorm:"column:user_id;index"`
	ClassID string `gorm:"column:class_id;index"`
}

type Session struct {
	ID      string `gorm:"primaryKey"`
	OwnerID uint64 `gorm:"column:owner_id;index"`
}

type DocumentACL struct {
	ID     uint64 `gorm:"primaryKey"`
	DocID  string `gorm:"column:doc_id;index"`
	UserID uint64 `gorm:"column:user_id;index"`
	Role   string
}

func (DocumentACL) TableName() string { return "document_acls" }

type MembershipRepo struct {
	db *gorm.DB
}

func NewMembershipRepo(db *gorm.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

func (r *MembershipRepo) IsEnrolled(ctx context.Context, userID uint64, classID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Enrollment{}).
		Where("user_id = ? AND class_id = ?", userID, classID).
		Count(&n).Error
	return n > 0, err
}

func (r *MembershipRepo) OwnsSession(ctx context.Context, userID uint64, sessionID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND owner_id = ?", sessionID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *MembershipRepo) HasDocumentAccess(ctx context.Context, userID uint64, docID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&DocumentACL{}).
		Where("doc_id = ? AND user_id = ?", docID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *MembershipRepo) InTenant(ctx context.Context, userID uint64, tenantID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND tenant_id = ?", userID, tenantID).
		Count(&n).Error
	return n > 0, err
}

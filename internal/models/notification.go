package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification 通知记录表
type Notification struct {
	ID        uint           `gorm:"primarykey" json:"id"`            // 主键
	UserID    uint           `gorm:"index;not null" json:"user_id"`   // 接收用户ID
	OrderID   uint           `gorm:"index" json:"order_id,omitempty"` // 关联订单ID
	Type      string         `gorm:"index;not null" json:"type"`      // 通知类型
	Title     string         `gorm:"not null" json:"title"`           // 标题
	Body      string         `gorm:"type:text" json:"body"`           // 正文
	ReadAt    *time.Time     `gorm:"index" json:"read_at"`            // 已读时间
	CreatedAt time.Time      `gorm:"index" json:"created_at"`         // 创建时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                  // 软删除时间
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

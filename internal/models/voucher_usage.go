package models

import (
	"time"

	"gorm.io/gorm"
)

// VoucherUsage 优惠券使用记录
type VoucherUsage struct {
	ID             uint           `gorm:"primarykey" json:"id"`                                         // 主键
	VoucherID      uint           `gorm:"index;not null" json:"voucher_id"`                             // 优惠券ID
	UserID         uint           `gorm:"index;not null" json:"user_id"`                                // 用户ID
	OrderID        uint           `gorm:"index;not null" json:"order_id"`                               // 订单ID
	DiscountAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"` // 优惠金额
	Status         string         `gorm:"index;not null;default:'active'" json:"status"`                // 状态（active/refunded）
	RefundedAt     *time.Time     `json:"refunded_at"`                                                  // 退回时间
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间
}

// TableName 指定表名
func (VoucherUsage) TableName() string {
	return "voucher_usages"
}

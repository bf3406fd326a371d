package models

import (
	"time"

	"gorm.io/gorm"
)

// Voucher 优惠券
type Voucher struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                      // 主键
	Code         string         `gorm:"index" json:"code"`                                         // 优惠码（自动匹配券可为空）
	Kind         string         `gorm:"not null;default:'code'" json:"kind"`                       // 使用方式（code/auto）
	DiscountKind string         `gorm:"not null" json:"discount_kind"`                             // 优惠方式（percentage/fixed）
	Value        Money          `gorm:"type:decimal(20,2);not null" json:"value"`                  // 数值（固定金额或百分比）
	MinAmount    Money          `gorm:"type:decimal(20,2);not null;default:0" json:"min_amount"`   // 使用门槛
	MaxDiscount  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"max_discount"` // 最大优惠金额（0 表示不封顶）
	UsageLimit   int            `gorm:"not null;default:0" json:"usage_limit"`                     // 总使用上限（0 表示不限制）
	PerUserLimit int            `gorm:"not null;default:0" json:"per_user_limit"`                  // 单个用户可用次数（0 表示不限制）
	UsedCount    int            `gorm:"not null;default:0" json:"used_count"`                      // 已使用次数
	StartsAt     *time.Time     `gorm:"index" json:"starts_at"`                                    // 生效时间
	ExpiresAt    *time.Time     `gorm:"index" json:"expires_at"`                                   // 失效时间
	Status       string         `gorm:"index;not null;default:'active'" json:"status"`             // 状态（active/inactive）
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                                   // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间
}

// TableName 指定表名
func (Voucher) TableName() string {
	return "vouchers"
}

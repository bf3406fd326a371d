package repository

import (
	"errors"
	"time"

	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/models"

	"gorm.io/gorm"
)

// VoucherUsageRepository 优惠券使用记录数据访问接口
type VoucherUsageRepository interface {
	Create(usage *models.VoucherUsage) error
	GetActiveByOrderID(orderID uint) (*models.VoucherUsage, error)
	CountByUser(voucherID, userID uint) (int64, error)
	MarkRefundedByOrder(orderID uint) (int64, error)
	WithTx(tx *gorm.DB) *GormVoucherUsageRepository
}

// GormVoucherUsageRepository GORM 实现
type GormVoucherUsageRepository struct {
	db *gorm.DB
}

// NewVoucherUsageRepository 创建优惠券使用记录仓库
func NewVoucherUsageRepository(db *gorm.DB) *GormVoucherUsageRepository {
	return &GormVoucherUsageRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherUsageRepository) WithTx(tx *gorm.DB) *GormVoucherUsageRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherUsageRepository{db: tx}
}

// Create 创建使用记录
func (r *GormVoucherUsageRepository) Create(usage *models.VoucherUsage) error {
	return r.db.Create(usage).Error
}

// GetActiveByOrderID 获取订单的生效中使用记录
func (r *GormVoucherUsageRepository) GetActiveByOrderID(orderID uint) (*models.VoucherUsage, error) {
	var usage models.VoucherUsage
	if err := r.db.
		Where("order_id = ? AND status = ?", orderID, constants.VoucherUsageStatusActive).
		First(&usage).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &usage, nil
}

// CountByUser 获取用户对某优惠券的生效使用次数
func (r *GormVoucherUsageRepository) CountByUser(voucherID, userID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.VoucherUsage{}).
		Where("voucher_id = ? AND user_id = ? AND status = ?", voucherID, userID, constants.VoucherUsageStatusActive).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRefundedByOrder 将订单的生效使用记录标记为已退回，返回受影响行数
func (r *GormVoucherUsageRepository) MarkRefundedByOrder(orderID uint) (int64, error) {
	now := time.Now()
	result := r.db.Model(&models.VoucherUsage{}).
		Where("order_id = ? AND status = ?", orderID, constants.VoucherUsageStatusActive).
		Updates(map[string]interface{}{
			"status":      constants.VoucherUsageStatusRefunded,
			"refunded_at": &now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

package repository

import (
	"errors"

	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/models"

	"gorm.io/gorm"
)

// VoucherRepository 优惠券数据访问接口
type VoucherRepository interface {
	GetByID(id uint) (*models.Voucher, error)
	GetByCode(code string) (*models.Voucher, error)
	ListActiveAuto() ([]models.Voucher, error)
	List(filter VoucherListFilter) ([]models.Voucher, int64, error)
	Create(voucher *models.Voucher) error
	Update(voucher *models.Voucher) error
	Delete(id uint) error
	TryReserveUsage(id uint) (int64, error)
	ReleaseUsage(id uint) (int64, error)
	WithTx(tx *gorm.DB) *GormVoucherRepository
}

// GormVoucherRepository GORM 实现
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository 创建优惠券仓库
func NewVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherRepository) WithTx(tx *gorm.DB) *GormVoucherRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherRepository{db: tx}
}

// GetByID 根据ID获取优惠券
func (r *GormVoucherRepository) GetByID(id uint) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.First(&voucher, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// GetByCode 根据优惠码获取优惠券
func (r *GormVoucherRepository) GetByCode(code string) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.Where("code = ?", code).First(&voucher).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// ListActiveAuto 获取启用中的自动匹配优惠券
func (r *GormVoucherRepository) ListActiveAuto() ([]models.Voucher, error) {
	var vouchers []models.Voucher
	if err := r.db.
		Where("kind = ? AND status = ?", constants.VoucherKindAuto, constants.VoucherStatusActive).
		Order("id asc").
		Find(&vouchers).Error; err != nil {
		return nil, err
	}
	return vouchers, nil
}

// List 获取优惠券列表
func (r *GormVoucherRepository) List(filter VoucherListFilter) ([]models.Voucher, int64, error) {
	var vouchers []models.Voucher
	query := r.db.Model(&models.Voucher{})

	if filter.Code != "" {
		query = query.Where("code = ?", filter.Code)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	if err := query.Order("id desc").Find(&vouchers).Error; err != nil {
		return nil, 0, err
	}
	return vouchers, total, nil
}

// Create 创建优惠券
func (r *GormVoucherRepository) Create(voucher *models.Voucher) error {
	return r.db.Create(voucher).Error
}

// Update 更新优惠券
func (r *GormVoucherRepository) Update(voucher *models.Voucher) error {
	return r.db.Save(voucher).Error
}

// Delete 删除优惠券
func (r *GormVoucherRepository) Delete(id uint) error {
	return r.db.Delete(&models.Voucher{}, id).Error
}

// TryReserveUsage 条件占用一次使用额度，额度耗尽时不更新任何行
func (r *GormVoucherRepository) TryReserveUsage(id uint) (int64, error) {
	if id == 0 {
		return 0, errors.New("invalid voucher id")
	}
	result := r.db.Model(&models.Voucher{}).
		Where("id = ? AND status = ?", id, constants.VoucherStatusActive).
		Where("usage_limit = 0 OR used_count < usage_limit").
		UpdateColumn("used_count", gorm.Expr("used_count + ?", 1))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ReleaseUsage 退回一次使用额度，计数为零时不更新任何行
func (r *GormVoucherRepository) ReleaseUsage(id uint) (int64, error) {
	if id == 0 {
		return 0, errors.New("invalid voucher id")
	}
	result := r.db.Model(&models.Voucher{}).
		Where("id = ? AND used_count >= ?", id, 1).
		UpdateColumn("used_count", gorm.Expr("used_count - ?", 1))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

package service

import (
	"strings"
	"time"

	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VoucherService 优惠券服务
type VoucherService struct {
	voucherRepo repository.VoucherRepository
	usageRepo   repository.VoucherUsageRepository
}

// NewVoucherService 创建优惠券服务
func NewVoucherService(voucherRepo repository.VoucherRepository, usageRepo repository.VoucherUsageRepository) *VoucherService {
	return &VoucherService{
		voucherRepo: voucherRepo,
		usageRepo:   usageRepo,
	}
}

// Resolve 按优惠码查找优惠券并校验可用性，返回折扣金额
func (s *VoucherService) Resolve(subtotal models.Money, code string, userID uint) (models.Money, *models.Voucher, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return models.Money{}, nil, ErrVoucherInvalid
	}

	voucher, err := s.voucherRepo.GetByCode(trimmed)
	if err != nil {
		return models.Money{}, nil, err
	}
	if voucher == nil {
		return models.Money{}, nil, ErrVoucherNotFound
	}

	discount, err := s.validateAndCompute(voucher, subtotal, time.Now())
	if err != nil {
		return models.Money{}, voucher, err
	}
	if err := s.checkPerUserLimit(s.usageRepo, voucher, userID); err != nil {
		return models.Money{}, voucher, err
	}
	return discount, voucher, nil
}

// ResolveAuto 在自动匹配优惠券中选择折扣最大的一张，无可用时返回 nil
func (s *VoucherService) ResolveAuto(subtotal models.Money, userID uint) (models.Money, *models.Voucher, error) {
	vouchers, err := s.voucherRepo.ListActiveAuto()
	if err != nil {
		return models.Money{}, nil, err
	}

	now := time.Now()
	best := models.Money{}
	var bestVoucher *models.Voucher
	for i := range vouchers {
		candidate := vouchers[i]
		discount, err := s.validateAndCompute(&candidate, subtotal, now)
		if err != nil {
			continue
		}
		if err := s.checkPerUserLimit(s.usageRepo, &candidate, userID); err != nil {
			continue
		}
		if bestVoucher == nil || discount.Decimal.GreaterThan(best.Decimal) {
			best = discount
			bestVoucher = &vouchers[i]
		}
	}
	return best, bestVoucher, nil
}

// TryRedeem 在事务内占用一次使用额度并复核可用性。
// 先做条件自增抢占额度，抢占成功后重新校验时间窗口与门槛，
// 校验失败时在同一事务内回退计数。
func (s *VoucherService) TryRedeem(tx *gorm.DB, voucher *models.Voucher, subtotal models.Money, userID, orderID uint) (models.Money, error) {
	if voucher == nil {
		return models.Money{}, ErrVoucherNotFound
	}
	voucherRepo := s.voucherRepo.WithTx(tx)
	usageRepo := s.usageRepo.WithTx(tx)

	affected, err := voucherRepo.TryReserveUsage(voucher.ID)
	if err != nil {
		return models.Money{}, err
	}
	if affected == 0 {
		return models.Money{}, ErrVoucherExhausted
	}

	current, err := voucherRepo.GetByID(voucher.ID)
	if err != nil {
		return models.Money{}, err
	}
	if current == nil {
		return models.Money{}, ErrVoucherNotFound
	}

	discount, err := s.validateAndCompute(current, subtotal, time.Now())
	if err == nil {
		// 单人上限在事务内用使用记录复核，防止同一用户并发绕过
		err = s.checkPerUserLimit(usageRepo, current, userID)
	}
	if err != nil {
		if _, releaseErr := voucherRepo.ReleaseUsage(voucher.ID); releaseErr != nil {
			return models.Money{}, releaseErr
		}
		return models.Money{}, err
	}

	usage := &models.VoucherUsage{
		VoucherID:      voucher.ID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discount,
		Status:         constants.VoucherUsageStatusActive,
		CreatedAt:      time.Now(),
	}
	if err := usageRepo.Create(usage); err != nil {
		return models.Money{}, err
	}
	return discount, nil
}

// checkPerUserLimit 校验用户是否已达到单人可用次数上限
func (s *VoucherService) checkPerUserLimit(usageRepo repository.VoucherUsageRepository, voucher *models.Voucher, userID uint) error {
	if voucher.PerUserLimit <= 0 || userID == 0 {
		return nil
	}
	used, err := usageRepo.CountByUser(voucher.ID, userID)
	if err != nil {
		return err
	}
	if used >= int64(voucher.PerUserLimit) {
		return ErrVoucherUserLimit
	}
	return nil
}

// Refund 在事务内退回订单占用的使用额度。
// 使用记录的状态翻转保证重复调用只退一次。
func (s *VoucherService) Refund(tx *gorm.DB, orderID uint) error {
	voucherRepo := s.voucherRepo.WithTx(tx)
	usageRepo := s.usageRepo.WithTx(tx)

	usage, err := usageRepo.GetActiveByOrderID(orderID)
	if err != nil {
		return err
	}
	if usage == nil {
		return nil
	}

	affected, err := usageRepo.MarkRefundedByOrder(orderID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return nil
	}
	if _, err := voucherRepo.ReleaseUsage(usage.VoucherID); err != nil {
		return err
	}
	return nil
}

// ListForAdmin 管理端优惠券列表
func (s *VoucherService) ListForAdmin(filter repository.VoucherListFilter) ([]models.Voucher, int64, error) {
	return s.voucherRepo.List(filter)
}

// VoucherInput 管理端优惠券写入参数
type VoucherInput struct {
	Code         string
	Kind         string
	DiscountKind string
	Value        models.Money
	MinAmount    models.Money
	MaxDiscount  models.Money
	UsageLimit   int
	PerUserLimit int
	StartsAt     *time.Time
	ExpiresAt    *time.Time
	Status       string
}

// CreateVoucher 管理端创建优惠券
func (s *VoucherService) CreateVoucher(input VoucherInput) (*models.Voucher, error) {
	voucher, err := buildVoucher(&models.Voucher{Status: constants.VoucherStatusActive}, input)
	if err != nil {
		return nil, err
	}

	if voucher.Code != "" {
		exist, err := s.voucherRepo.GetByCode(voucher.Code)
		if err != nil {
			return nil, err
		}
		if exist != nil {
			return nil, ErrVoucherCodeExists
		}
	}

	if err := s.voucherRepo.Create(voucher); err != nil {
		return nil, err
	}
	return voucher, nil
}

// UpdateVoucher 管理端更新优惠券
func (s *VoucherService) UpdateVoucher(id uint, input VoucherInput) (*models.Voucher, error) {
	current, err := s.voucherRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrVoucherNotFound
	}

	voucher, err := buildVoucher(current, input)
	if err != nil {
		return nil, err
	}
	if voucher.Code != "" {
		exist, err := s.voucherRepo.GetByCode(voucher.Code)
		if err != nil {
			return nil, err
		}
		if exist != nil && exist.ID != id {
			return nil, ErrVoucherCodeExists
		}
	}

	if err := s.voucherRepo.Update(voucher); err != nil {
		return nil, err
	}
	return voucher, nil
}

// DeleteVoucher 管理端删除优惠券
func (s *VoucherService) DeleteVoucher(id uint) error {
	current, err := s.voucherRepo.GetByID(id)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrVoucherNotFound
	}
	return s.voucherRepo.Delete(id)
}

func buildVoucher(voucher *models.Voucher, input VoucherInput) (*models.Voucher, error) {
	code := strings.TrimSpace(input.Code)
	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	discountKind := strings.ToLower(strings.TrimSpace(input.DiscountKind))
	if input.UsageLimit < 0 || input.PerUserLimit < 0 {
		return nil, ErrVoucherInvalid
	}
	if kind != constants.VoucherKindCode && kind != constants.VoucherKindAuto {
		return nil, ErrVoucherInvalid
	}
	// 自动匹配券无需优惠码，手动输入券必须有
	if kind == constants.VoucherKindCode && code == "" {
		return nil, ErrVoucherInvalid
	}
	switch discountKind {
	case constants.DiscountKindFixed:
		if input.Value.Decimal.LessThanOrEqual(decimal.Zero) {
			return nil, ErrVoucherInvalid
		}
	case constants.DiscountKindPercentage:
		if input.Value.Decimal.LessThanOrEqual(decimal.Zero) ||
			input.Value.Decimal.GreaterThan(decimal.NewFromInt(100)) {
			return nil, ErrVoucherInvalid
		}
	default:
		return nil, ErrVoucherInvalid
	}
	if input.StartsAt != nil && input.ExpiresAt != nil && input.ExpiresAt.Before(*input.StartsAt) {
		return nil, ErrVoucherInvalid
	}

	voucher.Code = code
	voucher.Kind = kind
	voucher.DiscountKind = discountKind
	voucher.Value = input.Value
	voucher.MinAmount = input.MinAmount
	voucher.MaxDiscount = input.MaxDiscount
	voucher.UsageLimit = input.UsageLimit
	voucher.PerUserLimit = input.PerUserLimit
	voucher.StartsAt = input.StartsAt
	voucher.ExpiresAt = input.ExpiresAt
	if status := strings.ToLower(strings.TrimSpace(input.Status)); status != "" {
		if status != constants.VoucherStatusActive && status != constants.VoucherStatusInactive {
			return nil, ErrVoucherInvalid
		}
		voucher.Status = status
	}
	return voucher, nil
}

// validateAndCompute 校验优惠券可用性并计算折扣金额
func (s *VoucherService) validateAndCompute(voucher *models.Voucher, subtotal models.Money, now time.Time) (models.Money, error) {
	if voucher.Status != constants.VoucherStatusActive {
		return models.Money{}, ErrVoucherInactive
	}
	if voucher.StartsAt != nil && now.Before(*voucher.StartsAt) {
		return models.Money{}, ErrVoucherNotStarted
	}
	if voucher.ExpiresAt != nil && now.After(*voucher.ExpiresAt) {
		return models.Money{}, ErrVoucherExpired
	}
	if voucher.UsageLimit > 0 && voucher.UsedCount > voucher.UsageLimit {
		return models.Money{}, ErrVoucherExhausted
	}
	// 门槛为严格大于，恰好等于门槛金额的订单不可用
	if voucher.MinAmount.Decimal.GreaterThan(decimal.Zero) &&
		subtotal.Decimal.Cmp(voucher.MinAmount.Decimal) <= 0 {
		return models.Money{}, ErrVoucherMinAmount
	}

	discount, err := s.computeDiscount(voucher, subtotal)
	if err != nil {
		return models.Money{}, err
	}

	if voucher.MaxDiscount.Decimal.GreaterThan(decimal.Zero) && discount.Decimal.GreaterThan(voucher.MaxDiscount.Decimal) {
		discount = models.NewMoneyFromDecimal(voucher.MaxDiscount.Decimal)
	}
	if discount.Decimal.GreaterThan(subtotal.Decimal) {
		discount = models.NewMoneyFromDecimal(subtotal.Decimal)
	}
	return discount, nil
}

func (s *VoucherService) computeDiscount(voucher *models.Voucher, subtotal models.Money) (models.Money, error) {
	switch strings.ToLower(strings.TrimSpace(voucher.DiscountKind)) {
	case constants.DiscountKindFixed:
		if voucher.Value.Decimal.LessThanOrEqual(decimal.Zero) {
			return models.Money{}, ErrVoucherInvalid
		}
		return models.NewMoneyFromDecimal(voucher.Value.Decimal), nil
	case constants.DiscountKindPercentage:
		if voucher.Value.Decimal.LessThanOrEqual(decimal.Zero) {
			return models.Money{}, ErrVoucherInvalid
		}
		percent := voucher.Value.Decimal.Div(decimal.NewFromInt(100))
		// 百分比折扣向下取整到分，避免多扣
		discount := subtotal.Decimal.Mul(percent).Mul(decimal.NewFromInt(100)).Floor().Div(decimal.NewFromInt(100))
		return models.NewMoneyFromDecimal(discount), nil
	default:
		return models.Money{}, ErrVoucherInvalid
	}
}

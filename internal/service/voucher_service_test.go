package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupVoucherTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Voucher{}, &models.VoucherUsage{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func newVoucherTestService(db *gorm.DB) *VoucherService {
	return NewVoucherService(repository.NewVoucherRepository(db), repository.NewVoucherUsageRepository(db))
}

func money(value int64) models.Money {
	return models.NewMoneyFromDecimal(decimal.NewFromInt(value))
}

func TestResolveValidatesTimeWindow(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_time_window")
	svc := newVoucherTestService(db)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expired := models.Voucher{
		Code:         "EXPIRED",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
		Status:       constants.VoucherStatusActive,
		ExpiresAt:    &past,
	}
	notStarted := models.Voucher{
		Code:         "SOON",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
		Status:       constants.VoucherStatusActive,
		StartsAt:     &future,
	}
	inactive := models.Voucher{
		Code:         "OFF",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
		Status:       constants.VoucherStatusInactive,
	}
	for _, v := range []*models.Voucher{&expired, &notStarted, &inactive} {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("create voucher failed: %v", err)
		}
	}

	if _, _, err := svc.Resolve(money(100), "EXPIRED", 1); !errors.Is(err, ErrVoucherExpired) {
		t.Fatalf("expected voucher expired, got: %v", err)
	}
	if _, _, err := svc.Resolve(money(100), "SOON", 1); !errors.Is(err, ErrVoucherNotStarted) {
		t.Fatalf("expected voucher not started, got: %v", err)
	}
	if _, _, err := svc.Resolve(money(100), "OFF", 1); !errors.Is(err, ErrVoucherInactive) {
		t.Fatalf("expected voucher inactive, got: %v", err)
	}
	if _, _, err := svc.Resolve(money(100), "MISSING", 1); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("expected voucher not found, got: %v", err)
	}
}

func TestResolveMinAmountThreshold(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_min_amount")
	svc := newVoucherTestService(db)

	voucher := models.Voucher{
		Code:         "MIN500",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(50),
		MinAmount:    money(500),
		Status:       constants.VoucherStatusActive,
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	// 门槛为严格大于：恰好等于门槛的订单同样被拒
	if _, _, err := svc.Resolve(money(499), "MIN500", 1); !errors.Is(err, ErrVoucherMinAmount) {
		t.Fatalf("expected min amount rejection, got: %v", err)
	}
	if _, _, err := svc.Resolve(money(500), "MIN500", 1); !errors.Is(err, ErrVoucherMinAmount) {
		t.Fatalf("expected min amount rejection at threshold, got: %v", err)
	}
	discount, _, err := svc.Resolve(money(501), "MIN500", 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !discount.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected discount 50, got %s", discount.String())
	}
}

func TestResolvePercentageDiscountFlooredAndCapped(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_percentage")
	svc := newVoucherTestService(db)

	voucher := models.Voucher{
		Code:         "PCT15",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindPercentage,
		Value:        money(15),
		MaxDiscount:  money(100),
		Status:       constants.VoucherStatusActive,
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	// 15% of 333.33 = 49.9995，向下取整到 49.99
	subtotal := models.NewMoneyFromDecimal(decimal.RequireFromString("333.33"))
	discount, _, err := svc.Resolve(subtotal, "PCT15", 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !discount.Decimal.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("expected 49.99, got %s", discount.String())
	}

	// 15% of 10000 = 1500，被 MaxDiscount 截断到 100
	discount, _, err = svc.Resolve(money(10000), "PCT15", 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !discount.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected capped discount 100, got %s", discount.String())
	}
}

func TestResolveFixedDiscountClampedToSubtotal(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_clamp")
	svc := newVoucherTestService(db)

	voucher := models.Voucher{
		Code:         "BIG",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(500),
		Status:       constants.VoucherStatusActive,
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	discount, _, err := svc.Resolve(money(80), "BIG", 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !discount.Decimal.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected discount clamped to 80, got %s", discount.String())
	}
}

func TestTryRedeemRespectsUsageLimit(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_usage_limit")
	svc := newVoucherTestService(db)

	voucher := models.Voucher{
		Code:         "LIMIT2",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
		UsageLimit:   2,
		Status:       constants.VoucherStatusActive,
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	for i := uint(1); i <= 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.TryRedeem(tx, &voucher, money(100), i, i)
			return err
		})
		if err != nil {
			t.Fatalf("redeem %d failed: %v", i, err)
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.TryRedeem(tx, &voucher, money(100), 3, 3)
		return err
	})
	if !errors.Is(err, ErrVoucherExhausted) {
		t.Fatalf("expected voucher exhausted, got: %v", err)
	}

	var current models.Voucher
	if err := db.First(&current, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if current.UsedCount != 2 {
		t.Fatalf("expected used_count 2, got %d", current.UsedCount)
	}
}

func TestTryRedeemRollsBackReservationOnValidationFailure(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_redeem_rollback")
	svc := newVoucherTestService(db)

	past := time.Now().Add(-time.Minute)
	voucher := models.Voucher{
		Code:         "RACE",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
		Status:       constants.VoucherStatusActive,
		ExpiresAt:    &past,
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.TryRedeem(tx, &voucher, money(100), 1, 1)
		if !errors.Is(err, ErrVoucherExpired) {
			t.Fatalf("expected voucher expired, got: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	var current models.Voucher
	if err := db.First(&current, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if current.UsedCount != 0 {
		t.Fatalf("expected reservation rolled back, used_count %d", current.UsedCount)
	}
	var usageCount int64
	if err := db.Model(&models.VoucherUsage{}).Count(&usageCount).Error; err != nil {
		t.Fatalf("count usages failed: %v", err)
	}
	if usageCount != 0 {
		t.Fatalf("expected no usage rows, got %d", usageCount)
	}
}

func TestRefundIsIdempotent(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_refund")
	svc := newVoucherTestService(db)

	voucher := models.Voucher{
		Code:         "REFUND",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
		UsageLimit:   5,
		Status:       constants.VoucherStatusActive,
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	const orderID = 42
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.TryRedeem(tx, &voucher, money(100), 1, orderID)
		return err
	})
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.Refund(tx, orderID)
		})
		if err != nil {
			t.Fatalf("refund %d failed: %v", i, err)
		}
	}

	var current models.Voucher
	if err := db.First(&current, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if current.UsedCount != 0 {
		t.Fatalf("expected used_count back to 0, got %d", current.UsedCount)
	}
	var usage models.VoucherUsage
	if err := db.Where("order_id = ?", orderID).First(&usage).Error; err != nil {
		t.Fatalf("load usage failed: %v", err)
	}
	if usage.Status != constants.VoucherUsageStatusRefunded || usage.RefundedAt == nil {
		t.Fatalf("expected refunded usage, got status %s", usage.Status)
	}
}

func TestResolveAutoPicksBestDiscount(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_auto_best")
	svc := newVoucherTestService(db)

	small := models.Voucher{
		Code:         "AUTO10",
		Kind:         constants.VoucherKindAuto,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
		Status:       constants.VoucherStatusActive,
	}
	big := models.Voucher{
		Code:         "AUTO30",
		Kind:         constants.VoucherKindAuto,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(30),
		Status:       constants.VoucherStatusActive,
	}
	gated := models.Voucher{
		Code:         "AUTO99",
		Kind:         constants.VoucherKindAuto,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(99),
		MinAmount:    money(100000),
		Status:       constants.VoucherStatusActive,
	}
	for _, v := range []*models.Voucher{&small, &big, &gated} {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("create voucher failed: %v", err)
		}
	}

	discount, picked, err := svc.ResolveAuto(money(200), 1)
	if err != nil {
		t.Fatalf("resolve auto failed: %v", err)
	}
	if picked == nil || picked.Code != "AUTO30" {
		t.Fatalf("expected AUTO30 picked, got %+v", picked)
	}
	if !discount.Decimal.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected discount 30, got %s", discount.String())
	}
}

func TestResolveAutoReturnsNilWhenNoneApplicable(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_auto_none")
	svc := newVoucherTestService(db)

	_, picked, err := svc.ResolveAuto(money(200), 1)
	if err != nil {
		t.Fatalf("resolve auto failed: %v", err)
	}
	if picked != nil {
		t.Fatalf("expected no voucher, got %+v", picked)
	}
}

func TestPerUserLimitBlocksRepeatUse(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_per_user")
	svc := newVoucherTestService(db)

	voucher := models.Voucher{
		Code:         "ONEPER",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
		UsageLimit:   10,
		PerUserLimit: 1,
		Status:       constants.VoucherStatusActive,
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.TryRedeem(tx, &voucher, money(100), 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}

	// 同一用户再次使用：预检与事务内复核都必须拒绝
	if _, _, err := svc.Resolve(money(100), "ONEPER", 1); !errors.Is(err, ErrVoucherUserLimit) {
		t.Fatalf("expected user limit rejection, got: %v", err)
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.TryRedeem(tx, &voucher, money(100), 1, 2)
		return err
	})
	if !errors.Is(err, ErrVoucherUserLimit) {
		t.Fatalf("expected user limit rejection in redeem, got: %v", err)
	}

	var current models.Voucher
	if err := db.First(&current, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if current.UsedCount != 1 {
		t.Fatalf("expected rejected redeem to release reservation, used_count %d", current.UsedCount)
	}

	// 其他用户不受影响
	if _, _, err := svc.Resolve(money(100), "ONEPER", 2); err != nil {
		t.Fatalf("resolve for other user failed: %v", err)
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.TryRedeem(tx, &voucher, money(100), 2, 3)
		return err
	})
	if err != nil {
		t.Fatalf("redeem for other user failed: %v", err)
	}
}

func TestResolveAutoSkipsVouchersOverPerUserLimit(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_auto_per_user")
	svc := newVoucherTestService(db)

	used := models.Voucher{
		Kind:         constants.VoucherKindAuto,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(90),
		PerUserLimit: 1,
		Status:       constants.VoucherStatusActive,
	}
	open := models.Voucher{
		Kind:         constants.VoucherKindAuto,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(20),
		Status:       constants.VoucherStatusActive,
	}
	for _, v := range []*models.Voucher{&used, &open} {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("create voucher failed: %v", err)
		}
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.TryRedeem(tx, &used, money(100), 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	// 用户 1 已用完大额券，自动匹配落到次优的一张
	_, picked, err := svc.ResolveAuto(money(200), 1)
	if err != nil {
		t.Fatalf("resolve auto failed: %v", err)
	}
	if picked == nil || picked.ID != open.ID {
		t.Fatalf("expected fallback voucher picked, got %+v", picked)
	}

	_, picked, err = svc.ResolveAuto(money(200), 2)
	if err != nil {
		t.Fatalf("resolve auto failed: %v", err)
	}
	if picked == nil || picked.ID != used.ID {
		t.Fatalf("expected best voucher for fresh user, got %+v", picked)
	}
}

func TestCreateVoucherAllowsCodelessAutoKind(t *testing.T) {
	db := setupVoucherTestDB(t, "voucher_codeless_auto")
	svc := newVoucherTestService(db)

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateVoucher(VoucherInput{
			Kind:         constants.VoucherKindAuto,
			DiscountKind: constants.DiscountKindFixed,
			Value:        money(10),
		}); err != nil {
			t.Fatalf("create codeless auto voucher %d failed: %v", i, err)
		}
	}

	// 手动输入券必须携带优惠码
	if _, err := svc.CreateVoucher(VoucherInput{
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
	}); !errors.Is(err, ErrVoucherInvalid) {
		t.Fatalf("expected invalid voucher for codeless code kind, got: %v", err)
	}

	if _, err := svc.CreateVoucher(VoucherInput{
		Code:         "DUP",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
	}); err != nil {
		t.Fatalf("create coded voucher failed: %v", err)
	}
	if _, err := svc.CreateVoucher(VoucherInput{
		Code:         "DUP",
		Kind:         constants.VoucherKindCode,
		DiscountKind: constants.DiscountKindFixed,
		Value:        money(10),
	}); !errors.Is(err, ErrVoucherCodeExists) {
		t.Fatalf("expected duplicate code rejection, got: %v", err)
	}
}

package service

import (
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

func setupNotificationTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Notification{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func newNotificationTestService(db *gorm.DB) *NotificationService {
	return NewNotificationService(
		repository.NewNotificationRepository(db),
		repository.NewUserRepository(db),
		nil,
	)
}

func TestNotifyOrderEventReachesUserAndAdmins(t *testing.T) {
	db := setupNotificationTestDB(t, "notify_order")
	svc := newNotificationTestService(db)

	buyer := models.User{Email: "buyer@example.com", PasswordHash: "x", Role: constants.UserRoleCustomer}
	admin := models.User{Email: "admin@example.com", PasswordHash: "x", Role: constants.UserRoleAdmin}
	if err := db.Create(&buyer).Error; err != nil {
		t.Fatalf("create buyer failed: %v", err)
	}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}

	order := &models.Order{
		OrderNo:     "LT20240901120000000009",
		UserID:      buyer.ID,
		Status:      constants.OrderStatusPaymentSuccess,
		TotalAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(1500)),
	}
	order.ID = 9
	if err := svc.NotifyOrderEvent(order, constants.NotificationTypeOrderPaid); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	var buyerNotes []models.Notification
	if err := db.Where("user_id = ?", buyer.ID).Find(&buyerNotes).Error; err != nil {
		t.Fatalf("load buyer notifications failed: %v", err)
	}
	if len(buyerNotes) != 1 {
		t.Fatalf("expected 1 buyer notification, got %d", len(buyerNotes))
	}
	if buyerNotes[0].Type != constants.NotificationTypeOrderPaid || buyerNotes[0].OrderID != order.ID {
		t.Fatalf("unexpected notification: %+v", buyerNotes[0])
	}

	var adminNotes []models.Notification
	if err := db.Where("user_id = ?", admin.ID).Find(&adminNotes).Error; err != nil {
		t.Fatalf("load admin notifications failed: %v", err)
	}
	if len(adminNotes) != 1 {
		t.Fatalf("expected admin copy, got %d", len(adminNotes))
	}

	// nil 订单直接忽略
	if err := svc.NotifyOrderEvent(nil, constants.NotificationTypeOrderPaid); err != nil {
		t.Fatalf("nil order should be ignored, got: %v", err)
	}
}

func TestNotifyOrderEventAdminIsNotDoubleNotified(t *testing.T) {
	db := setupNotificationTestDB(t, "notify_admin_self")
	svc := newNotificationTestService(db)

	admin := models.User{Email: "admin@example.com", PasswordHash: "x", Role: constants.UserRoleAdmin}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}

	order := &models.Order{
		OrderNo:     "LT20240901120000000010",
		UserID:      admin.ID,
		TotalAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
	}
	if err := svc.NotifyOrderEvent(order, constants.NotificationTypeOrderCreated); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	var count int64
	if err := db.Model(&models.Notification{}).Where("user_id = ?", admin.ID).Count(&count).Error; err != nil {
		t.Fatalf("count notifications failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single notification for admin buyer, got %d", count)
	}
}

func TestMarkReadIsIdempotentAndOwnerScoped(t *testing.T) {
	db := setupNotificationTestDB(t, "notify_mark_read")
	svc := newNotificationTestService(db)

	note := models.Notification{UserID: 1, OrderID: 2, Type: constants.NotificationTypeOrderCreated, Title: "t", Body: "b"}
	if err := db.Create(&note).Error; err != nil {
		t.Fatalf("create notification failed: %v", err)
	}

	if err := svc.MarkRead(note.ID, 1); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	var current models.Notification
	if err := db.First(&current, note.ID).Error; err != nil {
		t.Fatalf("reload notification failed: %v", err)
	}
	if current.ReadAt == nil {
		t.Fatalf("expected read_at set")
	}
	firstReadAt := *current.ReadAt

	// 重复标记与他人标记都不改变 read_at
	if err := svc.MarkRead(note.ID, 1); err != nil {
		t.Fatalf("repeated mark read failed: %v", err)
	}
	if err := svc.MarkRead(note.ID, 99); err != nil {
		t.Fatalf("other user mark read should be no-op, got: %v", err)
	}
	if err := db.First(&current, note.ID).Error; err != nil {
		t.Fatalf("reload notification failed: %v", err)
	}
	if !current.ReadAt.Equal(firstReadAt) {
		t.Fatalf("read_at changed on repeated mark")
	}
}

func TestListByUserOnlyUnread(t *testing.T) {
	db := setupNotificationTestDB(t, "notify_list")
	svc := newNotificationTestService(db)

	now := time.Now()
	seed := []models.Notification{
		{UserID: 1, Type: constants.NotificationTypeOrderCreated, Title: "a"},
		{UserID: 1, Type: constants.NotificationTypeOrderPaid, Title: "b", ReadAt: &now},
		{UserID: 2, Type: constants.NotificationTypeOrderCreated, Title: "c"},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("create notification failed: %v", err)
		}
	}

	_, total, err := svc.ListByUser(repository.NotificationListFilter{UserID: 1})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 notifications, got %d", total)
	}

	notes, total, err := svc.ListByUser(repository.NotificationListFilter{UserID: 1, OnlyUnread: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || notes[0].Title != "a" {
		t.Fatalf("expected single unread notification, got %d", total)
	}

	_, total, err = svc.ListByUser(repository.NotificationListFilter{UserID: 1, Type: constants.NotificationTypeOrderPaid})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 paid-type notification, got %d", total)
	}
}

package service

import (
	"context"
	"fmt"

	"github.com/laptop-next/internal/cache"
	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/logger"
	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/queue"
	"github.com/laptop-next/internal/repository"
)

// NotificationService 通知服务
type NotificationService struct {
	notificationRepo repository.NotificationRepository
	userRepo         repository.UserRepository
	queueClient      *queue.Client
}

// NewNotificationService 创建通知服务
func NewNotificationService(notificationRepo repository.NotificationRepository, userRepo repository.UserRepository, queueClient *queue.Client) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		queueClient:      queueClient,
	}
}

// NotifyOrderEvent 投递订单事件通知。
// 队列可用时异步分发，不可用时直接落库，两种路径都不阻塞订单主流程。
func (s *NotificationService) NotifyOrderEvent(order *models.Order, eventType string) error {
	if order == nil {
		return nil
	}
	title, body := buildOrderNotification(order, eventType)
	payload := queue.NotificationDispatchPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Type:    eventType,
		Title:   title,
		Body:    body,
	}
	if s.queueClient != nil && s.queueClient.Enabled() {
		return s.queueClient.EnqueueNotificationDispatch(payload)
	}
	return s.Dispatch(context.Background(), payload)
}

// Dispatch 分发通知：落库并向在线频道广播，管理员同步抄送
func (s *NotificationService) Dispatch(ctx context.Context, payload queue.NotificationDispatchPayload) error {
	recipients := []uint{}
	if payload.UserID != 0 {
		recipients = append(recipients, payload.UserID)
	}
	if s.userRepo != nil {
		admins, err := s.userRepo.ListAdmins()
		if err != nil {
			logger.Warnw("notification_list_admins_failed", "error", err)
		} else {
			for _, admin := range admins {
				if admin.ID == payload.UserID {
					continue
				}
				recipients = append(recipients, admin.ID)
			}
		}
	}

	for _, userID := range recipients {
		notification := &models.Notification{
			UserID:  userID,
			OrderID: payload.OrderID,
			Type:    payload.Type,
			Title:   payload.Title,
			Body:    payload.Body,
		}
		if err := s.notificationRepo.Create(notification); err != nil {
			return err
		}
		channel := fmt.Sprintf("%s%d", constants.NotificationChannelPrefix, userID)
		if err := cache.PublishJSON(ctx, channel, notification); err != nil {
			logger.Warnw("notification_publish_failed",
				"user_id", userID,
				"channel", channel,
				"error", err,
			)
		}
	}
	return nil
}

// ListByUser 获取用户通知列表
func (s *NotificationService) ListByUser(filter repository.NotificationListFilter) ([]models.Notification, int64, error) {
	return s.notificationRepo.ListByUser(filter)
}

// MarkRead 标记通知已读
func (s *NotificationService) MarkRead(id uint, userID uint) error {
	_, err := s.notificationRepo.MarkRead(id, userID)
	return err
}

func buildOrderNotification(order *models.Order, eventType string) (string, string) {
	switch eventType {
	case constants.NotificationTypeOrderCreated:
		return "订单已创建", fmt.Sprintf("订单 %s 已创建，应付金额 %s", order.OrderNo, order.TotalAmount.String())
	case constants.NotificationTypeOrderPaid:
		return "订单支付成功", fmt.Sprintf("订单 %s 已支付，金额 %s", order.OrderNo, order.TotalAmount.String())
	case constants.NotificationTypeOrderCanceled:
		return "订单已取消", fmt.Sprintf("订单 %s 已取消", order.OrderNo)
	case constants.NotificationTypeOrderCompleted:
		return "订单已完成", fmt.Sprintf("订单 %s 已完成", order.OrderNo)
	case constants.NotificationTypePaymentFailed:
		return "订单支付失败", fmt.Sprintf("订单 %s 支付失败，可重新发起支付", order.OrderNo)
	default:
		return "订单状态更新", fmt.Sprintf("订单 %s 状态更新为 %s", order.OrderNo, order.Status)
	}
}

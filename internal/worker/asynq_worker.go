package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/logger"
	"github.com/laptop-next/internal/provider"
	"github.com/laptop-next/internal/queue"
	"github.com/laptop-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(constants.TaskNotificationDispatch, c.handleNotificationDispatch)
	mux.HandleFunc(constants.TaskOrderTimeoutCancel, c.handleOrderTimeoutCancel)
}

func (c *Consumer) handleNotificationDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_notification_dispatch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.NotificationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notification_dispatch_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 || payload.Type == "" {
		logger.Debugw("worker_notification_dispatch_skip_invalid_payload",
			"order_id", payload.OrderID,
			"type", payload.Type,
		)
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_notification_dispatch_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	if err := c.NotificationService.Dispatch(ctx, payload); err != nil {
		logger.Warnw("worker_notification_dispatch_failed",
			"order_id", payload.OrderID,
			"type", payload.Type,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderTimeoutCancel(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_timeout_cancel_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderTimeoutCancelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_timeout_cancel_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_timeout_cancel_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.OrderService == nil {
		logger.Warnw("worker_order_timeout_cancel_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	order, err := c.OrderService.CancelExpiredOrder(payload.OrderID)
	if err != nil {
		// 状态竞争（已支付、已取消）按正常结束处理
		if errors.Is(err, service.ErrOrderCancelNotAllowed) || errors.Is(err, service.ErrOrderNotFound) {
			logger.Debugw("worker_order_timeout_cancel_skip", "order_id", payload.OrderID, "reason", err)
			return nil
		}
		logger.Warnw("worker_order_timeout_cancel_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if order != nil && order.Status == constants.OrderStatusCanceled {
		logger.Infow("worker_order_timeout_canceled", "order_id", order.ID, "order_no", order.OrderNo)
	}
	return nil
}

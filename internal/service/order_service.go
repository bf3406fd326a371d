package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/logger"
	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/queue"
	"github.com/laptop-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderService 订单服务
type OrderService struct {
	db                  *gorm.DB
	orderRepo           repository.OrderRepository
	productRepo         repository.ProductRepository
	voucherService      *VoucherService
	notificationService *NotificationService
	gateway             PaymentGateway
	queueClient         *queue.Client
	expireMinutes       int
}

// NewOrderService 创建订单服务
func NewOrderService(db *gorm.DB, orderRepo repository.OrderRepository, productRepo repository.ProductRepository, voucherService *VoucherService, notificationService *NotificationService, gateway PaymentGateway, queueClient *queue.Client, expireMinutes int) *OrderService {
	return &OrderService{
		db:                  db,
		orderRepo:           orderRepo,
		productRepo:         productRepo,
		voucherService:      voucherService,
		notificationService: notificationService,
		gateway:             gateway,
		queueClient:         queueClient,
		expireMinutes:       expireMinutes,
	}
}

// CreateOrderItem 下单项
type CreateOrderItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// CreateOrderInput 创建订单输入
type CreateOrderInput struct {
	UserID        uint
	Items         []CreateOrderItem
	PaymentMethod string
	VoucherCode   string
	ShippingAddr  string
	Note          string
	ClientIP      string
}

// 可取消的订单状态，已支付订单同样允许取消（终态除外）
var cancelableStatuses = []string{
	constants.OrderStatusPending,
	constants.OrderStatusPaymentPending,
	constants.OrderStatusPaymentFail,
	constants.OrderStatusPaymentSuccess,
}

var allowedTransitions = map[string]map[string]bool{
	constants.OrderStatusPending: {
		constants.OrderStatusCompleted: true,
		constants.OrderStatusCanceled:  true,
	},
	constants.OrderStatusPaymentPending: {
		constants.OrderStatusPaymentSuccess: true,
		constants.OrderStatusPaymentFail:    true,
		constants.OrderStatusCanceled:       true,
	},
	constants.OrderStatusPaymentFail: {
		constants.OrderStatusPaymentPending: true,
		constants.OrderStatusCanceled:       true,
	},
	constants.OrderStatusPaymentSuccess: {
		constants.OrderStatusCompleted: true,
		constants.OrderStatusCanceled:  true,
	},
}

// CreateOrder 创建订单。
// 订单、订单项、库存扣减、优惠券占用在同一事务内提交，
// 任何一步失败则全部回滚。
func (s *OrderService) CreateOrder(input CreateOrderInput) (*models.Order, error) {
	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if method != constants.PaymentMethodCash && method != constants.PaymentMethodOnline {
		return nil, ErrPaymentMethodInvalid
	}

	items, err := mergeCreateOrderItems(input.Items)
	if err != nil {
		return nil, err
	}

	build, err := s.buildOrderItems(items)
	if err != nil {
		return nil, err
	}
	subtotal := models.NewMoneyFromDecimal(build.Subtotal)

	// 优惠券预检：显式优惠码校验失败直接拒单，自动匹配失败静默跳过
	var voucher *models.Voucher
	explicitVoucher := strings.TrimSpace(input.VoucherCode) != ""
	if explicitVoucher {
		_, resolved, resolveErr := s.voucherService.Resolve(subtotal, input.VoucherCode, input.UserID)
		if resolveErr != nil {
			return nil, resolveErr
		}
		voucher = resolved
	} else {
		_, resolved, resolveErr := s.voucherService.ResolveAuto(subtotal, input.UserID)
		if resolveErr != nil {
			return nil, resolveErr
		}
		voucher = resolved
	}

	now := time.Now()
	status := constants.OrderStatusPending
	var expiresAt *time.Time
	if method == constants.PaymentMethodOnline {
		status = constants.OrderStatusPaymentPending
		deadline := now.Add(time.Duration(s.resolveExpireMinutes()) * time.Minute)
		expiresAt = &deadline
	}

	order := &models.Order{
		OrderNo:        generateOrderNo(),
		UserID:         input.UserID,
		Status:         status,
		PaymentMethod:  method,
		Currency:       "VND",
		OriginalAmount: subtotal,
		DiscountAmount: models.NewMoneyFromDecimal(decimal.Zero),
		TotalAmount:    subtotal,
		ShippingAddr:   strings.TrimSpace(input.ShippingAddr),
		Note:           strings.TrimSpace(input.Note),
		ClientIP:       strings.TrimSpace(input.ClientIP),
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		productRepo := s.productRepo.WithTx(tx)

		if err := orderRepo.Create(order, build.Items); err != nil {
			return err
		}

		for _, item := range build.Items {
			affected, err := productRepo.ReserveStock(item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrInsufficientStock
			}
		}

		if voucher != nil {
			discount, redeemErr := s.voucherService.TryRedeem(tx, voucher, subtotal, input.UserID, order.ID)
			if redeemErr != nil {
				if explicitVoucher {
					return redeemErr
				}
				// 自动匹配的优惠券抢占失败不影响下单
				voucher = nil
			} else {
				total := models.NewMoneyFromDecimal(subtotal.Decimal.Sub(discount.Decimal))
				order.VoucherID = &voucher.ID
				order.DiscountAmount = discount
				order.TotalAmount = total
				if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
					"voucher_id":      voucher.ID,
					"discount_amount": discount,
					"total_amount":    total,
				}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if isOrderBusinessError(err) {
			return nil, err
		}
		logger.Errorw("order_create_tx_failed",
			"order_no", order.OrderNo,
			"user_id", input.UserID,
			"error", err,
		)
		return nil, ErrOrderCreateFailed
	}

	if method == constants.PaymentMethodOnline && s.queueClient != nil {
		if err := s.queueClient.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{
			OrderID: order.ID,
		}, time.Duration(s.resolveExpireMinutes())*time.Minute); err != nil {
			logger.Warnw("order_enqueue_timeout_cancel_failed",
				"order_id", order.ID,
				"order_no", order.OrderNo,
				"error", err,
			)
		}
	}

	if full, fetchErr := s.orderRepo.GetByID(order.ID); fetchErr == nil && full != nil {
		order = full
	}

	// 在线订单提交后立即调用网关创建支付单；网关调用不在下单事务内，
	// 失败只影响支付状态，已提交的订单与库存保持不变
	if method == constants.PaymentMethodOnline {
		if payErr := s.startInitialPayment(order); payErr != nil {
			s.notifyOrderEvent(order, constants.NotificationTypeOrderCreated)
			return order, payErr
		}
	}

	s.notifyOrderEvent(order, constants.NotificationTypeOrderCreated)
	return order, nil
}

// startInitialPayment 为刚创建的在线订单请求收银台地址。
// 网关成功时落盘交易号与支付地址；失败时订单翻转为支付失败，可重新发起。
func (s *OrderService) startInitialPayment(order *models.Order) error {
	if s.gateway == nil || !s.gateway.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	intent, err := s.gateway.CreateOrder(ctx, order)
	if err != nil {
		logger.Errorw("order_initial_payment_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"error", err,
		)
		s.markInitialPaymentFailed(order)
		return ErrPaymentGatewayFailed
	}

	if err := s.orderRepo.UpdateStatus(order.ID, order.Status, map[string]interface{}{
		"payment_trans_no": intent.TransNo,
		"payment_url":      intent.PayURL,
		"updated_at":       time.Now(),
	}); err != nil {
		logger.Warnw("order_payment_intent_save_failed",
			"order_id", order.ID,
			"trans_no", intent.TransNo,
			"error", err,
		)
	}
	order.PaymentTransNo = intent.TransNo
	order.PaymentURL = intent.PayURL
	return nil
}

// markInitialPaymentFailed 网关调用失败后条件翻转为支付失败
func (s *OrderService) markInitialPaymentFailed(order *models.Order) {
	affected, err := s.orderRepo.UpdateStatusFrom(order.ID, []string{constants.OrderStatusPaymentPending}, constants.OrderStatusPaymentFail, map[string]interface{}{
		"updated_at": time.Now(),
	})
	if err != nil {
		logger.Errorw("order_mark_payment_failed_error", "order_id", order.ID, "error", err)
		return
	}
	if affected == 0 {
		return
	}
	order.Status = constants.OrderStatusPaymentFail
	s.notifyOrderEvent(order, constants.NotificationTypePaymentFailed)
}

// CancelOrder 用户取消订单。
// 状态翻转使用条件更新，确保补偿只执行一次。
func (s *OrderService) CancelOrder(orderID uint, userID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if err := s.cancelOrder(order); err != nil {
		return nil, err
	}
	s.notifyOrderEvent(order, constants.NotificationTypeOrderCanceled)
	return order, nil
}

// CancelExpiredOrder 取消超时未支付的订单（队列任务触发）
func (s *OrderService) CancelExpiredOrder(orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusPaymentPending {
		return order, nil
	}
	if order.ExpiresAt != nil && time.Now().Before(*order.ExpiresAt) {
		return order, nil
	}
	if err := s.cancelOrder(order); err != nil {
		if errors.Is(err, ErrOrderCancelNotAllowed) {
			// 任务执行前订单状态已变更（例如刚好支付成功）
			return order, nil
		}
		return nil, err
	}
	s.notifyOrderEvent(order, constants.NotificationTypeOrderCanceled)
	return order, nil
}

// cancelOrder 执行取消事务：状态翻转、库存回补、优惠券额度退回。
// 先条件翻转到取消中占住订单，补偿完成后落到已取消，
// 第一次翻转的行数守卫保证补偿只执行一次。
func (s *OrderService) cancelOrder(order *models.Order) error {
	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		productRepo := s.productRepo.WithTx(tx)

		affected, err := orderRepo.UpdateStatusFrom(order.ID, cancelableStatuses, constants.OrderStatusCanceling, map[string]interface{}{
			"updated_at": now,
		})
		if err != nil {
			return ErrOrderUpdateFailed
		}
		if affected == 0 {
			return ErrOrderCancelNotAllowed
		}

		for _, item := range order.Items {
			if _, err := productRepo.ReleaseStock(item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := s.voucherService.Refund(tx, order.ID); err != nil {
			return err
		}

		if _, err := orderRepo.UpdateStatusFrom(order.ID, []string{constants.OrderStatusCanceling}, constants.OrderStatusCanceled, map[string]interface{}{
			"canceled_at": now,
			"updated_at":  now,
		}); err != nil {
			return ErrOrderUpdateFailed
		}
		return nil
	})
	if err != nil {
		return err
	}
	order.Status = constants.OrderStatusCanceled
	order.CanceledAt = &now
	order.UpdatedAt = now
	return nil
}

// UpdateOrderStatus 管理端更新订单状态
func (s *OrderService) UpdateOrderStatus(orderID uint, targetStatus string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !isTransitionAllowed(order.Status, targetStatus) {
		return nil, ErrOrderStatusInvalid
	}

	now := time.Now()
	switch targetStatus {
	case constants.OrderStatusCanceled:
		if err := s.cancelOrder(order); err != nil {
			return nil, err
		}
		s.notifyOrderEvent(order, constants.NotificationTypeOrderCanceled)
	case constants.OrderStatusCompleted:
		affected, err := s.orderRepo.UpdateStatusFrom(order.ID, []string{order.Status}, constants.OrderStatusCompleted, map[string]interface{}{
			"completed_at": now,
			"updated_at":   now,
		})
		if err != nil {
			return nil, ErrOrderUpdateFailed
		}
		if affected == 0 {
			return nil, ErrOrderStatusInvalid
		}
		order.Status = constants.OrderStatusCompleted
		order.CompletedAt = &now
		s.notifyOrderEvent(order, constants.NotificationTypeOrderCompleted)
	case constants.OrderStatusPaymentSuccess:
		affected, err := s.orderRepo.UpdateStatusFrom(order.ID, []string{constants.OrderStatusPaymentPending}, constants.OrderStatusPaymentSuccess, map[string]interface{}{
			"paid_at":    now,
			"updated_at": now,
		})
		if err != nil {
			return nil, ErrOrderUpdateFailed
		}
		if affected == 0 {
			return nil, ErrOrderStatusInvalid
		}
		order.Status = constants.OrderStatusPaymentSuccess
		order.PaidAt = &now
		s.notifyOrderEvent(order, constants.NotificationTypeOrderPaid)
	case constants.OrderStatusPaymentPending:
		affected, err := s.orderRepo.UpdateStatusFrom(order.ID, []string{constants.OrderStatusPaymentFail}, constants.OrderStatusPaymentPending, map[string]interface{}{
			"updated_at": now,
		})
		if err != nil {
			return nil, ErrOrderUpdateFailed
		}
		if affected == 0 {
			return nil, ErrOrderStatusInvalid
		}
		order.Status = constants.OrderStatusPaymentPending
	default:
		return nil, ErrOrderStatusInvalid
	}
	return order, nil
}

// GetOrderByUser 获取用户订单详情
func (s *OrderService) GetOrderByUser(orderID uint, userID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrdersByUser 获取用户订单列表
func (s *OrderService) ListOrdersByUser(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	orders, total, err := s.orderRepo.ListByUser(filter)
	if err != nil {
		return nil, 0, ErrOrderFetchFailed
	}
	return orders, total, nil
}

// ListOrdersForAdmin 管理端订单列表
func (s *OrderService) ListOrdersForAdmin(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	orders, total, err := s.orderRepo.ListAdmin(filter)
	if err != nil {
		return nil, 0, ErrOrderFetchFailed
	}
	return orders, total, nil
}

// GetOrderForAdmin 管理端订单详情
func (s *OrderService) GetOrderForAdmin(orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

type orderItemsBuild struct {
	Items    []models.OrderItem
	Subtotal decimal.Decimal
}

// buildOrderItems 校验下单项并生成订单项快照
func (s *OrderService) buildOrderItems(items []CreateOrderItem) (*orderItemsBuild, error) {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	productByID := make(map[uint]*models.Product, len(products))
	for i := range products {
		productByID[products[i].ID] = &products[i]
	}

	now := time.Now()
	subtotal := decimal.Zero
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		product, ok := productByID[item.ProductID]
		if !ok {
			return nil, ErrProductNotFound
		}
		if !product.IsActive {
			return nil, ErrProductInactive
		}
		// 预检仅为快速反馈，真正防超卖靠事务内的条件扣减
		if product.AvailableQuantity < item.Quantity {
			return nil, ErrInsufficientStock
		}
		lineTotal := product.PriceAmount.Decimal.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		orderItems = append(orderItems, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Brand:       product.Brand,
			SpecJSON:    product.SpecJSON,
			UnitPrice:   product.PriceAmount,
			Quantity:    item.Quantity,
			TotalPrice:  models.NewMoneyFromDecimal(lineTotal),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return &orderItemsBuild{Items: orderItems, Subtotal: subtotal}, nil
}

// notifyOrderEvent 触发订单事件通知，失败只记录日志不影响主流程
func (s *OrderService) notifyOrderEvent(order *models.Order, eventType string) {
	if s.notificationService == nil || order == nil {
		return
	}
	if err := s.notificationService.NotifyOrderEvent(order, eventType); err != nil {
		logger.Warnw("order_notify_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"event", eventType,
			"error", err,
		)
	}
}

func (s *OrderService) resolveExpireMinutes() int {
	if s.expireMinutes > 0 {
		return s.expireMinutes
	}
	return 15
}

func isTransitionAllowed(current, target string) bool {
	if current == target {
		return false
	}
	nexts, ok := allowedTransitions[current]
	if !ok {
		return false
	}
	return nexts[target]
}

func isOrderBusinessError(err error) bool {
	for _, target := range []error{
		ErrInsufficientStock,
		ErrVoucherNotFound,
		ErrVoucherInactive,
		ErrVoucherNotStarted,
		ErrVoucherExpired,
		ErrVoucherExhausted,
		ErrVoucherMinAmount,
		ErrVoucherUserLimit,
		ErrVoucherInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func generateOrderNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("LT%s%s", now, randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}

// mergeCreateOrderItems 合并重复商品的下单项
func mergeCreateOrderItems(items []CreateOrderItem) ([]CreateOrderItem, error) {
	if len(items) == 0 {
		return nil, ErrInvalidOrderItem
	}
	merged := make([]CreateOrderItem, 0, len(items))
	indexByProduct := make(map[uint]int, len(items))
	for _, item := range items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return nil, ErrInvalidOrderItem
		}
		if idx, ok := indexByProduct[item.ProductID]; ok {
			merged[idx].Quantity += item.Quantity
			continue
		}
		indexByProduct[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/logger"
	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/payment/zalopay"
	"github.com/laptop-next/internal/repository"

	"gorm.io/gorm"
)

// PaymentIntent 发起支付的结果
type PaymentIntent struct {
	TransNo string `json:"trans_no"` // 网关交易号
	PayURL  string `json:"pay_url"`  // 收银台地址
	Token   string `json:"token"`    // 支付 token
}

// PaymentGateway 支付网关接口
type PaymentGateway interface {
	Enabled() bool
	CreateOrder(ctx context.Context, order *models.Order) (*PaymentIntent, error)
}

// ZaloPayGateway ZaloPay 网关适配
type ZaloPayGateway struct {
	cfg *zalopay.Config
}

// NewZaloPayGateway 创建 ZaloPay 网关
func NewZaloPayGateway(cfg *zalopay.Config) *ZaloPayGateway {
	if cfg != nil {
		cfg.Normalize()
	}
	return &ZaloPayGateway{cfg: cfg}
}

// Enabled 判断网关是否可用
func (g *ZaloPayGateway) Enabled() bool {
	return g != nil && g.cfg != nil && zalopay.ValidateConfig(g.cfg) == nil
}

// CreateOrder 调用网关创建支付单
func (g *ZaloPayGateway) CreateOrder(ctx context.Context, order *models.Order) (*PaymentIntent, error) {
	if !g.Enabled() {
		return nil, ErrPaymentGatewayDisabled
	}
	items := make([]map[string]interface{}, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]interface{}{
			"itemid":       item.ProductID,
			"itemname":     item.ProductName,
			"itemquantity": item.Quantity,
			"itemprice":    item.UnitPrice.Decimal.Round(0).IntPart(),
		})
	}
	result, err := zalopay.CreateOrder(ctx, g.cfg, zalopay.CreateInput{
		OrderNo:     order.OrderNo,
		UserID:      fmtUint(order.UserID),
		Amount:      order.TotalAmount.Decimal.Round(0).IntPart(),
		Description: "Laptop order " + order.OrderNo,
		EmbedData:   map[string]interface{}{"order_id": order.ID},
		Items:       items,
	})
	if err != nil {
		return nil, err
	}
	return &PaymentIntent{
		TransNo: result.AppTransID,
		PayURL:  result.OrderURL,
		Token:   result.ZPTransToken,
	}, nil
}

// PaymentService 支付服务
type PaymentService struct {
	db                  *gorm.DB
	orderRepo           repository.OrderRepository
	gateway             PaymentGateway
	zalopayCfg          *zalopay.Config
	notificationService *NotificationService
}

// NewPaymentService 创建支付服务
func NewPaymentService(db *gorm.DB, orderRepo repository.OrderRepository, gateway PaymentGateway, zalopayCfg *zalopay.Config, notificationService *NotificationService) *PaymentService {
	if zalopayCfg != nil {
		zalopayCfg.Normalize()
	}
	return &PaymentService{
		db:                  db,
		orderRepo:           orderRepo,
		gateway:             gateway,
		zalopayCfg:          zalopayCfg,
		notificationService: notificationService,
	}
}

// StartPayment 为在线订单发起支付。
// 支付失败的订单允许重新发起，先条件翻转回待支付。
func (s *PaymentService) StartPayment(ctx context.Context, orderID uint, userID uint) (*PaymentIntent, error) {
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.PaymentMethod != constants.PaymentMethodOnline {
		return nil, ErrPaymentMethodInvalid
	}

	switch order.Status {
	case constants.OrderStatusPaymentPending:
	case constants.OrderStatusPaymentFail:
		affected, err := s.orderRepo.UpdateStatusFrom(order.ID, []string{constants.OrderStatusPaymentFail}, constants.OrderStatusPaymentPending, map[string]interface{}{
			"updated_at": time.Now(),
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

	if s.gateway == nil || !s.gateway.Enabled() {
		return nil, ErrPaymentGatewayDisabled
	}

	intent, err := s.gateway.CreateOrder(ctx, order)
	if err != nil {
		logger.Errorw("payment_gateway_create_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"error", err,
		)
		s.markPaymentFailed(order)
		return nil, ErrPaymentGatewayFailed
	}

	if err := s.orderRepo.UpdateStatus(order.ID, order.Status, map[string]interface{}{
		"payment_trans_no": intent.TransNo,
		"payment_url":      intent.PayURL,
		"updated_at":       time.Now(),
	}); err != nil {
		logger.Warnw("payment_trans_no_save_failed",
			"order_id", order.ID,
			"trans_no", intent.TransNo,
			"error", err,
		)
	}
	return intent, nil
}

// HandleZaloPayCallback 处理网关异步回调。
// 验签失败直接拒绝；重复回调保持幂等，只确认一次支付。
func (s *PaymentService) HandleZaloPayCallback(ctx context.Context, body []byte) (*zalopay.CallbackData, error) {
	envelope, err := zalopay.ParseCallback(body)
	if err != nil {
		return nil, ErrCallbackInvalid
	}
	data, err := zalopay.VerifyCallback(s.zalopayCfg, envelope)
	if err != nil {
		if errors.Is(err, zalopay.ErrMacInvalid) {
			logger.Warnw("payment_callback_mac_invalid", "mac", envelope.Mac)
		}
		return nil, ErrCallbackInvalid
	}

	orderNo := data.OrderNo()
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	// 重复回调：订单已确认支付则直接成功返回
	if order.Status == constants.OrderStatusPaymentSuccess || order.Status == constants.OrderStatusCompleted {
		return data, nil
	}

	expected := order.TotalAmount.Decimal.Round(0).IntPart()
	if data.Amount != expected {
		logger.Warnw("payment_callback_amount_mismatch",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"expected", expected,
			"actual", data.Amount,
		)
		return nil, ErrCallbackOrderMismatch
	}

	now := time.Now()
	affected, err := s.orderRepo.UpdateStatusFrom(order.ID, []string{constants.OrderStatusPaymentPending, constants.OrderStatusPaymentFail}, constants.OrderStatusPaymentSuccess, map[string]interface{}{
		"paid_at":          now,
		"payment_trans_no": data.AppTransID,
		"updated_at":       now,
	})
	if err != nil {
		return nil, ErrOrderUpdateFailed
	}
	if affected == 0 {
		// 并发回调被其他请求抢先确认，重新确认当前状态
		current, fetchErr := s.orderRepo.GetByID(order.ID)
		if fetchErr == nil && current != nil && current.Status == constants.OrderStatusPaymentSuccess {
			return data, nil
		}
		return nil, ErrOrderStatusInvalid
	}

	order.Status = constants.OrderStatusPaymentSuccess
	order.PaidAt = &now
	if s.notificationService != nil {
		if err := s.notificationService.NotifyOrderEvent(order, constants.NotificationTypeOrderPaid); err != nil {
			logger.Warnw("payment_notify_failed", "order_id", order.ID, "error", err)
		}
	}

	logger.Infow("payment_callback_confirmed",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"app_trans_id", data.AppTransID,
		"zp_trans_id", data.ZPTransID,
	)
	return data, nil
}

// markPaymentFailed 网关调用失败后将订单翻转为支付失败
func (s *PaymentService) markPaymentFailed(order *models.Order) {
	now := time.Now()
	affected, err := s.orderRepo.UpdateStatusFrom(order.ID, []string{constants.OrderStatusPaymentPending}, constants.OrderStatusPaymentFail, map[string]interface{}{
		"updated_at": now,
	})
	if err != nil {
		logger.Errorw("payment_mark_failed_error", "order_id", order.ID, "error", err)
		return
	}
	if affected == 0 {
		return
	}
	order.Status = constants.OrderStatusPaymentFail
	if s.notificationService != nil {
		if err := s.notificationService.NotifyOrderEvent(order, constants.NotificationTypePaymentFailed); err != nil {
			logger.Warnw("payment_notify_failed", "order_id", order.ID, "error", err)
		}
	}
}

func fmtUint(v uint) string {
	if v == 0 {
		return "guest"
	}
	return "user_" + strconv.FormatUint(uint64(v), 10)
}

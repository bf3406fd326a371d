package constants

// 订单状态
const (
	OrderStatusPending        = "pending"         // 货到付款，待处理
	OrderStatusPaymentPending = "payment_pending" // 在线支付，待支付
	OrderStatusPaymentSuccess = "payment_success" // 在线支付成功
	OrderStatusPaymentFail    = "payment_fail"    // 在线支付失败
	OrderStatusCanceling      = "canceling"       // 取消中
	OrderStatusCanceled       = "cancelled"       // 已取消（终态）
	OrderStatusCompleted      = "completed"       // 已完成（终态）
)

// 支付方式
const (
	PaymentMethodCash   = "cash"   // 货到付款
	PaymentMethodOnline = "online" // 在线支付
)

// 优惠券类型
const (
	VoucherKindCode = "code" // 手动输入优惠码
	VoucherKindAuto = "auto" // 自动匹配
)

// 优惠方式
const (
	DiscountKindPercentage = "percentage" // 按比例
	DiscountKindFixed      = "fixed"      // 固定金额
)

// 优惠券状态
const (
	VoucherStatusActive   = "active"
	VoucherStatusInactive = "inactive"
)

// 优惠券使用记录状态
const (
	VoucherUsageStatusActive   = "active"   // 已生效
	VoucherUsageStatusRefunded = "refunded" // 已退回
)

// 用户角色
const (
	UserRoleAdmin    = "admin"
	UserRoleCustomer = "customer"
)

// 用户账号状态
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 通知类型
const (
	NotificationTypeOrderCreated   = "order_created"
	NotificationTypeOrderPaid      = "order_paid"
	NotificationTypeOrderCanceled  = "order_cancelled"
	NotificationTypeOrderCompleted = "order_completed"
	NotificationTypePaymentFailed  = "payment_failed"
)

// 队列名称与任务类型
const (
	QueueDefault             = "default"
	TaskNotificationDispatch = "notification:dispatch"
	TaskOrderTimeoutCancel   = "order:timeout_cancel"
)

// 通知广播频道（Redis PubSub）
const (
	NotificationChannelPrefix = "notify:user:"
)

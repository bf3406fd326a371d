package service

import "errors"

// 订单相关错误
var (
	ErrOrderNotFound         = errors.New("订单不存在")
	ErrOrderFetchFailed      = errors.New("订单查询失败")
	ErrOrderCreateFailed     = errors.New("订单创建失败")
	ErrOrderUpdateFailed     = errors.New("订单更新失败")
	ErrOrderStatusInvalid    = errors.New("订单状态不允许该操作")
	ErrOrderCancelNotAllowed = errors.New("订单当前状态不可取消")
	ErrInvalidOrderItem      = errors.New("订单项不合法")
	ErrPaymentMethodInvalid  = errors.New("支付方式不合法")
)

// 商品与库存相关错误
var (
	ErrProductNotFound   = errors.New("商品不存在")
	ErrProductInactive   = errors.New("商品已下架")
	ErrProductInvalid    = errors.New("商品参数不合法")
	ErrProductSlugExists = errors.New("商品标识已存在")
	ErrInsufficientStock = errors.New("商品库存不足")
)

// 优惠券相关错误
var (
	ErrVoucherNotFound   = errors.New("优惠券不存在")
	ErrVoucherInactive   = errors.New("优惠券未启用")
	ErrVoucherNotStarted = errors.New("优惠券未到生效时间")
	ErrVoucherExpired    = errors.New("优惠券已过期")
	ErrVoucherExhausted  = errors.New("优惠券使用次数已用完")
	ErrVoucherMinAmount  = errors.New("未达到优惠券使用门槛")
	ErrVoucherUserLimit  = errors.New("已达到单人可用次数上限")
	ErrVoucherInvalid    = errors.New("优惠券不可用")
	ErrVoucherCodeExists = errors.New("优惠码已存在")
)

// 支付相关错误
var (
	ErrPaymentGatewayDisabled = errors.New("支付网关未启用")
	ErrPaymentGatewayFailed   = errors.New("支付网关调用失败")
	ErrCallbackInvalid        = errors.New("支付回调校验失败")
	ErrCallbackOrderMismatch  = errors.New("支付回调订单信息不匹配")
)

// 用户相关错误
var (
	ErrUserNotFound = errors.New("用户不存在")
)

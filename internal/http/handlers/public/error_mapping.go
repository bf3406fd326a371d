package public

import (
	"errors"

	"github.com/laptop-next/internal/http/response"
	"github.com/laptop-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var orderCreateErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidOrderItem, code: response.CodeBadRequest, msg: "订单项不合法"},
	{target: service.ErrPaymentMethodInvalid, code: response.CodeBadRequest, msg: "支付方式不合法"},
	{target: service.ErrProductNotFound, code: response.CodeBadRequest, msg: "商品不存在"},
	{target: service.ErrProductInactive, code: response.CodeBadRequest, msg: "商品已下架"},
	{target: service.ErrInsufficientStock, code: response.CodeBadRequest, msg: "商品库存不足"},
	{target: service.ErrVoucherNotFound, code: response.CodeBadRequest, msg: "优惠券不存在"},
	{target: service.ErrVoucherInactive, code: response.CodeBadRequest, msg: "优惠券未启用"},
	{target: service.ErrVoucherNotStarted, code: response.CodeBadRequest, msg: "优惠券未到生效时间"},
	{target: service.ErrVoucherExpired, code: response.CodeBadRequest, msg: "优惠券已过期"},
	{target: service.ErrVoucherExhausted, code: response.CodeBadRequest, msg: "优惠券使用次数已用完"},
	{target: service.ErrVoucherMinAmount, code: response.CodeBadRequest, msg: "未达到优惠券使用门槛"},
	{target: service.ErrVoucherUserLimit, code: response.CodeBadRequest, msg: "已达到单人可用次数上限"},
	{target: service.ErrVoucherInvalid, code: response.CodeBadRequest, msg: "优惠券不可用"},
	{target: service.ErrPaymentGatewayFailed, code: response.CodeBadRequest, msg: "订单已创建但支付发起失败，可重新发起支付"},
}

var orderCancelErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "订单不存在"},
	{target: service.ErrOrderCancelNotAllowed, code: response.CodeBadRequest, msg: "订单当前状态不可取消"},
}

var paymentStartErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "订单不存在"},
	{target: service.ErrOrderStatusInvalid, code: response.CodeBadRequest, msg: "订单状态不允许发起支付"},
	{target: service.ErrPaymentMethodInvalid, code: response.CodeBadRequest, msg: "支付方式不合法"},
	{target: service.ErrPaymentGatewayDisabled, code: response.CodeBadRequest, msg: "支付网关未启用"},
	{target: service.ErrPaymentGatewayFailed, code: response.CodeBadRequest, msg: "支付网关调用失败"},
}

func respondOrderCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCreateErrorRules, response.CodeInternal, "订单创建失败")
}

func respondOrderCancelError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCancelErrorRules, response.CodeInternal, "订单取消失败")
}

func respondPaymentStartError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentStartErrorRules, response.CodeInternal, "支付发起失败")
}

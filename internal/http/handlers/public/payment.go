package public

import (
	"errors"
	"io"
	"strconv"

	"github.com/laptop-next/internal/http/response"
	"github.com/laptop-next/internal/service"

	"github.com/gin-gonic/gin"
)

// StartPayment 为在线订单发起支付
func (h *Handler) StartPayment(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "订单ID不合法", nil)
		return
	}

	intent, err := h.PaymentService.StartPayment(c.Request.Context(), uint(orderID), uid)
	if err != nil {
		respondPaymentStartError(c, err)
		return
	}

	response.Success(c, intent)
}

// HandleZaloPayCallback 处理 ZaloPay 支付结果回调
func (h *Handler) HandleZaloPayCallback(c *gin.Context) {
	log := requestLog(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		log.Warnw("zalopay_callback_read_failed", "error", err)
		c.JSON(200, gin.H{"return_code": -1, "return_message": "read body failed"})
		return
	}

	data, err := h.PaymentService.HandleZaloPayCallback(c.Request.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCallbackInvalid):
			log.Warnw("zalopay_callback_invalid", "error", err)
			c.JSON(200, gin.H{"return_code": -1, "return_message": "mac not equal"})
		case errors.Is(err, service.ErrOrderNotFound):
			log.Warnw("zalopay_callback_order_not_found", "error", err)
			c.JSON(200, gin.H{"return_code": -1, "return_message": "order not found"})
		case errors.Is(err, service.ErrCallbackOrderMismatch):
			log.Warnw("zalopay_callback_order_mismatch", "error", err)
			c.JSON(200, gin.H{"return_code": -1, "return_message": "amount mismatch"})
		default:
			// 内部错误返回 0，网关会重试回调
			log.Errorw("zalopay_callback_failed", "error", err)
			c.JSON(200, gin.H{"return_code": 0, "return_message": "internal error"})
		}
		return
	}

	log.Infow("zalopay_callback_accepted",
		"app_trans_id", data.AppTransID,
		"zp_trans_id", data.ZPTransID,
		"amount", data.Amount,
	)
	c.JSON(200, gin.H{"return_code": 1, "return_message": "success"})
}

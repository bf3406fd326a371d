package admin

import (
	"errors"
	"strconv"
	"strings"

	handlershared "github.com/laptop-next/internal/http/handlers/shared"
	"github.com/laptop-next/internal/http/response"
	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/repository"
	"github.com/laptop-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// VoucherRequest 管理端优惠券写入请求
type VoucherRequest struct {
	Code         string  `json:"code"`
	Kind         string  `json:"kind" binding:"required"`
	DiscountKind string  `json:"discount_kind" binding:"required"`
	Value        float64 `json:"value" binding:"required"`
	MinAmount    float64 `json:"min_amount"`
	MaxDiscount  float64 `json:"max_discount"`
	UsageLimit   int     `json:"usage_limit"`
	PerUserLimit int     `json:"per_user_limit"`
	StartsAt     string  `json:"starts_at"`
	ExpiresAt    string  `json:"expires_at"`
	Status       string  `json:"status"`
}

func (req VoucherRequest) toInput() (service.VoucherInput, error) {
	startsAt, err := parseTimeNullable(req.StartsAt)
	if err != nil {
		return service.VoucherInput{}, err
	}
	expiresAt, err := parseTimeNullable(req.ExpiresAt)
	if err != nil {
		return service.VoucherInput{}, err
	}
	return service.VoucherInput{
		Code:         req.Code,
		Kind:         req.Kind,
		DiscountKind: req.DiscountKind,
		Value:        models.NewMoneyFromDecimal(decimal.NewFromFloat(req.Value)),
		MinAmount:    models.NewMoneyFromDecimal(decimal.NewFromFloat(req.MinAmount)),
		MaxDiscount:  models.NewMoneyFromDecimal(decimal.NewFromFloat(req.MaxDiscount)),
		UsageLimit:   req.UsageLimit,
		PerUserLimit: req.PerUserLimit,
		StartsAt:     startsAt,
		ExpiresAt:    expiresAt,
		Status:       req.Status,
	}, nil
}

func respondVoucherWriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrVoucherNotFound):
		respondError(c, response.CodeNotFound, "优惠券不存在", nil)
	case errors.Is(err, service.ErrVoucherInvalid):
		respondError(c, response.CodeBadRequest, "优惠券参数不合法", nil)
	case errors.Is(err, service.ErrVoucherCodeExists):
		respondError(c, response.CodeBadRequest, "优惠码已存在", nil)
	default:
		respondError(c, response.CodeInternal, "优惠券保存失败", err)
	}
}

// ListVouchers 管理端优惠券列表
func (h *Handler) ListVouchers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	vouchers, total, err := h.VoucherService.ListForAdmin(repository.VoucherListFilter{
		Page:     page,
		PageSize: pageSize,
		Code:     strings.TrimSpace(c.Query("code")),
		Kind:     strings.TrimSpace(c.Query("kind")),
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "优惠券查询失败", err)
		return
	}

	response.SuccessWithPage(c, vouchers, response.NewPagination(page, pageSize, total))
}

// CreateVoucher 管理端创建优惠券
func (h *Handler) CreateVoucher(c *gin.Context) {
	var req VoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondError(c, response.CodeBadRequest, "时间参数不合法", err)
		return
	}

	voucher, err := h.VoucherService.CreateVoucher(input)
	if err != nil {
		respondVoucherWriteError(c, err)
		return
	}

	response.Success(c, voucher)
}

// UpdateVoucher 管理端更新优惠券
func (h *Handler) UpdateVoucher(c *gin.Context) {
	voucherID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || voucherID == 0 {
		respondError(c, response.CodeBadRequest, "优惠券ID不合法", nil)
		return
	}

	var req VoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondError(c, response.CodeBadRequest, "时间参数不合法", err)
		return
	}

	voucher, err := h.VoucherService.UpdateVoucher(uint(voucherID), input)
	if err != nil {
		respondVoucherWriteError(c, err)
		return
	}

	response.Success(c, voucher)
}

// DeleteVoucher 管理端删除优惠券
func (h *Handler) DeleteVoucher(c *gin.Context) {
	voucherID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || voucherID == 0 {
		respondError(c, response.CodeBadRequest, "优惠券ID不合法", nil)
		return
	}

	if err := h.VoucherService.DeleteVoucher(uint(voucherID)); err != nil {
		if errors.Is(err, service.ErrVoucherNotFound) {
			respondError(c, response.CodeNotFound, "优惠券不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "优惠券删除失败", err)
		return
	}

	response.SuccessWithMsg(c, "已删除", nil)
}

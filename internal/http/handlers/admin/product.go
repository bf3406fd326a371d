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

// ProductRequest 管理端商品写入请求
type ProductRequest struct {
	Slug              string      `json:"slug" binding:"required"`
	Name              string      `json:"name" binding:"required"`
	Brand             string      `json:"brand"`
	Description       string      `json:"description"`
	Spec              models.JSON `json:"spec"`
	PriceAmount       float64     `json:"price_amount"`
	Images            []string    `json:"images"`
	Tags              []string    `json:"tags"`
	AvailableQuantity int         `json:"available_quantity"`
	IsActive          *bool       `json:"is_active"`
	SortOrder         int         `json:"sort_order"`
}

func (req ProductRequest) toInput() service.ProductInput {
	return service.ProductInput{
		Slug:              req.Slug,
		Name:              req.Name,
		Brand:             req.Brand,
		Description:       req.Description,
		Spec:              req.Spec,
		PriceAmount:       models.NewMoneyFromDecimal(decimal.NewFromFloat(req.PriceAmount)),
		Images:            models.StringArray(req.Images),
		Tags:              models.StringArray(req.Tags),
		AvailableQuantity: req.AvailableQuantity,
		IsActive:          req.IsActive,
		SortOrder:         req.SortOrder,
	}
}

func respondProductWriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		respondError(c, response.CodeNotFound, "商品不存在", nil)
	case errors.Is(err, service.ErrProductInvalid):
		respondError(c, response.CodeBadRequest, "商品参数不合法", nil)
	case errors.Is(err, service.ErrProductSlugExists):
		respondError(c, response.CodeBadRequest, "商品标识已存在", nil)
	default:
		respondError(c, response.CodeInternal, "商品保存失败", err)
	}
}

// ListProducts 管理端商品列表（含下架商品）
func (h *Handler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	products, total, err := h.ProductService.List(repository.ProductListFilter{
		Page:     page,
		PageSize: pageSize,
		Brand:    strings.TrimSpace(c.Query("brand")),
		Search:   strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "商品查询失败", err)
		return
	}

	response.SuccessWithPage(c, products, response.NewPagination(page, pageSize, total))
}

// CreateProduct 管理端创建商品
func (h *Handler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	product, err := h.ProductService.Create(req.toInput())
	if err != nil {
		respondProductWriteError(c, err)
		return
	}

	response.Success(c, product)
}

// UpdateProduct 管理端更新商品
func (h *Handler) UpdateProduct(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || productID == 0 {
		respondError(c, response.CodeBadRequest, "商品ID不合法", nil)
		return
	}

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	product, err := h.ProductService.Update(uint(productID), req.toInput())
	if err != nil {
		respondProductWriteError(c, err)
		return
	}

	response.Success(c, product)
}

// DeleteProduct 管理端删除商品
func (h *Handler) DeleteProduct(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || productID == 0 {
		respondError(c, response.CodeBadRequest, "商品ID不合法", nil)
		return
	}

	if err := h.ProductService.Delete(uint(productID)); err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			respondError(c, response.CodeNotFound, "商品不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "商品删除失败", err)
		return
	}

	response.SuccessWithMsg(c, "已删除", nil)
}

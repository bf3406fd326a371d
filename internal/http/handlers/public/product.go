package public

import (
	"errors"
	"strconv"

	handlershared "github.com/laptop-next/internal/http/handlers/shared"
	"github.com/laptop-next/internal/http/response"
	"github.com/laptop-next/internal/repository"
	"github.com/laptop-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListProducts 获取商品列表
func (h *Handler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	products, total, err := h.ProductService.List(repository.ProductListFilter{
		Page:       page,
		PageSize:   pageSize,
		Brand:      c.Query("brand"),
		Search:     c.Query("search"),
		OnlyActive: true,
		InStock:    c.Query("in_stock") == "1",
	})
	if err != nil {
		respondError(c, response.CodeInternal, "商品查询失败", err)
		return
	}

	response.SuccessWithPage(c, products, response.NewPagination(page, pageSize, total))
}

// GetProduct 获取商品详情
func (h *Handler) GetProduct(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		respondError(c, response.CodeBadRequest, "商品标识不合法", nil)
		return
	}

	product, err := h.ProductService.GetBySlug(slug)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			respondError(c, response.CodeNotFound, "商品不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "商品查询失败", err)
		return
	}

	response.Success(c, product)
}

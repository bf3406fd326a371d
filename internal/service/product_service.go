package service

import (
	"strings"

	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/repository"

	"github.com/shopspring/decimal"
)

// ProductService 商品服务
type ProductService struct {
	productRepo repository.ProductRepository
}

// NewProductService 创建商品服务
func NewProductService(productRepo repository.ProductRepository) *ProductService {
	return &ProductService{productRepo: productRepo}
}

// List 获取商品列表
func (s *ProductService) List(filter repository.ProductListFilter) ([]models.Product, int64, error) {
	return s.productRepo.List(filter)
}

// GetByID 获取商品详情
func (s *ProductService) GetByID(id uint) (*models.Product, error) {
	product, err := s.productRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// GetBySlug 按唯一标识获取商品详情
func (s *ProductService) GetBySlug(slug string) (*models.Product, error) {
	product, err := s.productRepo.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ProductInput 管理端商品写入参数
type ProductInput struct {
	Slug              string
	Name              string
	Brand             string
	Description       string
	Spec              models.JSON
	PriceAmount       models.Money
	Images            models.StringArray
	Tags              models.StringArray
	AvailableQuantity int
	IsActive          *bool
	SortOrder         int
}

// Create 管理端创建商品
func (s *ProductService) Create(input ProductInput) (*models.Product, error) {
	slug := strings.TrimSpace(input.Slug)
	name := strings.TrimSpace(input.Name)
	if slug == "" || name == "" || input.AvailableQuantity < 0 ||
		input.PriceAmount.Decimal.LessThan(decimal.Zero) {
		return nil, ErrProductInvalid
	}

	exist, err := s.productRepo.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if exist != nil {
		return nil, ErrProductSlugExists
	}

	product := &models.Product{
		Slug:              slug,
		Name:              name,
		Brand:             strings.TrimSpace(input.Brand),
		Description:       input.Description,
		SpecJSON:          input.Spec,
		PriceAmount:       input.PriceAmount,
		Images:            input.Images,
		Tags:              input.Tags,
		AvailableQuantity: input.AvailableQuantity,
		IsActive:          true,
		SortOrder:         input.SortOrder,
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	if err := s.productRepo.Create(product); err != nil {
		return nil, err
	}
	return product, nil
}

// Update 管理端更新商品
func (s *ProductService) Update(id uint, input ProductInput) (*models.Product, error) {
	product, err := s.productRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	slug := strings.TrimSpace(input.Slug)
	name := strings.TrimSpace(input.Name)
	if slug == "" || name == "" || input.AvailableQuantity < 0 ||
		input.PriceAmount.Decimal.LessThan(decimal.Zero) {
		return nil, ErrProductInvalid
	}
	if slug != product.Slug {
		exist, err := s.productRepo.GetBySlug(slug)
		if err != nil {
			return nil, err
		}
		if exist != nil && exist.ID != id {
			return nil, ErrProductSlugExists
		}
	}

	product.Slug = slug
	product.Name = name
	product.Brand = strings.TrimSpace(input.Brand)
	product.Description = input.Description
	product.SpecJSON = input.Spec
	product.PriceAmount = input.PriceAmount
	product.Images = input.Images
	product.Tags = input.Tags
	product.AvailableQuantity = input.AvailableQuantity
	product.SortOrder = input.SortOrder
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	if err := s.productRepo.Update(product); err != nil {
		return nil, err
	}
	return product, nil
}

// Delete 管理端删除商品
func (s *ProductService) Delete(id uint) error {
	product, err := s.productRepo.GetByID(id)
	if err != nil {
		return err
	}
	if product == nil {
		return ErrProductNotFound
	}
	return s.productRepo.Delete(id)
}

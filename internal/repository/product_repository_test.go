package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/laptop-next/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupProductTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, slug string, stock int) *models.Product {
	t.Helper()
	product := models.Product{
		Slug:              slug,
		Name:              "Laptop " + slug,
		Brand:             "Dell",
		PriceAmount:       models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		AvailableQuantity: stock,
		IsActive:          true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return &product
}

func currentStock(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var product models.Product
	if err := db.First(&product, id).Error; err != nil {
		t.Fatalf("reload product failed: %v", err)
	}
	return product.AvailableQuantity
}

func TestReserveStockGuardsAgainstOversell(t *testing.T) {
	db := setupProductTestDB(t, "repo_reserve")
	repo := NewProductRepository(db)
	product := seedProduct(t, db, "g15", 5)

	affected, err := repo.ReserveStock(product.ID, 3)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}
	if got := currentStock(t, db, product.ID); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}

	// 剩余 2 件，扣 3 件命中不了守卫条件
	affected, err = repo.ReserveStock(product.ID, 3)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected guard to reject, affected %d", affected)
	}
	if got := currentStock(t, db, product.ID); got != 2 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}

	// 恰好等于剩余库存可以扣到 0
	affected, err = repo.ReserveStock(product.ID, 2)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}
	if got := currentStock(t, db, product.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestReserveStockRejectsInvalidParams(t *testing.T) {
	db := setupProductTestDB(t, "repo_reserve_invalid")
	repo := NewProductRepository(db)
	product := seedProduct(t, db, "g15", 5)

	if _, err := repo.ReserveStock(0, 1); err == nil {
		t.Fatalf("expected error for zero product id")
	}
	if _, err := repo.ReserveStock(product.ID, 0); err == nil {
		t.Fatalf("expected error for zero quantity")
	}
	if _, err := repo.ReserveStock(product.ID, -1); err == nil {
		t.Fatalf("expected error for negative quantity")
	}
	if got := currentStock(t, db, product.ID); got != 5 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestReleaseStockAddsBack(t *testing.T) {
	db := setupProductTestDB(t, "repo_release")
	repo := NewProductRepository(db)
	product := seedProduct(t, db, "g15", 2)

	affected, err := repo.ReleaseStock(product.ID, 3)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}
	if got := currentStock(t, db, product.ID); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}

	// 不存在的商品回补不影响任何行
	affected, err = repo.ReleaseStock(9999, 1)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected, got %d", affected)
	}
}

func TestReserveStockInsideTransactionRollsBack(t *testing.T) {
	db := setupProductTestDB(t, "repo_reserve_tx")
	repo := NewProductRepository(db)
	product := seedProduct(t, db, "g15", 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		if _, err := txRepo.ReserveStock(product.ID, 4); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	if err == nil {
		t.Fatalf("expected transaction error")
	}
	if got := currentStock(t, db, product.ID); got != 5 {
		t.Fatalf("expected rollback to restore stock, got %d", got)
	}
}

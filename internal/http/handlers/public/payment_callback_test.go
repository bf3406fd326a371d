package public

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/laptop-next/internal/constants"
	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/payment/zalopay"
	"github.com/laptop-next/internal/provider"
	"github.com/laptop-next/internal/repository"
	"github.com/laptop-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const callbackTestKey2 = "callback-key2"

func setupCallbackTest(t *testing.T, name string) (*Handler, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Order{}, &models.OrderItem{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &zalopay.Config{
		AppID:    "2554",
		Key1:     "create-key1",
		Key2:     callbackTestKey2,
		Endpoint: "https://sb-openapi.zalopay.vn/v2/create",
	}
	paymentService := service.NewPaymentService(db, repository.NewOrderRepository(db), nil, cfg, nil)
	return &Handler{Container: &provider.Container{PaymentService: paymentService}}, db
}

func postCallback(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/zalopay/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.HandleZaloPayCallback(c)
	return w
}

func callbackReturnCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		ReturnCode    int    `json:"return_code"`
		ReturnMessage string `json:"return_message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v (%s)", err, w.Body.String())
	}
	return resp.ReturnCode
}

func signedCallbackBody(t *testing.T, orderNo string, amount int64) string {
	t.Helper()
	data := map[string]interface{}{
		"app_id":       2554,
		"app_trans_id": zalopay.NewAppTransID(time.Now(), orderNo),
		"app_user":     "user_1",
		"amount":       amount,
		"zp_trans_id":  int64(240901000000456),
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal callback data failed: %v", err)
	}
	envelope := map[string]interface{}{
		"data": string(raw),
		"mac":  zalopay.HmacSHA256(callbackTestKey2, string(raw)),
		"type": 1,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}
	return string(body)
}

func TestZaloPayCallbackConfirmsOrder(t *testing.T) {
	h, db := setupCallbackTest(t, "cb_confirm")

	order := models.Order{
		OrderNo:       "LT20240901120000000001",
		UserID:        1,
		Status:        constants.OrderStatusPaymentPending,
		PaymentMethod: constants.PaymentMethodOnline,
		TotalAmount:   models.NewMoneyFromDecimal(decimal.NewFromInt(1500)),
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	w := postCallback(t, h, signedCallbackBody(t, order.OrderNo, 1500))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if code := callbackReturnCode(t, w); code != 1 {
		t.Fatalf("expected return_code 1, got %d (%s)", code, w.Body.String())
	}

	var current models.Order
	if err := db.First(&current, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if current.Status != constants.OrderStatusPaymentSuccess || current.PaidAt == nil {
		t.Fatalf("expected confirmed order, got %s", current.Status)
	}

	// 重复回调仍然返回成功
	w = postCallback(t, h, signedCallbackBody(t, order.OrderNo, 1500))
	if code := callbackReturnCode(t, w); code != 1 {
		t.Fatalf("expected idempotent success, got %d", code)
	}
}

func TestZaloPayCallbackRejectsBadMac(t *testing.T) {
	h, _ := setupCallbackTest(t, "cb_bad_mac")

	body := `{"data":"{\"amount\":1}","mac":"deadbeef","type":1}`
	w := postCallback(t, h, body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if code := callbackReturnCode(t, w); code != -1 {
		t.Fatalf("expected return_code -1, got %d", code)
	}
}

func TestZaloPayCallbackUnknownOrder(t *testing.T) {
	h, _ := setupCallbackTest(t, "cb_unknown")

	w := postCallback(t, h, signedCallbackBody(t, "LT00000000000000000000", 100))
	if code := callbackReturnCode(t, w); code != -1 {
		t.Fatalf("expected return_code -1, got %d", code)
	}
}

func TestZaloPayCallbackAmountMismatch(t *testing.T) {
	h, db := setupCallbackTest(t, "cb_amount")

	order := models.Order{
		OrderNo:       "LT20240901120000000002",
		UserID:        1,
		Status:        constants.OrderStatusPaymentPending,
		PaymentMethod: constants.PaymentMethodOnline,
		TotalAmount:   models.NewMoneyFromDecimal(decimal.NewFromInt(1500)),
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	w := postCallback(t, h, signedCallbackBody(t, order.OrderNo, 1))
	if code := callbackReturnCode(t, w); code != -1 {
		t.Fatalf("expected return_code -1, got %d", code)
	}

	var current models.Order
	if err := db.First(&current, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if current.Status != constants.OrderStatusPaymentPending {
		t.Fatalf("expected order untouched, got %s", current.Status)
	}
}

package zalopay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestHmacSHA256KnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := HmacSHA256("key", "The quick brown fox jumps over the lazy dog")
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Fatalf("unexpected mac: %s", got)
	}
}

func TestVerifyCallback(t *testing.T) {
	cfg := &Config{AppID: "2554", Key1: "k1", Key2: "callback-key", Endpoint: "https://example.com"}

	payload := map[string]interface{}{
		"app_id":       2554,
		"app_trans_id": "240901_LT20240901120000123456",
		"app_user":     "user_1",
		"amount":       int64(1500),
		"zp_trans_id":  int64(240901000000321),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	envelope := &CallbackEnvelope{
		Data: string(raw),
		Mac:  HmacSHA256("callback-key", string(raw)),
	}

	data, err := VerifyCallback(cfg, envelope)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if data.Amount != 1500 || data.AppTransID != "240901_LT20240901120000123456" {
		t.Fatalf("unexpected data: %+v", data)
	}
	if data.OrderNo() != "LT20240901120000123456" {
		t.Fatalf("unexpected order no: %s", data.OrderNo())
	}

	// 篡改 data 后 mac 不再匹配
	envelope.Data = envelope.Data[:len(envelope.Data)-1] + " "
	if _, err := VerifyCallback(cfg, envelope); !errors.Is(err, ErrMacInvalid) {
		t.Fatalf("expected mac invalid, got: %v", err)
	}
}

func TestVerifyCallbackAcceptsUppercaseMac(t *testing.T) {
	cfg := &Config{Key2: "callback-key"}
	data := `{"amount":10}`
	mac := HmacSHA256("callback-key", data)

	upper := make([]byte, len(mac))
	for i := 0; i < len(mac); i++ {
		c := mac[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	if _, err := VerifyCallback(cfg, &CallbackEnvelope{Data: data, Mac: string(upper)}); err != nil {
		t.Fatalf("expected uppercase mac accepted, got: %v", err)
	}
}

func TestParseCallback(t *testing.T) {
	if _, err := ParseCallback(nil); err == nil {
		t.Fatalf("expected error for empty body")
	}
	if _, err := ParseCallback([]byte("not json")); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if _, err := ParseCallback([]byte(`{"data":"","mac":""}`)); err == nil {
		t.Fatalf("expected error for empty fields")
	}
	envelope, err := ParseCallback([]byte(`{"data":"{}","mac":"abc","type":1}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if envelope.Data != "{}" || envelope.Mac != "abc" || envelope.Type != 1 {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestNewAppTransIDRoundTrip(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	id := NewAppTransID(now, "LT20240901120000123456")
	if id != "240901_LT20240901120000123456" {
		t.Fatalf("unexpected app_trans_id: %s", id)
	}
	data := &CallbackData{AppTransID: id}
	if data.OrderNo() != "LT20240901120000123456" {
		t.Fatalf("unexpected order no: %s", data.OrderNo())
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(nil); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid for nil, got: %v", err)
	}
	if err := ValidateConfig(&Config{AppID: "1", Key1: "a", Key2: "b"}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid without endpoint, got: %v", err)
	}
	cfg := &Config{AppID: "1", Key1: "a", Key2: "b", Endpoint: "https://example.com/create"}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{AppID: " 1 ", Endpoint: "https://example.com/create/ "}
	cfg.Normalize()
	if cfg.AppID != "1" {
		t.Fatalf("expected trimmed app id, got %q", cfg.AppID)
	}
	if cfg.Endpoint != "https://example.com/create" {
		t.Fatalf("expected trailing slash stripped, got %q", cfg.Endpoint)
	}
	if cfg.TimeoutMS != 10000 {
		t.Fatalf("expected default timeout, got %d", cfg.TimeoutMS)
	}
}

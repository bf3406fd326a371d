package zalopay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigInvalid   = errors.New("zalopay config invalid")
	ErrRequestFailed   = errors.New("zalopay request failed")
	ErrResponseInvalid = errors.New("zalopay response invalid")
	ErrMacInvalid      = errors.New("zalopay mac invalid")
)

// 网关返回码
const (
	ReturnCodeSuccess    = 1 // 成功
	ReturnCodeFail       = 2 // 失败
	ReturnCodeProcessing = 3 // 处理中
)

// Config ZaloPay 配置
type Config struct {
	AppID       string `json:"app_id"`       // 商户应用ID
	Key1        string `json:"key1"`         // 下单签名密钥
	Key2        string `json:"key2"`         // 回调验签密钥
	Endpoint    string `json:"endpoint"`     // 下单接口地址
	CallbackURL string `json:"callback_url"` // 异步通知地址
	TimeoutMS   int    `json:"timeout_ms"`   // 请求超时（毫秒）
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.AppID) == "" {
		return fmt.Errorf("%w: app_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.Key1) == "" {
		return fmt.Errorf("%w: key1 is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.Key2) == "" {
		return fmt.Errorf("%w: key2 is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrConfigInvalid)
	}
	return nil
}

// Normalize 清理配置并填充默认值
func (c *Config) Normalize() {
	c.AppID = strings.TrimSpace(c.AppID)
	c.Key1 = strings.TrimSpace(c.Key1)
	c.Key2 = strings.TrimSpace(c.Key2)
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	c.CallbackURL = strings.TrimSpace(c.CallbackURL)
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 10000
	}
}

// CreateInput 创建支付单输入
type CreateInput struct {
	OrderNo     string // 商户订单号
	UserID      string // 付款用户标识
	Amount      int64  // 支付金额（最小货币单位）
	Description string // 订单描述
	EmbedData   map[string]interface{}
	Items       []map[string]interface{}
}

// CreateResult 创建支付单结果
type CreateResult struct {
	AppTransID    string                 // 网关交易号
	OrderURL      string                 // 收银台地址
	ZPTransToken  string                 // 支付 token
	ReturnCode    int                    // 返回码
	ReturnMessage string                 // 返回信息
	Raw           map[string]interface{} // 原始响应
}

// CallbackEnvelope 回调信封（{data, mac}）
type CallbackEnvelope struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
	Type int    `json:"type"`
}

// CallbackData 回调数据（data 字段解码后）
type CallbackData struct {
	AppID       int    `json:"app_id"`
	AppTransID  string `json:"app_trans_id"`
	AppUser     string `json:"app_user"`
	AppTime     int64  `json:"app_time"`
	Amount      int64  `json:"amount"`
	EmbedData   string `json:"embed_data"`
	Item        string `json:"item"`
	ZPTransID   int64  `json:"zp_trans_id"`
	ServerTime  int64  `json:"server_time"`
	Channel     int    `json:"channel"`
	MerchantUID string `json:"merchant_user_id"`
}

// OrderNo 从网关交易号还原商户订单号（yymmdd_orderNo 格式）
func (d *CallbackData) OrderNo() string {
	if idx := strings.Index(d.AppTransID, "_"); idx >= 0 {
		return d.AppTransID[idx+1:]
	}
	return d.AppTransID
}

// NewAppTransID 生成网关交易号，格式为 yymmdd_订单号
func NewAppTransID(now time.Time, orderNo string) string {
	return fmt.Sprintf("%s_%s", now.Format("060102"), orderNo)
}

// CreateOrder 调用网关创建支付单
func CreateOrder(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if input.OrderNo == "" || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: order_no and amount are required", ErrConfigInvalid)
	}

	now := time.Now()
	appTransID := NewAppTransID(now, input.OrderNo)
	appTime := now.UnixMilli()

	appUser := input.UserID
	if appUser == "" {
		appUser = "guest"
	}

	embedData := "{}"
	if input.EmbedData != nil {
		b, err := json.Marshal(input.EmbedData)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal embed_data failed", ErrConfigInvalid)
		}
		embedData = string(b)
	}
	item := "[]"
	if input.Items != nil {
		b, err := json.Marshal(input.Items)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal item failed", ErrConfigInvalid)
		}
		item = string(b)
	}

	// mac = HMAC-SHA256(key1, appid|app_trans_id|appuser|amount|apptime|embed_data|item)
	macData := strings.Join([]string{
		cfg.AppID,
		appTransID,
		appUser,
		strconv.FormatInt(input.Amount, 10),
		strconv.FormatInt(appTime, 10),
		embedData,
		item,
	}, "|")
	mac := HmacSHA256(cfg.Key1, macData)

	form := url.Values{}
	form.Set("app_id", cfg.AppID)
	form.Set("app_trans_id", appTransID)
	form.Set("app_user", appUser)
	form.Set("app_time", strconv.FormatInt(appTime, 10))
	form.Set("amount", strconv.FormatInt(input.Amount, 10))
	form.Set("embed_data", embedData)
	form.Set("item", item)
	form.Set("description", input.Description)
	form.Set("mac", mac)
	if cfg.CallbackURL != "" {
		form.Set("callback_url", cfg.CallbackURL)
	}

	respBytes, err := postForm(ctx, cfg, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var resp struct {
		ReturnCode    int    `json:"return_code"`
		ReturnMessage string `json:"return_message"`
		OrderURL      string `json:"order_url"`
		ZPTransToken  string `json:"zp_trans_token"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	result := &CreateResult{
		AppTransID:    appTransID,
		OrderURL:      resp.OrderURL,
		ZPTransToken:  resp.ZPTransToken,
		ReturnCode:    resp.ReturnCode,
		ReturnMessage: resp.ReturnMessage,
		Raw:           raw,
	}
	if resp.ReturnCode != ReturnCodeSuccess {
		return result, fmt.Errorf("%w: %s", ErrResponseInvalid, resp.ReturnMessage)
	}
	return result, nil
}

// ParseCallback 解析回调信封
func ParseCallback(body []byte) (*CallbackEnvelope, error) {
	if len(body) == 0 {
		return nil, ErrResponseInvalid
	}
	var envelope CallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if envelope.Data == "" || envelope.Mac == "" {
		return nil, fmt.Errorf("%w: data or mac missing", ErrResponseInvalid)
	}
	return &envelope, nil
}

// VerifyCallback 验证回调签名并解码数据
// mac = HMAC-SHA256(key2, data)
func VerifyCallback(cfg *Config, envelope *CallbackEnvelope) (*CallbackData, error) {
	if cfg == nil || envelope == nil {
		return nil, ErrConfigInvalid
	}
	expected := HmacSHA256(cfg.Key2, envelope.Data)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(envelope.Mac))) {
		return nil, ErrMacInvalid
	}
	var data CallbackData
	if err := json.Unmarshal([]byte(envelope.Data), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return &data, nil
}

// HmacSHA256 计算 HMAC-SHA256 并转小写十六进制
func HmacSHA256(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return strings.ToLower(hex.EncodeToString(mac.Sum(nil)))
}

func postForm(ctx context.Context, cfg *Config, form url.Values) ([]byte, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

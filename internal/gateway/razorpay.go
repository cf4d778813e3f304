package gateway

import (
	"context"
	"fashion-store-backend/internal/util"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"
)

// Order 网关侧订单
type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
}

// Gateway 支付网关
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error)
	KeyID() string
}

// RazorpayGateway 基于 razorpay-go 的实现
type RazorpayGateway struct {
	client *razorpay.Client
	keyID  string
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		client: razorpay.NewClient(keyID, keySecret),
		keyID:  keyID,
	}
}

func (g *RazorpayGateway) KeyID() string { return g.keyID }

// CreateOrder 创建网关订单，金额单位为最小货币单位（派士）
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error) {
	if amountMinor <= 0 {
		return nil, fmt.Errorf("invalid amount %d", amountMinor)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"amount":          amountMinor,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
	}
	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		util.Logger.Error("创建网关订单失败", zap.Error(err), zap.String("receipt", receipt))
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("gateway order response missing id")
	}
	order := &Order{ID: id, AmountMinor: amountMinor, Currency: currency, Receipt: receipt}
	if amt, ok := body["amount"].(float64); ok {
		order.AmountMinor = int64(amt)
	}
	if cur, ok := body["currency"].(string); ok && cur != "" {
		order.Currency = cur
	}

	util.Logger.Info("网关订单创建成功",
		zap.String("gateway_order_id", order.ID),
		zap.Int64("amount_minor", order.AmountMinor))
	return order, nil
}

// ToMinorUnits 卢比转派士，四舍五入
func ToMinorUnits(amount float64) int64 {
	if amount <= 0 {
		return 0
	}
	return int64(amount*100 + 0.5)
}

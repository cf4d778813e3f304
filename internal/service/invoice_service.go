package service

import (
	"bytes"
	"context"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/storage"
	"fashion-store-backend/internal/util"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"
)

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"rupees": formatRupees,
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Invoice {{.Order.OrderNumber}}</title></head>
<body style="font-family:Arial,sans-serif">
<h1>{{.StoreName}}</h1>
<p>Invoice for order <strong>{{.Order.OrderNumber}}</strong><br>Date: {{.IssuedAt.Format "02 Jan 2006"}}</p>
<p>{{.Order.ShippingAddress.FullName}}<br>{{.Order.ShippingAddress.Line1}}{{with .Order.ShippingAddress.Line2}}, {{.}}{{end}}<br>
{{.Order.ShippingAddress.City}}, {{.Order.ShippingAddress.State}} {{.Order.ShippingAddress.Pincode}}</p>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Item</th><th>Size</th><th>Qty</th><th>Price</th><th>Total</th></tr>
{{range .Order.Items}}<tr><td>{{.ProductName}}</td><td>{{.Size}}</td><td>{{.Quantity}}</td><td>{{rupees .Price}}</td><td>{{rupees .Total}}</td></tr>
{{end}}</table>
<p>Subtotal: {{rupees .Order.Subtotal}}<br>Delivery: {{rupees .Order.DeliveryFee}}<br><strong>Total: {{rupees .Order.TotalAmount}}</strong></p>
<p>Payment: {{.Order.PaymentMethod}} ({{.Order.PaymentStatus}})</p>
</body></html>`))

// InvoiceIssuer 生成订单发票
type InvoiceIssuer interface {
	Issue(ctx context.Context, order *model.Order) (string, error)
}

// InvoiceService 渲染发票并上传到对象存储
type InvoiceService struct {
	uploader  storage.Uploader
	orders    interfaces.OrderRepository
	storeName string
	now       func() time.Time
}

func NewInvoiceService(uploader storage.Uploader, orders interfaces.OrderRepository, storeName string) *InvoiceService {
	return &InvoiceService{uploader: uploader, orders: orders, storeName: storeName, now: time.Now}
}

// Render 渲染发票 HTML
func (s *InvoiceService) Render(order *model.Order) ([]byte, error) {
	var buf bytes.Buffer
	err := invoiceTemplate.Execute(&buf, struct {
		StoreName string
		Order     *model.Order
		IssuedAt  time.Time
	}{s.storeName, order, s.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to render invoice: %w", err)
	}
	return buf.Bytes(), nil
}

// Issue 生成并上传发票，返回访问地址
func (s *InvoiceService) Issue(ctx context.Context, order *model.Order) (string, error) {
	if len(order.Items) == 0 {
		items, err := s.orders.GetOrderItems(ctx, order.ID)
		if err != nil {
			return "", err
		}
		order.Items = items
	}

	data, err := s.Render(order)
	if err != nil {
		return "", err
	}

	url, err := s.uploader.Upload(ctx, util.InvoiceObjectPath(order.OrderNumber, s.now()), "text/html; charset=utf-8", data)
	if err != nil {
		return "", fmt.Errorf("failed to upload invoice: %w", err)
	}
	if err := s.orders.SetInvoiceURL(ctx, order.ID, url); err != nil {
		return "", err
	}
	order.InvoiceURL = url

	util.Logger.Info("发票已生成", zap.Int("order_id", order.ID), zap.String("url", url))
	return url, nil
}

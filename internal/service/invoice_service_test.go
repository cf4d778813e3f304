package service

import (
	"context"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/storage"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIssueInvoice 测试生成发票并保存地址
func TestIssueInvoice(t *testing.T) {
	dir := t.TempDir()
	uploader, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	clock := newFakeClock()
	store := newMemStore(clock.Now)
	order := &model.Order{
		UserID:        customerID,
		Status:        model.OrderStatusConfirmed,
		PaymentMethod: model.PaymentMethodOnline,
		PaymentStatus: model.PaymentStatusPaid,
		Subtotal:      1000,
		DeliveryFee:   49,
		TotalAmount:   1049,
		ShippingAddress: model.ShippingAddress{
			FullName: "Asha <script>", Line1: "12 MG Road", City: "Bengaluru", State: "Karnataka", Pincode: "560001",
		},
		Items: []model.OrderItem{{ProductID: 1, ProductName: "Kurta", Size: "M", Quantity: 2, Price: 500, Total: 1000}},
	}
	require.NoError(t, store.CreateOrder(context.Background(), order))
	order.Items = nil

	svc := NewInvoiceService(uploader, store, "Fashion Store")
	svc.now = clock.Now

	url, err := svc.Issue(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/invoices/2026/03/ORD-2026-0001.html", url)
	assert.Equal(t, url, store.orders[order.ID].InvoiceURL)

	data, err := os.ReadFile(filepath.Join(dir, "invoices", "2026", "03", "ORD-2026-0001.html"))
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "Kurta")
	assert.Contains(t, html, "₹1049.00")
	assert.Contains(t, html, "01 Mar 2026")
	assert.NotContains(t, html, "<script>")
}

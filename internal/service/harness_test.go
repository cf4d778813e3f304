package service

import (
	"context"
	"fashion-store-backend/internal/cache"
	"fashion-store-backend/internal/gateway"
	"fashion-store-backend/internal/model"
	"testing"

	"github.com/stretchr/testify/require"
)

type gatewayOrder = gateway.Order

const (
	testSecret   = "rzp_test_secret"
	customerID   = 7
	otherUserID  = 8
	adminID      = 1
	deliveryFee  = 49
	freeDelivery = 999
)

// harness 组装好依赖的订单与支付服务
type harness struct {
	store         *memStore
	clock         *fakeClock
	gw            *fakeGateway
	invoices      *recordingInvoices
	verifier      *gateway.SignatureVerifier
	inventory     *InventoryService
	loyalty       *LoyaltyService
	notifications *NotificationService
	orders        *OrderService
	payments      *PaymentService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithCache(t, nil)
}

func newHarnessWithCache(t *testing.T, c cache.Cache) *harness {
	t.Helper()
	clock := newFakeClock()
	store := newMemStore(clock.Now)
	store.addUser(customerID, "asha@example.com", "9876543210")
	store.addUser(otherUserID, "ravi@example.com", "")

	h := &harness{
		store:    store,
		clock:    clock,
		gw:       &fakeGateway{},
		invoices: &recordingInvoices{},
		verifier: gateway.NewSignatureVerifier(testSecret),
	}
	h.inventory = NewInventoryService(store, store, store)
	h.inventory.now = clock.Now
	h.loyalty = NewLoyaltyService(store, store, store, 0.02)
	h.notifications = NewNotificationService(store, store, nil, nil, "Fashion Store", "https://shop.example.com")
	h.notifications.now = clock.Now
	h.orders = NewOrderService(OrderServiceDeps{
		Orders:            store,
		Products:          store,
		Users:             store,
		UnitOfWork:        store,
		Inventory:         h.inventory,
		Loyalty:           h.loyalty,
		Notifier:          h.notifications,
		Invoices:          h.invoices,
		Cache:             c,
		DeliveryFee:       deliveryFee,
		FreeDeliveryAbove: freeDelivery,
		Clock:             clock.Now,
	})
	h.payments = NewPaymentService(PaymentServiceDeps{
		Orders:      store,
		UnitOfWork:  store,
		OrderFlow:   h.orders,
		Loyalty:     h.loyalty,
		Notifier:    h.notifications,
		Gateway:     h.gw,
		Verifier:    h.verifier,
		Currency:    "INR",
		FrontendURL: "https://shop.example.com/",
		Clock:       clock.Now,
	})
	return h
}

func testAddress() *model.ShippingAddress {
	return &model.ShippingAddress{
		FullName: "Asha Rao",
		Phone:    "9876543210",
		Line1:    "12 MG Road",
		City:     "Bengaluru",
		State:    "Karnataka",
		Pincode:  "560001",
	}
}

// placeOrder 以 customerID 下单
func (h *harness) placeOrder(t *testing.T, method model.PaymentMethod, items ...CreateOrderItemInput) *model.Order {
	t.Helper()
	order, err := h.orders.CreateOrder(context.Background(), customerID, CreateOrderInput{
		Items:           items,
		ShippingAddress: testAddress(),
		PaymentMethod:   method,
	})
	require.NoError(t, err)
	return order
}

// placeThreeItemOrder 库存 10/5/20，数量 2/1/4
func (h *harness) placeThreeItemOrder(t *testing.T, method model.PaymentMethod) *model.Order {
	t.Helper()
	h.store.addProduct(101, "Linen Shirt", 500, 10)
	h.store.addProduct(102, "Denim Jacket", 1000, 5)
	h.store.addProduct(103, "Cotton Socks", 100, 20)
	return h.placeOrder(t, method,
		CreateOrderItemInput{ProductID: 101, Quantity: 2},
		CreateOrderItemInput{ProductID: 102, Quantity: 1},
		CreateOrderItemInput{ProductID: 103, Quantity: 4},
	)
}

// placePaidReadyOrder 总额 2000 的在线支付订单，并关联网关订单
func (h *harness) placePaidReadyOrder(t *testing.T) (*model.Order, string) {
	t.Helper()
	h.store.addProduct(201, "Silk Saree", 2000, 3)
	order := h.placeOrder(t, model.PaymentMethodOnline, CreateOrderItemInput{ProductID: 201, Quantity: 1})
	po, err := h.payments.CreatePaymentOrder(context.Background(), Viewer{UserID: customerID}, order.ID)
	require.NoError(t, err)
	return order, po.GatewayOrderID
}

func (h *harness) patchStatus(t *testing.T, orderID int, status model.OrderStatus, tracking string) (*model.Order, error) {
	t.Helper()
	patch := model.OrderPatch{Status: &status}
	if tracking != "" {
		patch.TrackingNumber = &tracking
	}
	return h.orders.UpdateOrder(context.Background(), orderID, patch, adminID)
}

func ptr[T any](v T) *T { return &v }

package service

import (
	"context"
	"fashion-store-backend/internal/cache"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fashion-store-backend/internal/util"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPaymentWindow 在线支付订单的付款时限
	DefaultPaymentWindow = 20 * time.Minute

	checkoutIdempotencyTTL = 24 * time.Hour
	checkoutInFlight       = "in-flight"
	expireBatchSize        = 100
)

// OrderServiceDeps 订单服务依赖
type OrderServiceDeps struct {
	Orders            interfaces.OrderRepository
	Products          interfaces.ProductRepository
	Users             interfaces.UserRepository
	UnitOfWork        interfaces.UnitOfWork
	Inventory         *InventoryService
	Loyalty           *LoyaltyService
	Notifier          Notifier
	Invoices          InvoiceIssuer
	Cache             cache.Cache
	PaymentWindow     time.Duration
	DeliveryFee       float64
	FreeDeliveryAbove float64
	Clock             func() time.Time
}

// Viewer 发起请求的用户
type Viewer struct {
	UserID  int
	IsAdmin bool
}

func (v Viewer) canSee(order *model.Order) bool {
	return v.IsAdmin || order.UserID == v.UserID
}

// CreateOrderItemInput 下单商品
type CreateOrderItemInput struct {
	ProductID int    `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Size      string `json:"size"`
}

// CreateOrderInput 下单请求，收货地址二选一：直接填写或引用已保存地址
type CreateOrderInput struct {
	Items           []CreateOrderItemInput `json:"items" binding:"required,min=1,dive"`
	ShippingAddress *model.ShippingAddress `json:"shipping_address"`
	AddressID       int                    `json:"address_id"`
	PaymentMethod   model.PaymentMethod    `json:"payment_method" binding:"required"`
	UserNotes       string                 `json:"user_notes"`
	IdempotencyKey  string                 `json:"-"`
}

type OrderService struct {
	orders            interfaces.OrderRepository
	products          interfaces.ProductRepository
	users             interfaces.UserRepository
	uow               interfaces.UnitOfWork
	inventory         *InventoryService
	loyalty           *LoyaltyService
	notifier          Notifier
	invoices          InvoiceIssuer
	cache             cache.Cache
	paymentWindow     time.Duration
	deliveryFee       float64
	freeDeliveryAbove float64
	now               func() time.Time
}

func NewOrderService(deps OrderServiceDeps) *OrderService {
	window := deps.PaymentWindow
	if window <= 0 {
		window = DefaultPaymentWindow
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &OrderService{
		orders:            deps.Orders,
		products:          deps.Products,
		users:             deps.Users,
		uow:               deps.UnitOfWork,
		inventory:         deps.Inventory,
		loyalty:           deps.Loyalty,
		notifier:          deps.Notifier,
		invoices:          deps.Invoices,
		cache:             deps.Cache,
		paymentWindow:     window,
		deliveryFee:       deps.DeliveryFee,
		freeDeliveryAbove: deps.FreeDeliveryAbove,
		now:               clock,
	}
}

// PaymentWindow 返回付款时限
func (s *OrderService) PaymentWindow() time.Duration {
	return s.paymentWindow
}

// CreateOrder 创建待处理订单，价格取自当前商品价格，库存在确认时才扣减
func (s *OrderService) CreateOrder(ctx context.Context, userID int, in CreateOrderInput) (*model.Order, error) {
	if !in.PaymentMethod.Valid() {
		return nil, errors.New(errors.ErrValidation, "无效的支付方式")
	}
	if len(in.Items) == 0 {
		return nil, errors.New(errors.ErrValidation, "订单至少包含一件商品")
	}

	idemKey := ""
	if in.IdempotencyKey != "" && s.cache != nil {
		idemKey = cache.CheckoutIdempotencyKey(userID, in.IdempotencyKey)
		existing, err := s.claimCheckout(ctx, idemKey)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	order, err := s.createOrder(ctx, userID, in)
	if idemKey != "" {
		if err != nil {
			_ = s.cache.Delete(ctx, idemKey)
		} else if setErr := s.cache.Set(ctx, idemKey, strconv.Itoa(order.ID), checkoutIdempotencyTTL); setErr != nil {
			util.Logger.Warn("写入下单幂等键失败", zap.Error(setErr), zap.Int("order_id", order.ID))
		}
	}
	return order, err
}

// claimCheckout 占用幂等键，已有订单时返回该订单
func (s *OrderService) claimCheckout(ctx context.Context, key string) (*model.Order, error) {
	claimed, err := s.cache.SetNX(ctx, key, checkoutInFlight, checkoutIdempotencyTTL)
	if err != nil {
		// 缓存不可用时不阻塞下单
		util.Logger.Warn("下单幂等检查失败", zap.Error(err))
		return nil, nil
	}
	if claimed {
		return nil, nil
	}

	value, err := s.cache.Get(ctx, key)
	if err != nil || value == checkoutInFlight {
		return nil, errors.New(errors.ErrResourceConflict, "相同的下单请求正在处理")
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.New(errors.ErrResourceConflict, "相同的下单请求正在处理")
	}
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询订单失败", err)
	}
	if order == nil {
		return nil, errors.New(errors.ErrOrderNotFound, "订单不存在")
	}
	util.Logger.Info("重复下单请求，返回已有订单", zap.Int("order_id", order.ID))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, userID int, in CreateOrderInput) (*model.Order, error) {
	address, err := s.resolveAddress(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(in.Items))
	wanted := make(map[int]int, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, errors.New(errors.ErrValidation, "商品数量必须大于 0")
		}
		if _, seen := wanted[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		wanted[item.ProductID] += item.Quantity
	}

	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询商品失败", err)
	}
	byID := make(map[int]*model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || !p.IsActive {
			return nil, errors.New(errors.ErrProductNotFound, fmt.Sprintf("商品 %d 不存在或已下架", id))
		}
		if p.StockQuantity < wanted[id] {
			return nil, errors.New(errors.ErrValidation, fmt.Sprintf("商品 %s 库存不足", p.Name))
		}
	}

	order := &model.Order{
		UserID:          userID,
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		PaymentMethod:   in.PaymentMethod,
		ShippingAddress: address,
		UserNotes:       strings.TrimSpace(in.UserNotes),
	}
	for _, item := range in.Items {
		p := byID[item.ProductID]
		line := model.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Size:        item.Size,
			Quantity:    item.Quantity,
			Price:       p.Price,
			Total:       roundMoney(p.Price * float64(item.Quantity)),
		}
		order.Subtotal += line.Total
		order.Items = append(order.Items, line)
	}
	order.Subtotal = roundMoney(order.Subtotal)
	order.DeliveryFee = s.deliveryFeeFor(order.Subtotal)
	order.TotalAmount = roundMoney(order.Subtotal + order.DeliveryFee)

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.CreateOrder(ctx, order); err != nil {
			return errors.Wrap(errors.ErrDatabase, "创建订单失败", err)
		}
		if order.PaymentMethod == model.PaymentMethodCOD {
			s.notifier.Enqueue(ctx, order, model.TemplateOrderStatusUpdate, NotifyOptions{})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.Logger.Info("订单创建成功",
		zap.Int("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("user_id", userID),
		zap.String("payment_method", string(order.PaymentMethod)),
		zap.Float64("total_amount", order.TotalAmount))
	return order, nil
}

func (s *OrderService) resolveAddress(ctx context.Context, userID int, in CreateOrderInput) (model.ShippingAddress, error) {
	var address model.ShippingAddress
	switch {
	case in.ShippingAddress != nil:
		address = *in.ShippingAddress
	case in.AddressID > 0:
		saved, err := s.users.GetAddressByID(ctx, in.AddressID)
		if err != nil {
			return address, errors.Wrap(errors.ErrDatabase, "查询收货地址失败", err)
		}
		if saved == nil || saved.UserID != userID {
			return address, errors.New(errors.ErrAddressNotFound, "收货地址不存在")
		}
		address = saved.Snapshot()
	default:
		return address, errors.New(errors.ErrValidation, "缺少收货地址")
	}

	if !util.IsValidPincode(address.Pincode) {
		return address, errors.New(errors.ErrValidation, "无效的邮政编码")
	}
	if !util.IsValidPhone(address.Phone) {
		return address, errors.New(errors.ErrValidation, "无效的手机号")
	}
	if address.Country == "" {
		address.Country = "India"
	}
	return address, nil
}

func (s *OrderService) deliveryFeeFor(subtotal float64) float64 {
	if s.freeDeliveryAbove > 0 && subtotal >= s.freeDeliveryAbove {
		return 0
	}
	return s.deliveryFee
}

// GetOrder 查询订单详情，非本人订单对普通用户视为不存在
// 超过付款时限仍未付款的在线订单会在读取时取消
func (s *OrderService) GetOrder(ctx context.Context, viewer Viewer, id int) (*model.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "查询订单失败", err)
	}
	if order == nil || !viewer.canSee(order) {
		return nil, errors.New(errors.ErrOrderNotFound, "订单不存在")
	}

	if s.paymentExpired(order) {
		expired, err := s.ExpireOrder(ctx, order.ID)
		if err != nil {
			util.Logger.Error("取消超时订单失败", zap.Error(err), zap.Int("order_id", order.ID))
		} else if expired != nil {
			order = expired
		}
	}

	if len(order.Items) == 0 {
		items, err := s.orders.GetOrderItems(ctx, order.ID)
		if err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "查询订单明细失败", err)
		}
		order.Items = items
	}
	return order, nil
}

// ListUserOrders 分页查询用户订单
func (s *OrderService) ListUserOrders(ctx context.Context, userID, page, pageSize int) ([]*model.Order, int, error) {
	orders, total, err := s.orders.GetOrdersByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrDatabase, "查询订单列表失败", err)
	}
	return orders, total, nil
}

// ListOrders 管理员按条件查询订单
func (s *OrderService) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, errors.New(errors.ErrValidation, "无效的订单状态")
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, 0, errors.New(errors.ErrValidation, "无效的支付状态")
	}
	orders, total, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrDatabase, "查询订单列表失败", err)
	}
	return orders, total, nil
}

// UpdateOrder 管理员部分更新订单
// 状态变更先查状态表，发货必须有物流单号，任一检查失败订单保持不变
func (s *OrderService) UpdateOrder(ctx context.Context, id int, patch model.OrderPatch, adminID int) (*model.Order, error) {
	var (
		updated *model.Order
		after   []SideEffect
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "查询订单失败", err)
		}
		if order == nil {
			return errors.New(errors.ErrOrderNotFound, "订单不存在")
		}

		prev := order.Status
		target := prev
		if patch.Status != nil {
			if !patch.Status.Valid() {
				return errors.New(errors.ErrValidation, "无效的订单状态")
			}
			target = *patch.Status
		}
		if target != prev && !CanTransition(prev, target) {
			return errors.New(errors.ErrInvalidTransition,
				fmt.Sprintf("订单状态不能从 %s 变更为 %s", prev, target))
		}

		if patch.TrackingNumber != nil {
			order.TrackingNumber = strings.TrimSpace(*patch.TrackingNumber)
		}
		if target == model.OrderStatusShipped && order.TrackingNumber == "" {
			return errors.New(errors.ErrTrackingRequired, "发货必须填写物流单号")
		}
		if patch.AdminNotes != nil {
			order.AdminNotes = *patch.AdminNotes
		}
		if patch.UserNotes != nil {
			order.UserNotes = *patch.UserNotes
		}
		if patch.RazorpayOrderID != nil {
			order.RazorpayOrderID = *patch.RazorpayOrderID
		}
		if patch.RazorpayPaymentID != nil {
			order.RazorpayPaymentID = *patch.RazorpayPaymentID
		}
		if patch.RazorpaySignature != nil {
			order.RazorpaySignature = *patch.RazorpaySignature
		}

		if patch.PaymentStatus != nil {
			markedPaid, err := s.applyPaymentStatus(order, *patch.PaymentStatus)
			if err != nil {
				return err
			}
			if markedPaid {
				after = append(after, EffectAwardLoyalty)
			}
		}

		if target != prev {
			effects, err := s.Transition(ctx, order, target)
			if err != nil {
				return err
			}
			after = append(after, effects...)
		}

		if err := s.orders.UpdateOrder(ctx, order); err != nil {
			return errors.Wrap(errors.ErrDatabase, "更新订单失败", err)
		}
		if target != prev {
			s.notifier.Enqueue(ctx, order, model.TemplateOrderStatusUpdate, NotifyOptions{PreviousStatus: prev})
		}

		util.Logger.Info("管理员更新订单",
			zap.Int("order_id", order.ID),
			zap.Int("admin_id", adminID),
			zap.String("from", string(prev)),
			zap.String("to", string(order.Status)))
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.RunAfterCommit(ctx, updated, after)
	return updated, nil
}

// applyPaymentStatus 支付状态只允许从 pending 改为 paid
func (s *OrderService) applyPaymentStatus(order *model.Order, status model.PaymentStatus) (bool, error) {
	if !status.Valid() {
		return false, errors.New(errors.ErrValidation, "无效的支付状态")
	}
	if status == order.PaymentStatus {
		return false, nil
	}
	if status == model.PaymentStatusPending {
		return false, errors.New(errors.ErrValidation, "已付款订单不能改为待付款")
	}
	now := s.now()
	order.PaymentStatus = model.PaymentStatusPaid
	order.PaidAt = &now
	return true, nil
}

// CancelOrder 顾客取消自己的订单，仅限待处理或已确认状态
func (s *OrderService) CancelOrder(ctx context.Context, userID, id int, reason string) (*model.Order, error) {
	var cancelled *model.Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "查询订单失败", err)
		}
		if order == nil || order.UserID != userID {
			return errors.New(errors.ErrOrderNotFound, "订单不存在")
		}
		if order.Status == model.OrderStatusCancelled {
			cancelled = order
			return nil
		}
		if !customerCancellable[order.Status] {
			return errors.New(errors.ErrInvalidTransition, "订单已进入发货流程，无法取消")
		}

		prev := order.Status
		if _, err := s.Transition(ctx, order, model.OrderStatusCancelled); err != nil {
			return err
		}
		order.CancelReason = strings.TrimSpace(reason)
		if order.CancelReason == "" {
			order.CancelReason = "cancelled by customer"
		}
		if err := s.orders.UpdateOrder(ctx, order); err != nil {
			return errors.Wrap(errors.ErrDatabase, "取消订单失败", err)
		}
		s.notifier.Enqueue(ctx, order, model.TemplateOrderStatusUpdate, NotifyOptions{PreviousStatus: prev})

		if order.PaymentStatus == model.PaymentStatusPaid {
			util.Logger.Warn("已付款订单被取消，需人工退款",
				zap.Int("order_id", order.ID),
				zap.String("payment_id", order.RazorpayPaymentID))
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ExpirePendingOrders 取消超过付款时限的在线订单，返回取消数量
func (s *OrderService) ExpirePendingOrders(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.paymentWindow)
	orders, err := s.orders.ListExpiredPendingOrders(ctx, cutoff, expireBatchSize)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "查询超时订单失败", err)
	}

	count := 0
	for _, o := range orders {
		expired, err := s.ExpireOrder(ctx, o.ID)
		if err != nil {
			util.Logger.Error("取消超时订单失败", zap.Error(err), zap.Int("order_id", o.ID))
			continue
		}
		if expired != nil {
			count++
		}
	}
	if count > 0 {
		util.Logger.Info("超时订单已取消", zap.Int("count", count))
	}
	return count, nil
}

// ExpireOrder 在行锁下复查后取消超时订单，订单不再满足条件时返回 nil
func (s *OrderService) ExpireOrder(ctx context.Context, id int) (*model.Order, error) {
	var expired *model.Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order == nil || !s.paymentExpired(order) {
			return nil
		}

		prev := order.Status
		if _, err := s.Transition(ctx, order, model.OrderStatusCancelled); err != nil {
			return err
		}
		order.CancelReason = "payment window expired"
		if err := s.orders.UpdateOrder(ctx, order); err != nil {
			return err
		}
		s.notifier.Enqueue(ctx, order, model.TemplateOrderStatusUpdate, NotifyOptions{PreviousStatus: prev})

		util.Logger.Info("订单超过付款时限，已取消",
			zap.Int("order_id", order.ID),
			zap.Time("created_at", order.CreatedAt))
		expired = order
		return nil
	})
	return expired, err
}

func (s *OrderService) paymentExpired(order *model.Order) bool {
	return order.AwaitingPayment() && !s.now().Before(order.PaymentDeadline(s.paymentWindow))
}

// Transition 在当前事务中执行状态变更及事务内副作用
// 返回需在提交后执行的副作用，调用方负责保存订单
func (s *OrderService) Transition(ctx context.Context, order *model.Order, to model.OrderStatus) ([]SideEffect, error) {
	from := order.Status
	if !CanTransition(from, to) {
		return nil, errors.New(errors.ErrInvalidTransition,
			fmt.Sprintf("订单状态不能从 %s 变更为 %s", from, to))
	}
	// 在线支付订单只能由支付确认，未付款时不允许人工确认
	if to == model.OrderStatusConfirmed && order.PaymentMethod == model.PaymentMethodOnline &&
		order.PaymentStatus != model.PaymentStatusPaid {
		return nil, errors.New(errors.ErrInvalidTransition, "在线支付订单未付款，不能确认")
	}

	var after []SideEffect
	for _, effect := range SideEffectsFor(from, to) {
		switch effect {
		case EffectReserveStock:
			if _, err := s.inventory.Reserve(ctx, order); err != nil {
				return nil, errors.Wrap(errors.ErrDatabase, "扣减库存失败", err)
			}
		case EffectRestoreStock:
			if _, err := s.inventory.Restore(ctx, order); err != nil {
				return nil, errors.Wrap(errors.ErrDatabase, "恢复库存失败", err)
			}
		case EffectSettleCOD:
			if order.PaymentMethod == model.PaymentMethodCOD && order.PaymentStatus != model.PaymentStatusPaid {
				now := s.now()
				order.PaymentStatus = model.PaymentStatusPaid
				order.PaidAt = &now
			}
		}
		if effect.afterCommit() {
			after = append(after, effect)
		}
	}

	order.Status = to
	return after, nil
}

// RunAfterCommit 执行提交后的副作用，失败只记录日志
func (s *OrderService) RunAfterCommit(ctx context.Context, order *model.Order, effects []SideEffect) {
	done := make(map[SideEffect]bool, len(effects))
	for _, effect := range effects {
		if done[effect] {
			continue
		}
		done[effect] = true

		switch effect {
		case EffectAwardLoyalty:
			if order.PaymentStatus != model.PaymentStatusPaid || s.loyalty == nil {
				continue
			}
			if _, err := s.loyalty.AwardForOrder(ctx, order); err != nil {
				util.Logger.Error("发放积分失败，等待补发", zap.Error(err), zap.Int("order_id", order.ID))
			}
		case EffectIssueInvoice:
			if s.invoices == nil {
				continue
			}
			if _, err := s.invoices.Issue(ctx, order); err != nil {
				util.Logger.Warn("生成发票失败", zap.Error(err), zap.Int("order_id", order.ID))
			}
		}
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

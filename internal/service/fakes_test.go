package service

import (
	"context"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/interfaces"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type txMarker struct{}

// memStore 内存实现的仓库集合，RunInTx 失败时恢复到事务开始前的快照
type memStore struct {
	mu         sync.Mutex
	now        func() time.Time
	nextID     int
	orders     map[int]model.Order
	items      map[int][]model.OrderItem
	products   map[int]model.Product
	movements  []model.StockMovement
	accounts   map[int]model.LoyaltyAccount
	loyaltyTxs []model.LoyaltyTransaction
	outbox     []model.OutboxMessage
	users      map[int]model.User
	addresses  map[int]model.UserAddress

	// 模拟并发下检查与写入之间的竞争
	hideEarned bool
	// 注入积分写入失败
	loyaltyErr error
	// 全量流水汇总返回后执行一次，模拟核对期间的并发写入
	afterLedgerTotals func()
}

var (
	_ interfaces.OrderRepository   = (*memStore)(nil)
	_ interfaces.ProductRepository = (*memStore)(nil)
	_ interfaces.LoyaltyRepository = (*memStore)(nil)
	_ interfaces.OutboxRepository  = (*memStore)(nil)
	_ interfaces.UserRepository    = (*memStore)(nil)
	_ interfaces.UnitOfWork        = (*memStore)(nil)
)

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:       now,
		orders:    make(map[int]model.Order),
		items:     make(map[int][]model.OrderItem),
		products:  make(map[int]model.Product),
		accounts:  make(map[int]model.LoyaltyAccount),
		users:     make(map[int]model.User),
		addresses: make(map[int]model.UserAddress),
	}
}

type memSnapshot struct {
	nextID     int
	orders     map[int]model.Order
	items      map[int][]model.OrderItem
	products   map[int]model.Product
	movements  []model.StockMovement
	accounts   map[int]model.LoyaltyAccount
	loyaltyTxs []model.LoyaltyTransaction
	outbox     []model.OutboxMessage
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		nextID:     s.nextID,
		orders:     copyMap(s.orders),
		items:      copyMap(s.items),
		products:   copyMap(s.products),
		movements:  append([]model.StockMovement(nil), s.movements...),
		accounts:   copyMap(s.accounts),
		loyaltyTxs: append([]model.LoyaltyTransaction(nil), s.loyaltyTxs...),
		outbox:     append([]model.OutboxMessage(nil), s.outbox...),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.orders = snap.orders
	s.items = snap.items
	s.products = snap.products
	s.movements = snap.movements
	s.accounts = snap.accounts
	s.loyaltyTxs = snap.loyaltyTxs
	s.outbox = snap.outbox
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

// ---- 订单 ----

func (s *memStore) CreateOrder(ctx context.Context, order *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.id()
	order.OrderNumber = fmt.Sprintf("ORD-%d-%04d", s.now().Year(), order.ID)
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	order.UpdatedAt = order.CreatedAt
	items := make([]model.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.ID = s.id()
		item.OrderID = order.ID
		items[i] = item
		order.Items[i] = item
	}
	s.items[order.ID] = items
	stored := *order
	stored.Items = nil
	s.orders[order.ID] = stored
	return nil
}

func (s *memStore) getOrder(id int) *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	return &o
}

func (s *memStore) GetOrderByID(ctx context.Context, id int) (*model.Order, error) {
	return s.getOrder(id), nil
}

func (s *memStore) GetOrderForUpdate(ctx context.Context, id int) (*model.Order, error) {
	return s.getOrder(id), nil
}

func (s *memStore) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string, forUpdate bool) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.RazorpayOrderID == gatewayOrderID {
			found := o
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetOrderItems(ctx context.Context, orderID int) ([]model.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OrderItem(nil), s.items[orderID]...), nil
}

func (s *memStore) sortedOrders(keep func(model.Order) bool) []*model.Order {
	var out []*model.Order
	for _, o := range s.orders {
		if keep(o) {
			found := o
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) GetOrdersByUser(ctx context.Context, userID, page, pageSize int) ([]*model.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedOrders(func(o model.Order) bool { return o.UserID == userID })
	return out, len(out), nil
}

func (s *memStore) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedOrders(func(o model.Order) bool {
		return (filter.Status == "" || o.Status == filter.Status) &&
			(filter.PaymentStatus == "" || o.PaymentStatus == filter.PaymentStatus) &&
			(filter.UserID == 0 || o.UserID == filter.UserID)
	})
	return out, len(out), nil
}

func (s *memStore) UpdateOrder(ctx context.Context, order *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return fmt.Errorf("order %d not found", order.ID)
	}
	stored := *order
	stored.Items = nil
	stored.UpdatedAt = s.now()
	s.orders[order.ID] = stored
	return nil
}

func (s *memStore) SetInvoiceURL(ctx context.Context, orderID int, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	o.InvoiceURL = url
	s.orders[orderID] = o
	return nil
}

func (s *memStore) ListExpiredPendingOrders(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedOrders(func(o model.Order) bool {
		return o.AwaitingPayment() && !o.CreatedAt.After(cutoff)
	}), nil
}

func (s *memStore) ListPaidOrdersWithoutLoyalty(ctx context.Context, limit int) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedOrders(func(o model.Order) bool {
		return o.PaymentStatus == model.PaymentStatusPaid && !s.earnedLocked(o.ID)
	}), nil
}

func (s *memStore) GetOrderStats(ctx context.Context) (*model.OrderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &model.OrderStats{ByStatus: make(map[model.OrderStatus]int)}
	for _, o := range s.orders {
		stats.ByStatus[o.Status]++
		stats.TotalOrders++
		if o.PaymentStatus == model.PaymentStatusPaid {
			stats.PaidRevenue += o.TotalAmount
		}
	}
	return stats, nil
}

// ---- 商品 ----

func (s *memStore) addProduct(id int, name string, price float64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = model.Product{ID: id, Name: name, Price: price, StockQuantity: stock, IsActive: true}
}

func (s *memStore) stock(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].StockQuantity
}

func (s *memStore) GetProductByID(ctx context.Context, id int) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) GetProductsByIDs(ctx context.Context, ids []int) ([]*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			found := p
			out = append(out, &found)
		}
	}
	return out, nil
}

func (s *memStore) DecrementStock(ctx context.Context, productID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[productID]
	p.StockQuantity -= quantity
	if p.StockQuantity < 0 {
		p.StockQuantity = 0
	}
	s.products[productID] = p
	return nil
}

func (s *memStore) IncrementStock(ctx context.Context, productID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[productID]
	p.StockQuantity += quantity
	s.products[productID] = p
	return nil
}

func (s *memStore) CreateStockMovement(ctx context.Context, m *model.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	m.CreatedAt = s.now()
	s.movements = append(s.movements, *m)
	return nil
}

// ---- 积分 ----

func (s *memStore) GetAccount(ctx context.Context, userID int, forUpdate bool) (*model.LoyaltyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memStore) UpsertAccount(ctx context.Context, account *model.LoyaltyAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loyaltyErr != nil {
		return s.loyaltyErr
	}
	s.accounts[account.UserID] = *account
	return nil
}

func (s *memStore) earnedLocked(orderID int) bool {
	for _, tx := range s.loyaltyTxs {
		if tx.OrderID != nil && *tx.OrderID == orderID && tx.Type == model.LoyaltyEarned {
			return true
		}
	}
	return false
}

func (s *memStore) HasEarnedForOrder(ctx context.Context, orderID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideEarned {
		return false, nil
	}
	return s.earnedLocked(orderID), nil
}

func (s *memStore) CreateTransaction(ctx context.Context, tx *model.LoyaltyTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loyaltyErr != nil {
		return s.loyaltyErr
	}
	if tx.OrderID != nil {
		for _, existing := range s.loyaltyTxs {
			if existing.OrderID != nil && *existing.OrderID == *tx.OrderID && existing.Type == tx.Type {
				return interfaces.ErrDuplicate
			}
		}
	}
	tx.ID = s.id()
	tx.CreatedAt = s.now()
	s.loyaltyTxs = append(s.loyaltyTxs, *tx)
	return nil
}

func (s *memStore) ListTransactions(ctx context.Context, userID, limit int) ([]*model.LoyaltyTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.LoyaltyTransaction
	for i := len(s.loyaltyTxs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.loyaltyTxs[i].UserID == userID {
			tx := s.loyaltyTxs[i]
			out = append(out, &tx)
		}
	}
	return out, nil
}

func (s *memStore) LedgerTotals(ctx context.Context) ([]model.LoyaltyLedgerTotals, error) {
	out := s.ledgerTotals()
	if hook := s.afterLedgerTotals; hook != nil {
		s.afterLedgerTotals = nil
		hook()
	}
	return out, nil
}

func (s *memStore) UserLedgerTotals(ctx context.Context, userID int) (model.LoyaltyLedgerTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := model.LoyaltyLedgerTotals{UserID: userID}
	for _, tx := range s.loyaltyTxs {
		if tx.UserID != userID {
			continue
		}
		t.Balance += tx.Points
		if tx.Type == model.LoyaltyEarned {
			t.Earned += tx.Points
		}
	}
	return t, nil
}

func (s *memStore) ledgerTotals() []model.LoyaltyLedgerTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := make(map[int]*model.LoyaltyLedgerTotals)
	var ids []int
	for _, tx := range s.loyaltyTxs {
		t, ok := byUser[tx.UserID]
		if !ok {
			t = &model.LoyaltyLedgerTotals{UserID: tx.UserID}
			byUser[tx.UserID] = t
			ids = append(ids, tx.UserID)
		}
		t.Balance += tx.Points
		if tx.Type == model.LoyaltyEarned {
			t.Earned += tx.Points
		}
	}
	sort.Ints(ids)
	out := make([]model.LoyaltyLedgerTotals, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byUser[id])
	}
	return out
}

func (s *memStore) ListAccounts(ctx context.Context) ([]*model.LoyaltyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.LoyaltyAccount
	for _, a := range s.accounts {
		found := a
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memStore) earnedRows(orderID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tx := range s.loyaltyTxs {
		if tx.OrderID != nil && *tx.OrderID == orderID && tx.Type == model.LoyaltyEarned {
			n++
		}
	}
	return n
}

// ---- 发件箱 ----

func (s *memStore) Enqueue(ctx context.Context, msg *model.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = s.id()
	msg.Status = model.OutboxPending
	msg.CreatedAt = s.now()
	s.outbox = append(s.outbox, *msg)
	return nil
}

func (s *memStore) FetchPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.OutboxMessage
	for _, m := range s.outbox {
		if m.Status == model.OutboxPending && len(out) < limit {
			found := m
			out = append(out, &found)
		}
	}
	return out, nil
}

func (s *memStore) MarkPublished(ctx context.Context, id int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Status = model.OutboxPublished
			s.outbox[i].PublishedAt = &at
		}
	}
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, id int, lastErr string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Attempts++
			s.outbox[i].LastError = lastErr
			if s.outbox[i].Attempts >= maxAttempts {
				s.outbox[i].Status = model.OutboxFailed
			}
		}
	}
	return nil
}

func (s *memStore) CountByStatus(ctx context.Context) (map[model.OutboxStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.OutboxStatus]int)
	for _, m := range s.outbox {
		counts[m.Status]++
	}
	return counts, nil
}

// templates 按写入顺序返回某订单的通知模板
func (s *memStore) templates(orderID int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.outbox {
		if m.OrderID == orderID {
			out = append(out, m.Template)
		}
	}
	return out
}

// ---- 用户 ----

func (s *memStore) addUser(id int, email, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = model.User{ID: id, Username: fmt.Sprintf("user%d", id), Email: email, Phone: phone, Role: "user"}
}

func (s *memStore) Create(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = s.id()
	s.users[user.ID] = *user
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id int) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *memStore) CreateAddress(ctx context.Context, address *model.UserAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address.ID = s.id()
	s.addresses[address.ID] = *address
	return nil
}

func (s *memStore) GetAddressByID(ctx context.Context, id int) (*model.UserAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addresses[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memStore) ListUserAddresses(ctx context.Context, userID int) ([]*model.UserAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.UserAddress
	for _, a := range s.addresses {
		if a.UserID == userID {
			found := a
			out = append(out, &found)
		}
	}
	return out, nil
}

// fakeGateway 记录创建次数的支付网关
type fakeGateway struct {
	mu      sync.Mutex
	created int
	err     error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*gatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.created++
	return &gatewayOrder{ID: fmt.Sprintf("order_test_%d", g.created), AmountMinor: amountMinor, Currency: currency, Receipt: receipt}, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

// recordingInvoices 记录生成发票的订单
type recordingInvoices struct {
	mu     sync.Mutex
	issued []int
	err    error
}

func (r *recordingInvoices) Issue(ctx context.Context, order *model.Order) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.issued = append(r.issued, order.ID)
	return "/uploads/invoices/" + order.OrderNumber + ".html", nil
}

func (r *recordingInvoices) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.issued)
}

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/cache"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/repository"
)

// memCatalog is a product repository and inventory store over one map, with
// the same conditional-decrement contract as the Mongo store.
type memCatalog struct {
	mu       sync.Mutex
	products map[string]*models.Product
	failNext map[string]error
}

func newMemCatalog(products ...models.Product) *memCatalog {
	c := &memCatalog{products: map[string]*models.Product{}, failNext: map[string]error{}}
	for i := range products {
		p := products[i]
		c.products[p.ID] = &p
	}
	return c
}

func (c *memCatalog) FindByID(_ context.Context, id string) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *memCatalog) DecrementIfSufficient(_ context.Context, id string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failNext[id]; err != nil {
		delete(c.failNext, id)
		return err
	}
	p, ok := c.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Inventory < qty {
		return repository.ErrInsufficientStock
	}
	p.Inventory -= qty
	return nil
}

func (c *memCatalog) Increment(_ context.Context, id string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Inventory += qty
	return nil
}

func (c *memCatalog) Available(_ context.Context, id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return p.Inventory, nil
}

func (c *memCatalog) inventory(id string) int {
	n, _ := c.Available(context.Background(), id)
	return n
}

func product(id, price string, inventory int) models.Product {
	return models.Product{
		ID:        id,
		Name:      "Product " + id,
		Price:     models.MustMoney(price),
		Inventory: inventory,
		Images:    models.ProductImages{"/img/" + id + ".jpg"},
	}
}

// memCarts mimics the versioned Mongo cart store.
type memCarts struct {
	mu        sync.Mutex
	carts     map[string]models.Cart
	conflicts int
	saves     int
	// getHook runs once, after the next Get has read its copy.
	getHook func()
}

func newMemCarts() *memCarts {
	return &memCarts{carts: map[string]models.Cart{}}
}

func (m *memCarts) Get(_ context.Context, accountID string) (*models.Cart, error) {
	m.mu.Lock()
	c, ok := m.carts[accountID]
	hook := m.getHook
	m.getHook = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (m *memCarts) Save(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrVersionConflict
	}
	cur, ok := m.carts[cart.AccountID]
	if (ok && cur.Version != cart.Version) || (!ok && cart.Version != 0) {
		return repository.ErrVersionConflict
	}
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	m.carts[cart.AccountID] = *cart.Clone()
	m.saves++
	return nil
}

type memCartCache struct {
	mu      sync.Mutex
	entries map[string]*models.Cart
	gets    int
}

func newMemCartCache() *memCartCache {
	return &memCartCache{entries: map[string]*models.Cart{}}
}

func (m *memCartCache) Get(_ context.Context, accountID string) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	c, ok := m.entries[accountID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c.Clone(), nil
}

func (m *memCartCache) Set(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[cart.AccountID]; ok && cur.Version > cart.Version {
		return nil
	}
	m.entries[cart.AccountID] = cart.Clone()
	return nil
}

func (m *memCartCache) Delete(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, accountID)
	return nil
}

type memIdem struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
	// setFailures makes the next Set calls fail.
	setFailures int
}

func newMemIdem() *memIdem {
	return &memIdem{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memIdem) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], m.err
}

func (m *memIdem) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.setFailures > 0 {
		m.setFailures--
		return errors.New("redis timeout")
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memIdem) Claim(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memIdem) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// memOrders applies the same conditional updates as the Mongo repository.
type memOrders struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	createErr error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[string]*models.Order{}}
}

func (m *memOrders) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) FindByUserID(_ context.Context, userID string, page, limit int) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			all = append(all, *o)
		}
	}
	return paginate(all, page, limit), int64(len(all)), nil
}

func (m *memOrders) FindAll(_ context.Context, page, limit int) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Order
	for _, o := range m.orders {
		all = append(all, *o)
	}
	return paginate(all, page, limit), int64(len(all)), nil
}

func paginate(all []models.Order, page, limit int) []models.Order {
	start := (page - 1) * limit
	if start >= len(all) {
		return []models.Order{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (m *memOrders) update(id string, cond func(*models.Order) bool, apply func(*models.Order)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !cond(o) {
		return false, nil
	}
	apply(o)
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memOrders) SetPaymentIntent(_ context.Context, orderID, intentID string) (bool, error) {
	return m.update(orderID, func(o *models.Order) bool { return !o.IsPaid }, func(o *models.Order) {
		o.PaymentIntentID = intentID
		o.PaymentStatus = models.PaymentIntentCreated
	})
}

func (m *memOrders) MarkPaid(_ context.Context, orderID string, result models.PaymentResult, method string, paidAt time.Time) (bool, error) {
	return m.update(orderID, func(o *models.Order) bool { return !o.IsPaid }, func(o *models.Order) {
		o.IsPaid = true
		o.PaidAt = &paidAt
		o.PaymentStatus = models.PaymentPaid
		o.PaymentResult = &result
		if method != "" {
			o.StripePaymentMethod = method
		}
	})
}

func (m *memOrders) MarkPaymentFailed(_ context.Context, orderID string) (bool, error) {
	return m.update(orderID, func(o *models.Order) bool { return !o.IsPaid }, func(o *models.Order) {
		o.PaymentStatus = models.PaymentFailed
	})
}

func (m *memOrders) MarkDelivered(_ context.Context, orderID string, at time.Time) (bool, error) {
	return m.update(orderID, func(o *models.Order) bool { return !o.IsDelivered }, func(o *models.Order) {
		o.IsDelivered = true
		o.DeliveredAt = &at
	})
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func (m *memAccounts) FindByID(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) SetStripeCustomerID(_ context.Context, id, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	if a.StripeCustomerID == "" {
		a.StripeCustomerID = customerID
	}
	return a.StripeCustomerID, nil
}

func (m *memAccounts) SetDefaultPaymentMethod(_ context.Context, id, paymentMethodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.DefaultPaymentMethodID = paymentMethodID
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (f *fakePublisher) Publish(_ context.Context, ev models.OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) ofType(t string) []models.OrderEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OrderEvent
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeLedger struct {
	mu       sync.Mutex
	attempts []models.PaymentAttempt
	outcomes []string
}

func (f *fakeLedger) RecordAttempt(_ context.Context, a *models.PaymentAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeLedger) RecordOutcome(_ context.Context, stripePaymentID, status, _ string, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, stripePaymentID+":"+status)
	return nil
}

// fakeProvider is a scripted payment provider. Webhook signatures are a
// shared secret string compared verbatim.
type fakeProvider struct {
	mu            sync.Mutex
	intents       map[string]*Intent
	events        map[string]*ProviderEvent
	customers     int
	nextIntent    int
	err           error
	webhookSecret string
	// cards and defaults are keyed by customer id.
	cards    map[string][]models.PaymentMethod
	defaults map[string]string
	setups   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		intents:       map[string]*Intent{},
		events:        map[string]*ProviderEvent{},
		webhookSecret: "good-signature",
		cards:         map[string][]models.PaymentMethod{},
		defaults:      map[string]string{},
	}
}

func (f *fakeProvider) CreateCustomer(_ context.Context, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.customers++
	return "cus_" + string(rune('0'+f.customers)), nil
}

func (f *fakeProvider) CreateIntent(_ context.Context, p CreateIntentParams) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextIntent++
	id := "pi_" + string(rune('0'+f.nextIntent))
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       IntentRequiresPaymentMethod,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Metadata:     map[string]string{"order_id": p.OrderID, "user_id": p.UserID},
	}
	f.intents[id] = in
	cp := *in
	return &cp, nil
}

func (f *fakeProvider) RetrieveIntent(_ context.Context, id string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	in, ok := f.intents[id]
	if !ok {
		return nil, &ProviderError{StatusCode: 404, Code: "resource_missing", Message: "No such payment_intent"}
	}
	cp := *in
	return &cp, nil
}

func (f *fakeProvider) ConstructEvent(payload []byte, sig string) (*ProviderEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sig != f.webhookSecret {
		return nil, ErrInvalidSignature
	}
	ev, ok := f.events[string(payload)]
	if !ok {
		return nil, errors.New("unknown payload")
	}
	return ev, nil
}

func (f *fakeProvider) CreateSetupIntent(_ context.Context, customerID, _ string) (*SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.setups = append(f.setups, customerID)
	id := "seti_" + string(rune('0'+len(f.setups)))
	return &SetupIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *fakeProvider) ListCards(_ context.Context, customerID string) ([]models.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.PaymentMethod{}, f.cards[customerID]...), nil
}

func (f *fakeProvider) SetDefaultPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if paymentMethodID == "pm_missing" {
		return &ProviderError{StatusCode: 404, Code: "resource_missing", Message: "No such PaymentMethod"}
	}
	f.defaults[customerID] = paymentMethodID
	return nil
}

// saveCard puts a card on the provider customer.
func (f *fakeProvider) saveCard(customerID, id, last4 string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[customerID] = append(f.cards[customerID], models.PaymentMethod{
		ID:   id,
		Type: "card",
		Card: models.SavedCard{Brand: "visa", Last4: last4, ExpMonth: 12, ExpYear: 2030},
	})
}

// succeed marks an intent as paid on the provider side.
func (f *fakeProvider) succeed(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := f.intents[id]
	in.Status = IntentSucceeded
	in.PaymentMethodID = "pm_card"
	in.ReceiptEmail = "sam@example.com"
}

// deliver registers a webhook event whose payload is its id.
func (f *fakeProvider) deliver(eventID, eventType, intentID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := *f.intents[intentID]
	f.events[eventID] = &ProviderEvent{ID: eventID, Type: eventType, Intent: &in, Raw: []byte(eventID)}
	return []byte(eventID)
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: map[string]int{}}
}

func (r *recordingMetrics) IsEnabled() bool { return true }

func (r *recordingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
	return nil
}

func (r *recordingMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

func (r *recordingMetrics) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

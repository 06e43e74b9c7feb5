package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/farellandr/storefront/internal/models"
)

// tickingClock advances one second per reading so history rows and payment
// timestamps are strictly ordered.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *tickingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentNotification struct {
	Template   string
	Data       map[string]any
	Recipients []string
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	result bool
}

func (n *recordingNotifier) SendConfirmation(_ context.Context, template string, data map[string]any, recipients []string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Template: template, Data: data, Recipients: recipients})
	return n.result
}

func (n *recordingNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Template)
	}
	return out
}

type harness struct {
	svc      *Services
	db       *gorm.DB
	clock    *tickingClock
	notifier *recordingNotifier
	ctx      context.Context
	staff    Actor
	customer Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets a test adjust the dependencies, such as the policy,
// before the services are built.
func newHarnessWith(t *testing.T, configure func(*Deps)) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))

	clock := newTickingClock()
	notifier := &recordingNotifier{result: true}
	deps := Deps{
		DB:       db,
		Logger:   zap.NewNop(),
		Notifier: notifier,
		Clock:    clock.Now,
	}
	if configure != nil {
		configure(&deps)
	}
	svc, err := New(deps)
	require.NoError(t, err)

	return &harness{
		svc:      svc,
		db:       db,
		clock:    clock,
		notifier: notifier,
		ctx:      context.Background(),
		staff:    Actor{UserID: uuid.New(), Email: "staff@example.com", IsStaff: true},
		customer: Actor{UserID: uuid.New(), Email: "customer@example.com"},
	}
}

func (h *harness) product(t *testing.T, name, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{
		Name:          name,
		SKU:           "SKU-" + uuid.NewString()[:8],
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		Lifecycle:     models.Lifecycle{IsActive: true},
	}
	require.NoError(t, h.db.Create(&p).Error)
	return p
}

func (h *harness) variant(t *testing.T, product models.Product, adjustment string, stock int) models.ProductVariant {
	t.Helper()
	v := models.ProductVariant{
		ProductID:       product.ID,
		SKU:             "VAR-" + uuid.NewString()[:8],
		Color:           "black",
		PriceAdjustment: decimal.RequireFromString(adjustment),
		StockQuantity:   stock,
		Lifecycle:       models.Lifecycle{IsActive: true},
	}
	require.NoError(t, h.db.Create(&v).Error)
	return v
}

func (h *harness) stock(t *testing.T, productID uuid.UUID, variantID *uuid.UUID) int {
	t.Helper()
	level, err := h.svc.Inventory.Available(h.ctx, productID, variantID)
	require.NoError(t, err)
	return level
}

// cartWith opens the customer's cart and adds one line per product.
func (h *harness) cartWith(t *testing.T, lines map[uuid.UUID]int) models.Cart {
	t.Helper()
	cart, err := h.svc.Carts.GetOrCreateActive(h.ctx, h.customer, h.customer.UserID)
	require.NoError(t, err)
	for productID, qty := range lines {
		_, err := h.svc.Carts.AddItem(h.ctx, h.customer, cart.ID, AddCartItemInput{ProductID: productID, Quantity: qty})
		require.NoError(t, err)
	}
	return cart
}

// committedOrder builds a cart, turns it into an order and commits it.
func (h *harness) committedOrder(t *testing.T, lines map[uuid.UUID]int) (models.Order, models.Invoice) {
	t.Helper()
	cart := h.cartWith(t, lines)
	order, err := h.svc.Orders.CreateFromCart(h.ctx, h.customer, cart.ID, CreateOrderInput{})
	require.NoError(t, err)
	order, err = h.svc.Orders.Commit(h.ctx, h.customer, order.ID)
	require.NoError(t, err)

	var invoice models.Invoice
	require.NoError(t, h.db.First(&invoice, "order_id = ?", order.ID).Error)
	return order, invoice
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

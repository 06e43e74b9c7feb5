package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/models"
)

func TestAggregateDemandSumsPerStockUnit(t *testing.T) {
	product := uuid.New()
	variant := uuid.New()
	items := []models.OrderItem{
		{ID: uuid.New(), ProductID: product, Quantity: 2},
		{ID: uuid.New(), ProductID: product, VariantID: &variant, Quantity: 1},
		{ID: uuid.New(), ProductID: product, Quantity: 3},
	}

	demands := aggregateDemand(items)
	require.Len(t, demands, 2)
	assert.Equal(t, 5, demands[0].quantity)
	assert.Equal(t, items[0].ID, demands[0].firstItem)
	assert.Equal(t, variant, demands[1].unitID())
}

func TestReserveReportsEveryShortfall(t *testing.T) {
	h := newHarness(t)
	a := h.product(t, "A", "1.00", 1)
	b := h.product(t, "B", "1.00", 0)
	c := h.product(t, "C", "1.00", 10)
	cart := h.cartWith(t, map[uuid.UUID]int{a.ID: 2, b.ID: 1, c.ID: 5})

	order, err := h.svc.Orders.CreateFromCart(h.ctx, h.customer, cart.ID, CreateOrderInput{})
	require.NoError(t, err)
	_, err = h.svc.Orders.Commit(h.ctx, h.customer, order.ID)

	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Len(t, short.Lines, 2)
	assert.Equal(t, 10, h.stock(t, c.ID, nil), "no unit is decremented when any is short")
}

func TestReleaseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "P", "1.00", 5)
	order, _ := h.committedOrder(t, map[uuid.UUID]int{p.ID: 3})
	assert.Equal(t, 2, h.stock(t, p.ID, nil))

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := h.svc.Inventory.release(tx, &order); err != nil {
			return err
		}
		return h.svc.Inventory.release(tx, &order)
	})
	require.NoError(t, err)
	assert.Equal(t, 5, h.stock(t, p.ID, nil))
	assert.False(t, order.StockHeld())
}

func TestRestock(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "P", "1.00", 1)
	v := h.variant(t, p, "0.50", 2)

	_, err := h.svc.Inventory.Restock(h.ctx, h.customer, p.ID, nil, 5)
	var perm *PermissionError
	require.ErrorAs(t, err, &perm)

	level, err := h.svc.Inventory.Restock(h.ctx, h.staff, p.ID, &v.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, level)
	assert.Equal(t, 1, h.stock(t, p.ID, nil))

	_, err = h.svc.Inventory.Restock(h.ctx, h.staff, p.ID, nil, 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = h.svc.Inventory.Available(h.ctx, uuid.New(), nil)
	var missing *NotFoundError
	require.ErrorAs(t, err, &missing)
}

// Another checkout takes stock after the shortfall check but before the
// decrement. The guarded update must lose cleanly instead of overselling.
func TestReserveLosesRaceAfterShortfallCheck(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Lamp", "20.00", 3)

	first, err := h.svc.Orders.CreateFromCart(h.ctx, h.customer, h.cartWith(t, map[uuid.UUID]int{p.ID: 2}).ID, CreateOrderInput{})
	require.NoError(t, err)
	second, err := h.svc.Orders.CreateFromCart(h.ctx, h.customer, h.cartWith(t, map[uuid.UUID]int{p.ID: 2}).ID, CreateOrderInput{})
	require.NoError(t, err)

	interleave := false
	var seenDuringRace int
	require.NoError(t, h.db.Callback().Update().Before("gorm:update").Register("test:rival_checkout", func(db *gorm.DB) {
		if !interleave || db.Statement.Table != "products" {
			return
		}
		interleave = false
		conn := db.Session(&gorm.Session{NewDB: true})
		conn.Exec("UPDATE products SET stock_quantity = stock_quantity - ? WHERE id = ?", 2, p.ID)
		conn.Raw("SELECT stock_quantity FROM products WHERE id = ?", p.ID).Scan(&seenDuringRace)
	}))

	interleave = true
	_, err = h.svc.Orders.Commit(h.ctx, h.customer, second.ID)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Lines, 1)
	assert.Equal(t, 2, short.Lines[0].Requested)
	assert.Equal(t, 1, short.Lines[0].Available)
	assert.Equal(t, 1, seenDuringRace)
	assert.Equal(t, 3, h.stock(t, p.ID, nil), "the failed commit rolls back as a whole")

	loser, err := h.svc.Orders.Get(h.ctx, h.customer, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderUnpaid, loser.Status)
	assert.Nil(t, loser.StockReservedAt)
	var invoices int64
	require.NoError(t, h.db.Model(&models.Invoice{}).Where("order_id = ?", second.ID).Count(&invoices).Error)
	assert.Zero(t, invoices)

	winner, err := h.svc.Orders.Commit(h.ctx, h.customer, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAwaitingPayment, winner.Status)
	assert.Equal(t, 1, h.stock(t, p.ID, nil))

	_, err = h.svc.Orders.Commit(h.ctx, h.customer, second.ID)
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 1, h.stock(t, p.ID, nil), "stock never goes negative")
}

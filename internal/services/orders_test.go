package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/storefront/internal/models"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.OrderStatus
		want     bool
	}{
		{models.OrderUnpaid, models.OrderAwaitingPayment, true},
		{models.OrderUnpaid, models.OrderPaid, false},
		{models.OrderAwaitingPayment, models.OrderPaid, true},
		{models.OrderPaid, models.OrderShipped, true},
		{models.OrderPaid, models.OrderCancelled, true},
		{models.OrderShipped, models.OrderCancelled, false},
		{models.OrderDelivered, models.OrderCompleted, true},
		{models.OrderCompleted, models.OrderRefunded, true},
		{models.OrderCancelled, models.OrderUnpaid, false},
		{models.OrderRefunded, models.OrderPaid, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestCreateFromCartComputesTotals(t *testing.T) {
	h := newHarness(t)
	shirt := h.product(t, "Shirt", "20.00", 10)
	mug := h.product(t, "Mug", "7.50", 10)
	large := h.variant(t, shirt, "2.50", 4)

	cart, err := h.svc.Carts.GetOrCreateActive(h.ctx, h.customer, h.customer.UserID)
	require.NoError(t, err)
	_, err = h.svc.Carts.AddItem(h.ctx, h.customer, cart.ID, AddCartItemInput{ProductID: shirt.ID, VariantID: &large.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = h.svc.Carts.AddItem(h.ctx, h.customer, cart.ID, AddCartItemInput{ProductID: mug.ID, Quantity: 1})
	require.NoError(t, err)

	order, err := h.svc.Orders.CreateFromCart(h.ctx, h.customer, cart.ID, CreateOrderInput{
		ShippingCost: dec("5.00"),
		Taxes:        []TaxInput{{Name: "VAT", Rate: dec("0.10")}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderUnpaid, order.Status)
	assert.Equal(t, "USD", order.Currency)
	assert.True(t, dec("52.50").Equal(order.ItemsTotal), order.ItemsTotal.String())
	assert.True(t, dec("5.25").Equal(order.TaxTotal), order.TaxTotal.String())
	assert.True(t, dec("62.75").Equal(order.TotalAmount), order.TotalAmount.String())
	require.Len(t, order.Items, 2)

	var reloaded models.Cart
	require.NoError(t, h.db.First(&reloaded, "id = ?", cart.ID).Error)
	assert.Equal(t, models.CartOrdered, reloaded.Status)

	_, err = h.svc.Orders.CreateFromCart(h.ctx, h.customer, cart.ID, CreateOrderInput{})
	var state *InvalidStateError
	require.ErrorAs(t, err, &state)
}

func TestCreateFromCartRejectsInactiveLine(t *testing.T) {
	h := newHarness(t)
	gone := h.product(t, "Discontinued", "9.99", 5)
	cart := h.cartWith(t, map[uuid.UUID]int{gone.ID: 1})
	require.NoError(t, h.db.Model(&gone).Update("is_active", false).Error)

	_, err := h.svc.Orders.CreateFromCart(h.ctx, h.customer, cart.ID, CreateOrderInput{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items[0]", verr.Field)
}

func TestCommitFailsOnInsufficientStock(t *testing.T) {
	h := newHarness(t)
	x := h.product(t, "Product X", "10.00", 1)
	cart := h.cartWith(t, map[uuid.UUID]int{x.ID: 2})

	order, err := h.svc.Orders.CreateFromCart(h.ctx, h.customer, cart.ID, CreateOrderInput{})
	require.NoError(t, err)

	_, err = h.svc.Orders.Commit(h.ctx, h.customer, order.ID)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Lines, 1)
	assert.Equal(t, 2, short.Lines[0].Requested)
	assert.Equal(t, 1, short.Lines[0].Available)

	assert.Equal(t, 1, h.stock(t, x.ID, nil))
	reloaded, err := h.svc.Orders.Get(h.ctx, h.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderUnpaid, reloaded.Status)
	assert.Nil(t, reloaded.StockReservedAt)

	var invoices int64
	require.NoError(t, h.db.Model(&models.Invoice{}).Where("order_id = ?", order.ID).Count(&invoices).Error)
	assert.Zero(t, invoices)
}

func TestCommitThenCancelRestoresStock(t *testing.T) {
	h := newHarness(t)
	a := h.product(t, "A", "3.00", 10)
	b := h.product(t, "B", "4.00", 5)
	color := h.variant(t, b, "1.00", 6)

	cart, err := h.svc.Carts.GetOrCreateActive(h.ctx, h.customer, h.customer.UserID)
	require.NoError(t, err)
	_, err = h.svc.Carts.AddItem(h.ctx, h.customer, cart.ID, AddCartItemInput{ProductID: a.ID, Quantity: 4})
	require.NoError(t, err)
	_, err = h.svc.Carts.AddItem(h.ctx, h.customer, cart.ID, AddCartItemInput{ProductID: b.ID, VariantID: &color.ID, Quantity: 3})
	require.NoError(t, err)

	order, err := h.svc.Orders.CreateFromCart(h.ctx, h.customer, cart.ID, CreateOrderInput{})
	require.NoError(t, err)
	order, err = h.svc.Orders.Commit(h.ctx, h.customer, order.ID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderAwaitingPayment, order.Status)
	assert.True(t, order.StockHeld())
	assert.Equal(t, 6, h.stock(t, a.ID, nil))
	assert.Equal(t, 5, h.stock(t, b.ID, nil), "variant lines reserve against the variant")
	assert.Equal(t, 3, h.stock(t, b.ID, &color.ID))

	var invoice models.Invoice
	require.NoError(t, h.db.First(&invoice, "order_id = ?", order.ID).Error)
	assert.Contains(t, invoice.InvoiceNumber, "INV-")
	assert.True(t, order.TotalAmount.Equal(invoice.Amount))

	cancelled, err := h.svc.Orders.Cancel(h.ctx, h.customer, order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, 10, h.stock(t, a.ID, nil))
	assert.Equal(t, 6, h.stock(t, b.ID, &color.ID))

	var items []models.OrderItem
	require.NoError(t, h.db.Where("order_id = ?", order.ID).Find(&items).Error)
	for _, item := range items {
		assert.Zero(t, item.ReservedQuantity)
	}

	_, err = h.svc.Orders.Cancel(h.ctx, h.customer, order.ID, "again")
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, 10, h.stock(t, a.ID, nil))
}

func TestCancelCancelsPendingPayments(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Lamp", "40.00", 2)
	order, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})

	payment, err := h.svc.Payments.Create(h.ctx, h.customer, CreatePaymentInput{
		InvoiceID: invoice.ID, Amount: dec("40.00"), Method: models.MethodCreditCard,
	})
	require.NoError(t, err)

	_, err = h.svc.Orders.Cancel(h.ctx, h.customer, order.ID, "")
	require.NoError(t, err)

	reloaded, err := h.svc.Payments.Get(h.ctx, h.customer, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, reloaded.Status)
}

func TestTransitionRules(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Desk", "100.00", 1)
	order, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})

	_, err := h.svc.Orders.Transition(h.ctx, h.customer, order.ID, models.OrderShipped, "")
	var perm *PermissionError
	require.ErrorAs(t, err, &perm)

	_, err = h.svc.Orders.Transition(h.ctx, h.staff, order.ID, models.OrderPaid, "")
	var state *InvalidStateError
	require.ErrorAs(t, err, &state, "paid requires completed payments covering the total")

	_, err = h.svc.Orders.Transition(h.ctx, h.staff, order.ID, models.OrderShipped, "")
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	_, err = h.svc.Orders.Transition(h.ctx, h.staff, order.ID, models.OrderCancelled, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	payment, err := h.svc.Payments.Create(h.ctx, h.customer, CreatePaymentInput{
		InvoiceID: invoice.ID, Amount: dec("100.00"), Method: models.MethodBankTransfer,
	})
	require.NoError(t, err)
	_, err = h.svc.Payments.MarkCompleted(h.ctx, h.staff, payment.ID)
	require.NoError(t, err)

	for _, next := range []models.OrderStatus{models.OrderShipped, models.OrderDelivered, models.OrderCompleted} {
		order, err = h.svc.Orders.Transition(h.ctx, h.staff, order.ID, next, "fulfilment")
		require.NoError(t, err)
		assert.Equal(t, next, order.Status)
	}

	history, err := h.svc.Orders.History(h.ctx, h.customer, order.ID)
	require.NoError(t, err)
	var path []models.OrderStatus
	for _, entry := range history {
		path = append(path, entry.ToStatus)
	}
	assert.Equal(t, []models.OrderStatus{
		models.OrderUnpaid, models.OrderAwaitingPayment, models.OrderPaid,
		models.OrderShipped, models.OrderDelivered, models.OrderCompleted,
	}, path)
	assert.Equal(t, models.OrderDelivered, history[len(history)-1].FromStatus)
	require.NotNil(t, history[len(history)-1].ActorID)
	assert.Equal(t, h.staff.UserID, *history[len(history)-1].ActorID)
}

func TestOrderOwnership(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Chair", "15.00", 3)
	order, _ := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})

	stranger := Actor{UserID: uuid.New()}
	_, err := h.svc.Orders.Get(h.ctx, stranger, order.ID)
	var perm *PermissionError
	require.ErrorAs(t, err, &perm)

	_, err = h.svc.Orders.Cancel(h.ctx, stranger, order.ID, "")
	require.ErrorAs(t, err, &perm)

	orders, total, err := h.svc.Orders.ListForUser(h.ctx, h.customer, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, orders, 1)
}

func TestNotificationFailureDoesNotUndoCommit(t *testing.T) {
	h := newHarness(t)
	h.notifier.result = false
	p := h.product(t, "Pen", "1.00", 5)

	order, _ := h.committedOrder(t, map[uuid.UUID]int{p.ID: 2})
	assert.Equal(t, models.OrderAwaitingPayment, order.Status)
	assert.Equal(t, 3, h.stock(t, p.ID, nil))
	assert.Contains(t, h.notifier.templates(), TemplateOrderStatusChanged)
}

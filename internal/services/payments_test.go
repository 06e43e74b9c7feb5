package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/storefront/internal/models"
)

func (h *harness) pendingPayment(t *testing.T, invoice models.Invoice, amount string) models.Payment {
	t.Helper()
	payment, err := h.svc.Payments.Create(h.ctx, h.customer, CreatePaymentInput{
		InvoiceID: invoice.ID,
		Amount:    dec(amount),
		Method:    models.MethodCreditCard,
	})
	require.NoError(t, err)
	return payment
}

func TestPaymentCompleteThenOverRefundFails(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Monitor", "100.00", 2)
	_, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})

	payment := h.pendingPayment(t, invoice, "100.00")
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Nil(t, payment.ConfirmedAt)

	completed, err := h.svc.Payments.MarkCompleted(h.ctx, h.staff, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, completed.Status)
	require.NotNil(t, completed.ConfirmedAt)

	_, err = h.svc.Payments.RequestRefund(h.ctx, h.customer, payment.ID, RequestRefundInput{Amount: dec("150.00")})
	var state *InvalidStateError
	require.ErrorAs(t, err, &state)

	reloaded, err := h.svc.Payments.Get(h.ctx, h.customer, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, reloaded.Status)
}

func TestPaymentCompletionIsOneWay(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Keyboard", "30.00", 2)
	_, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})
	payment := h.pendingPayment(t, invoice, "30.00")

	_, err := h.svc.Payments.MarkCompleted(h.ctx, h.customer, payment.ID)
	var perm *PermissionError
	require.ErrorAs(t, err, &perm)

	_, err = h.svc.Payments.MarkCompleted(h.ctx, h.staff, payment.ID)
	require.NoError(t, err)

	_, err = h.svc.Payments.MarkCompleted(h.ctx, h.staff, payment.ID)
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, string(models.PaymentCompleted), transition.From)

	_, err = h.svc.Payments.MarkCancelled(h.ctx, h.customer, payment.ID, "")
	require.ErrorAs(t, err, &transition)
	_, err = h.svc.Payments.MarkFailed(h.ctx, h.staff, payment.ID, "")
	require.ErrorAs(t, err, &transition)
}

func TestCompletedIffConfirmed(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Cable", "5.00", 10)
	_, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 4})

	a := h.pendingPayment(t, invoice, "5.00")
	b := h.pendingPayment(t, invoice, "6.00")
	c := h.pendingPayment(t, invoice, "9.00")

	_, err := h.svc.Payments.MarkCompleted(h.ctx, h.staff, a.ID)
	require.NoError(t, err)
	_, err = h.svc.Payments.MarkFailed(h.ctx, h.staff, b.ID, "card declined")
	require.NoError(t, err)
	_, err = h.svc.Payments.MarkCancelled(h.ctx, h.customer, c.ID, "")
	require.NoError(t, err)

	var payments []models.Payment
	require.NoError(t, h.db.Find(&payments).Error)
	for _, p := range payments {
		assert.Equal(t, p.Status == models.PaymentCompleted, p.ConfirmedAt != nil, "payment %s", p.PaymentReference)
	}

	// A refund keeps the confirmation time of the money it returned.
	h.refundInFull(t, a)
	refunded, err := h.svc.Payments.Get(h.ctx, h.staff, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)
	assert.NotNil(t, refunded.ConfirmedAt)
	require.NoError(t, h.db.Find(&payments).Error)
	for _, p := range payments {
		if p.Status == models.PaymentCompleted {
			assert.NotNil(t, p.ConfirmedAt, "payment %s", p.PaymentReference)
		}
		if p.ConfirmedAt != nil {
			assert.Contains(t, []models.PaymentStatus{models.PaymentCompleted, models.PaymentRefunded}, p.Status)
		}
	}

	err = h.db.Model(&models.Payment{}).Where("id = ?", b.ID).Update("status", models.PaymentCompleted).Error
	assert.Error(t, err, "storage must refuse COMPLETED without confirmed_at")
}

func TestPaymentReferenceIsNaturalKey(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Bag", "12.00", 2)
	_, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})

	in := CreatePaymentInput{InvoiceID: invoice.ID, Amount: dec("12.00"), Method: models.MethodPayPal, PaymentReference: "gw-123"}
	_, err := h.svc.Payments.Create(h.ctx, h.customer, in)
	require.NoError(t, err)
	_, err = h.svc.Payments.Create(h.ctx, h.customer, in)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = h.svc.Payments.Create(h.ctx, h.customer, CreatePaymentInput{InvoiceID: invoice.ID, Amount: dec("-1"), Method: models.MethodCash})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = h.svc.Payments.Create(h.ctx, h.customer, CreatePaymentInput{InvoiceID: invoice.ID, Amount: dec("1"), Method: "BARTER"})
	require.ErrorAs(t, err, &verr)
}

func TestSplitPaymentsSettleOrder(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Sofa", "100.00", 1)
	order, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})

	first := h.pendingPayment(t, invoice, "60.00")
	second := h.pendingPayment(t, invoice, "40.00")

	_, err := h.svc.Payments.MarkCompleted(h.ctx, h.staff, first.ID)
	require.NoError(t, err)
	reloaded, err := h.svc.Orders.Get(h.ctx, h.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAwaitingPayment, reloaded.Status)

	_, err = h.svc.Payments.MarkCompleted(h.ctx, h.staff, second.ID)
	require.NoError(t, err)
	reloaded, err = h.svc.Orders.Get(h.ctx, h.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, reloaded.Status)

	paid, err := h.svc.Payments.TotalPaid(h.ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(paid), paid.String())

	assert.Contains(t, h.notifier.templates(), TemplatePaymentCompleted)
}

func TestFindDuplicatesWithinWindow(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Phone", "25.00", 5)
	_, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})

	h.pendingPayment(t, invoice, "25.00")
	failed := h.pendingPayment(t, invoice, "25.00")
	_, err := h.svc.Payments.MarkFailed(h.ctx, h.staff, failed.ID, "")
	require.NoError(t, err)
	h.pendingPayment(t, invoice, "10.00")

	dupes, err := h.svc.Payments.FindDuplicates(h.ctx, invoice.ID, dec("25.00"), 5*time.Minute)
	require.NoError(t, err)
	assert.Len(t, dupes, 1)

	h.clock.Advance(10 * time.Minute)
	dupes, err = h.svc.Payments.FindDuplicates(h.ctx, invoice.ID, dec("25.00"), 0)
	require.NoError(t, err)
	assert.Empty(t, dupes)
}

func TestExpireStalePending(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Tent", "50.00", 5)
	_, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})

	stale := h.pendingPayment(t, invoice, "50.00")
	h.clock.Advance(25 * time.Hour)
	fresh := h.pendingPayment(t, invoice, "50.00")

	old, err := h.svc.Payments.PendingOlderThan(h.ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, stale.ID, old[0].ID)

	count, err := h.svc.Payments.ExpireStalePending(h.ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	reloaded, err := h.svc.Payments.Get(h.ctx, h.customer, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, reloaded.Status)
	reloaded, err = h.svc.Payments.Get(h.ctx, h.customer, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, reloaded.Status)
}

func TestPaymentRejectedForCancelledOrder(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Clock", "20.00", 5)
	order, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 1})
	_, err := h.svc.Orders.Cancel(h.ctx, h.customer, order.ID, "")
	require.NoError(t, err)

	_, err = h.svc.Payments.Create(h.ctx, h.customer, CreatePaymentInput{InvoiceID: invoice.ID, Amount: dec("20.00"), Method: models.MethodCash})
	var state *InvalidStateError
	require.ErrorAs(t, err, &state)
}

func TestPaymentSummary(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, "Camera", "10.00", 5)
	_, invoice := h.committedOrder(t, map[uuid.UUID]int{p.ID: 4})

	a := h.pendingPayment(t, invoice, "10.00")
	h.pendingPayment(t, invoice, "30.00")
	_, err := h.svc.Payments.MarkCompleted(h.ctx, h.staff, a.ID)
	require.NoError(t, err)

	_, err = h.svc.Payments.Summary(h.ctx, h.customer, time.Time{})
	var perm *PermissionError
	require.ErrorAs(t, err, &perm)

	summary, err := h.svc.Payments.Summary(h.ctx, h.staff, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalPayments)
	assert.True(t, dec("40").Equal(summary.TotalAmount))
	assert.True(t, dec("50").Equal(summary.SuccessRate))
	assert.Equal(t, int64(1), summary.ByStatus[string(models.PaymentCompleted)].Count)
	assert.Equal(t, int64(2), summary.ByMethod[string(models.MethodCreditCard)].Count)
}

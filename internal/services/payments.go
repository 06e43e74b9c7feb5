package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/models"
)

type CreatePaymentInput struct {
	InvoiceID        uuid.UUID            `json:"invoice_id" binding:"required"`
	Amount           decimal.Decimal      `json:"amount"`
	Currency         string               `json:"currency"`
	Method           models.PaymentMethod `json:"method" binding:"required"`
	PaymentReference string               `json:"payment_reference"`
	Notes            string               `json:"notes"`
}

// PaymentBreakdown aggregates payments sharing a status or a method.
type PaymentBreakdown struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type PaymentSummary struct {
	TotalPayments int64                       `json:"total_payments"`
	TotalAmount   decimal.Decimal             `json:"total_amount"`
	SuccessRate   decimal.Decimal             `json:"success_rate"`
	ByStatus      map[string]PaymentBreakdown `json:"by_status"`
	ByMethod      map[string]PaymentBreakdown `json:"by_method"`
}

// PaymentService runs the payment and refund state machines. PENDING is the
// only payment state with outgoing moves besides COMPLETED -> REFUNDED, and
// every move is a conditional update on the current status.
type PaymentService struct {
	*base
	orders *OrderService
}

// Create records a pending payment against an invoice. The payment reference
// is the natural key: submitting the same reference twice is a conflict.
func (s *PaymentService) Create(ctx context.Context, actor Actor, in CreatePaymentInput) (models.Payment, error) {
	if in.Amount.IsNegative() {
		return models.Payment{}, invalid("amount", "must not be negative")
	}
	if !in.Method.Valid() {
		return models.Payment{}, invalid("method", "unsupported payment method %q", in.Method)
	}
	reference := strings.TrimSpace(in.PaymentReference)
	if reference == "" {
		reference = s.newRef("PAY")
	}

	var payment models.Payment
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Preload("Order").First(&invoice, "id = ?", in.InvoiceID).Error; err != nil {
			return translateStorageError(err, "invoice", in.InvoiceID.String())
		}
		if !actor.CanAccess(invoice.UserID) {
			return &PermissionError{Action: "pay this invoice"}
		}
		if invoice.Order == nil {
			return notFound("order", invoice.OrderID)
		}
		switch invoice.Order.Status {
		case models.OrderCancelled, models.OrderRefunded:
			return &InvalidStateError{
				Entity: "order", ID: invoice.OrderID, State: string(invoice.Order.Status),
				Action: "accept payments",
			}
		}

		currency, err := normalizeCurrency(in.Currency, invoice.Currency)
		if err != nil {
			return err
		}
		if currency != invoice.Currency {
			return invalid("currency", "must match invoice currency %s", invoice.Currency)
		}

		var taken int64
		if err := tx.Unscoped().Model(&models.Payment{}).Where("payment_reference = ?", reference).Count(&taken).Error; err != nil {
			return translateStorageError(err, "payment", reference)
		}
		if taken > 0 {
			return &ConflictError{Entity: "payment", Key: reference}
		}

		userID := invoice.UserID
		payment = models.Payment{
			InvoiceID:        invoice.ID,
			UserID:           &userID,
			PaymentReference: reference,
			Amount:           in.Amount,
			Currency:         currency,
			Method:           in.Method,
			Status:           models.PaymentPending,
			TransactionDate:  s.now(),
			Notes:            strings.TrimSpace(in.Notes),
			Lifecycle:        models.Lifecycle{IsActive: true},
		}
		if err := tx.Create(&payment).Error; err != nil {
			return translateStorageError(err, "payment", reference)
		}
		return nil
	})
	if err != nil {
		return models.Payment{}, err
	}

	if dupes, err := s.FindDuplicates(ctx, payment.InvoiceID, payment.Amount, 0); err == nil && len(dupes) > 1 {
		s.log.Warn("possible duplicate payment",
			zap.String("payment_id", payment.ID.String()),
			zap.String("invoice_id", payment.InvoiceID.String()),
			zap.Int("matches", len(dupes)),
		)
	}
	s.log.Info("payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("reference", payment.PaymentReference),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)
	return payment, nil
}

// MarkCompleted confirms a pending payment and, in the same transaction,
// promotes the order to paid when its completed payments cover the total.
func (s *PaymentService) MarkCompleted(ctx context.Context, actor Actor, id uuid.UUID) (models.Payment, error) {
	if !actor.IsStaff {
		return models.Payment{}, &PermissionError{Action: "confirm payments"}
	}

	var payment models.Payment
	var queued []notification
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		if err := s.moveFromPending(tx, id, models.PaymentCompleted, map[string]any{
			"status":       models.PaymentCompleted,
			"confirmed_at": now,
		}); err != nil {
			return err
		}

		var err error
		payment, err = s.load(tx, id)
		if err != nil {
			return err
		}
		invoice, err := s.invoiceOf(tx, payment)
		if err != nil {
			return err
		}

		queued = append(queued, notification{
			template: TemplatePaymentCompleted,
			data: map[string]any{
				"payment_id":     payment.ID.String(),
				"reference":      payment.PaymentReference,
				"amount":         payment.Amount.StringFixed(2),
				"currency":       payment.Currency,
				"invoice_number": invoice.InvoiceNumber,
			},
			recipients: recipient(invoice.UserID),
		})

		settled, err := s.orders.settle(tx, invoice.OrderID, actor)
		if err != nil {
			return err
		}
		if settled != nil {
			queued = append(queued, *settled)
		}
		return nil
	})
	if err != nil {
		return models.Payment{}, err
	}

	s.log.Info("payment completed", zap.String("payment_id", id.String()))
	s.deliver(ctx, queued)
	return payment, nil
}

// MarkFailed records a gateway failure. Only pending payments can fail.
func (s *PaymentService) MarkFailed(ctx context.Context, actor Actor, id uuid.UUID, reason string) (models.Payment, error) {
	if !actor.IsStaff {
		return models.Payment{}, &PermissionError{Action: "fail payments"}
	}
	return s.closePending(ctx, id, models.PaymentFailed, reason, nil)
}

// MarkCancelled withdraws a pending payment. Completed payments must be
// refunded instead.
func (s *PaymentService) MarkCancelled(ctx context.Context, actor Actor, id uuid.UUID, reason string) (models.Payment, error) {
	return s.closePending(ctx, id, models.PaymentCancelled, reason, &actor)
}

func (s *PaymentService) closePending(ctx context.Context, id uuid.UUID, to models.PaymentStatus, reason string, owner *Actor) (models.Payment, error) {
	var payment models.Payment
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if owner != nil {
			current, err := s.load(tx, id)
			if err != nil {
				return err
			}
			invoice, err := s.invoiceOf(tx, current)
			if err != nil {
				return err
			}
			if !owner.CanAccess(invoice.UserID) {
				return &PermissionError{Action: "cancel this payment"}
			}
		}

		changes := map[string]any{"status": to}
		if note := strings.TrimSpace(reason); note != "" {
			changes["notes"] = note
		}
		if err := s.moveFromPending(tx, id, to, changes); err != nil {
			return err
		}
		var err error
		payment, err = s.load(tx, id)
		return err
	})
	if err != nil {
		return models.Payment{}, err
	}

	s.log.Info("payment closed", zap.String("payment_id", id.String()), zap.String("status", string(to)))
	return payment, nil
}

// moveFromPending applies changes only while the payment is still PENDING.
func (s *PaymentService) moveFromPending(tx *gorm.DB, id uuid.UUID, to models.PaymentStatus, changes map[string]any) error {
	res := tx.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentPending).
		Updates(changes)
	if res.Error != nil {
		return translateStorageError(res.Error, "payment", id.String())
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := s.load(tx, id)
	if err != nil {
		return err
	}
	return &InvalidTransitionError{Entity: "payment", ID: id, From: string(current.Status), To: string(to)}
}

// FindDuplicates lists live payments for the same invoice and amount inside
// the window. It is advisory; nothing is blocked.
func (s *PaymentService) FindDuplicates(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, within time.Duration) ([]models.Payment, error) {
	if within <= 0 {
		within = s.policy.DuplicatePaymentWindow
	}
	var payments []models.Payment
	err := s.conn(ctx).Model(&models.Payment{}).
		Scopes(
			models.PaymentsForInvoice(invoiceID),
			models.PaymentsWithAmount(amount),
			models.TransactedSince(s.now().Add(-within)),
			models.PaymentsWithoutStatus(models.PaymentFailed, models.PaymentCancelled),
		).
		Order("transaction_date ASC").
		Find(&payments).Error
	if err != nil {
		return nil, translateStorageError(err, "payment", invoiceID.String())
	}
	return payments, nil
}

// PendingOlderThan lists pending payments whose transaction date is older
// than age.
func (s *PaymentService) PendingOlderThan(ctx context.Context, age time.Duration) ([]models.Payment, error) {
	if age <= 0 {
		age = s.policy.PendingPaymentTTL
	}
	var payments []models.Payment
	err := s.conn(ctx).Model(&models.Payment{}).
		Scopes(models.PaymentsWithStatus(models.PaymentPending), models.TransactedBefore(s.now().Add(-age))).
		Order("transaction_date ASC").
		Find(&payments).Error
	if err != nil {
		return nil, translateStorageError(err, "payment", "pending")
	}
	return payments, nil
}

// ExpireStalePending fails every pending payment older than age in one
// statement and returns how many were affected.
func (s *PaymentService) ExpireStalePending(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		age = s.policy.PendingPaymentTTL
	}
	cutoff := s.now().Add(-age)
	res := s.conn(ctx).Model(&models.Payment{}).
		Scopes(models.PaymentsWithStatus(models.PaymentPending), models.TransactedBefore(cutoff)).
		Update("status", models.PaymentFailed)
	if res.Error != nil {
		return 0, translateStorageError(res.Error, "payment", "pending")
	}

	s.log.Info("stale pending payments expired",
		zap.Int64("count", res.RowsAffected),
		zap.Time("cutoff", cutoff),
	)
	return res.RowsAffected, nil
}

func (s *PaymentService) Get(ctx context.Context, actor Actor, id uuid.UUID) (models.Payment, error) {
	db := s.conn(ctx)
	payment, err := s.load(db, id)
	if err != nil {
		return models.Payment{}, err
	}
	invoice, err := s.invoiceOf(db, payment)
	if err != nil {
		return models.Payment{}, err
	}
	if !actor.CanAccess(invoice.UserID) {
		return models.Payment{}, &PermissionError{Action: "view this payment"}
	}
	return payment, nil
}

func (s *PaymentService) ListForOrder(ctx context.Context, actor Actor, orderID uuid.UUID) ([]models.Payment, error) {
	db := s.conn(ctx)
	if _, err := s.orders.loadForActor(db, actor, orderID, "view this order"); err != nil {
		return nil, err
	}
	var payments []models.Payment
	err := db.Model(&models.Payment{}).
		Preload("Refunds").
		Preload("Refunds.Items").
		Scopes(models.PaymentsForOrder(orderID)).
		Order("transaction_date ASC").
		Find(&payments).Error
	if err != nil {
		return nil, translateStorageError(err, "payment", orderID.String())
	}
	return payments, nil
}

// TotalPaid sums the completed payments of an order.
func (s *PaymentService) TotalPaid(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	return s.orders.TotalPaid(ctx, orderID)
}

// Summary aggregates payments transacted since the given time, or all of
// them when since is zero.
func (s *PaymentService) Summary(ctx context.Context, actor Actor, since time.Time) (PaymentSummary, error) {
	if !actor.IsStaff {
		return PaymentSummary{}, &PermissionError{Action: "view payment summaries"}
	}
	query := s.conn(ctx).Model(&models.Payment{})
	if !since.IsZero() {
		query = query.Scopes(models.TransactedSince(since))
	}
	var payments []models.Payment
	if err := query.Find(&payments).Error; err != nil {
		return PaymentSummary{}, translateStorageError(err, "payment", "summary")
	}

	summary := PaymentSummary{
		TotalAmount: decimal.Zero,
		SuccessRate: decimal.Zero,
		ByStatus:    map[string]PaymentBreakdown{},
		ByMethod:    map[string]PaymentBreakdown{},
	}
	var completed int64
	for _, p := range payments {
		summary.TotalPayments++
		summary.TotalAmount = summary.TotalAmount.Add(p.Amount)
		summary.ByStatus[string(p.Status)] = addBreakdown(summary.ByStatus[string(p.Status)], p.Amount)
		summary.ByMethod[string(p.Method)] = addBreakdown(summary.ByMethod[string(p.Method)], p.Amount)
		if p.Status == models.PaymentCompleted {
			completed++
		}
	}
	if summary.TotalPayments > 0 {
		summary.SuccessRate = decimal.NewFromInt(completed * 100).
			Div(decimal.NewFromInt(summary.TotalPayments)).
			Round(2)
	}
	return summary, nil
}

func addBreakdown(b PaymentBreakdown, amount decimal.Decimal) PaymentBreakdown {
	b.Count++
	b.Amount = b.Amount.Add(amount)
	return b
}

func (s *PaymentService) load(tx *gorm.DB, id uuid.UUID) (models.Payment, error) {
	var payment models.Payment
	if err := tx.First(&payment, "id = ?", id).Error; err != nil {
		return models.Payment{}, translateStorageError(err, "payment", id.String())
	}
	return payment, nil
}

func (s *PaymentService) invoiceOf(tx *gorm.DB, payment models.Payment) (models.Invoice, error) {
	var invoice models.Invoice
	err := tx.Unscoped().First(&invoice, "id = ?", payment.InvoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Invoice{}, notFound("invoice", payment.InvoiceID)
	}
	if err != nil {
		return models.Invoice{}, translateStorageError(err, "invoice", payment.InvoiceID.String())
	}
	return invoice, nil
}

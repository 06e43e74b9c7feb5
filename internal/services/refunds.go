package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/models"
)

type RefundItemInput struct {
	OrderItemID uuid.UUID `json:"order_item_id" binding:"required"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason"`
}

// RequestRefundInput opens a refund. A zero Amount with Items set requests
// the value of the listed lines.
type RequestRefundInput struct {
	Amount decimal.Decimal   `json:"amount"`
	Reason string            `json:"reason"`
	Notes  string            `json:"notes"`
	Items  []RefundItemInput `json:"items"`
}

// SettleRefundInput carries the staff decision. A zero Amount takes the
// amount of the previous step.
type SettleRefundInput struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes"`
}

const defaultRefundReason = "requested_by_customer"

// RequestRefund opens a PENDING refund against a completed payment. Open and
// completed refunds together never claim more than the payment amount, and
// line items never claim more units than the order line holds.
func (s *PaymentService) RequestRefund(ctx context.Context, actor Actor, paymentID uuid.UUID, in RequestRefundInput) (models.Refund, error) {
	if in.Amount.IsNegative() {
		return models.Refund{}, invalid("amount", "must be greater than zero")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = defaultRefundReason
	}
	if len(reason) > 50 {
		return models.Refund{}, invalid("reason", "must be at most 50 characters")
	}

	var refund models.Refund
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		payment, err := s.load(tx, paymentID)
		if err != nil {
			return err
		}
		invoice, err := s.invoiceOf(tx, payment)
		if err != nil {
			return err
		}
		if !actor.CanAccess(invoice.UserID) {
			return &PermissionError{Action: "refund this payment"}
		}
		if payment.Status != models.PaymentCompleted {
			return &InvalidStateError{Entity: "payment", ID: paymentID, State: string(payment.Status), Action: "be refunded"}
		}

		items, itemsTotal, err := s.refundLines(tx, invoice.OrderID, in.Items)
		if err != nil {
			return err
		}
		amount := in.Amount
		if amount.IsZero() {
			amount = itemsTotal
		}
		if !amount.IsPositive() {
			return invalid("amount", "must be greater than zero")
		}

		claimed, err := s.claimedAmount(tx, paymentID)
		if err != nil {
			return err
		}
		remaining := payment.Amount.Sub(claimed)
		if amount.GreaterThan(remaining) {
			return &InvalidStateError{
				Entity: "payment", ID: paymentID, State: string(payment.Status), Action: "be refunded",
				Reason: "amount " + amount.StringFixed(2) + " exceeds refundable " + remaining.StringFixed(2),
			}
		}

		refund = models.Refund{
			RefundNumber:    s.newRef("RF"),
			PaymentID:       payment.ID,
			OrderID:         invoice.OrderID,
			UserID:          invoice.UserID,
			Status:          models.RefundPending,
			AmountRequested: amount,
			AmountRefunded:  decimal.Zero,
			Currency:        payment.Currency,
			Reason:          reason,
			Notes:           strings.TrimSpace(in.Notes),
			RequestedBy:     actor.ref(),
			RequestedAt:     s.now(),
			Items:           items,
			Lifecycle:       models.Lifecycle{IsActive: true},
		}
		if err := tx.Create(&refund).Error; err != nil {
			return translateStorageError(err, "refund", refund.RefundNumber)
		}
		return nil
	})
	if err != nil {
		return models.Refund{}, err
	}

	s.log.Info("refund requested",
		zap.String("payment_id", paymentID.String()),
		zap.String("refund_number", refund.RefundNumber),
		zap.String("amount", refund.AmountRequested.StringFixed(2)),
	)
	return refund, nil
}

// ApproveRefund fixes the amount staff agreed to return. It may be lower
// than what was requested, never higher.
func (s *PaymentService) ApproveRefund(ctx context.Context, actor Actor, refundID uuid.UUID, in SettleRefundInput) (models.Refund, error) {
	if !actor.IsStaff {
		return models.Refund{}, &PermissionError{Action: "approve refunds"}
	}
	if in.Amount.IsNegative() {
		return models.Refund{}, invalid("amount", "must be greater than zero")
	}

	var refund models.Refund
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		refund, err = s.loadRefund(tx, refundID)
		if err != nil {
			return err
		}
		approved := in.Amount
		if approved.IsZero() {
			approved = refund.AmountRequested
		}
		if approved.GreaterThan(refund.AmountRequested) {
			return invalid("amount", "must not exceed the requested %s", refund.AmountRequested.StringFixed(2))
		}
		changes := map[string]any{
			"amount_approved": decimal.NewNullDecimal(approved),
		}
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			changes["internal_notes"] = notes
		}
		return s.moveRefund(tx, &refund, models.RefundPending, models.RefundApproved, actor, changes)
	})
	if err != nil {
		return models.Refund{}, err
	}

	s.log.Info("refund approved", zap.String("refund_number", refund.RefundNumber))
	return refund, nil
}

// CompleteRefund records the money as returned. The payment turns REFUNDED
// once completed refunds cover it, and the order turns refunded, with its
// stock released, once it holds no completed payment.
func (s *PaymentService) CompleteRefund(ctx context.Context, actor Actor, refundID uuid.UUID, in SettleRefundInput) (models.Refund, error) {
	if !actor.IsStaff {
		return models.Refund{}, &PermissionError{Action: "complete refunds"}
	}
	if in.Amount.IsNegative() {
		return models.Refund{}, invalid("amount", "must be greater than zero")
	}

	var refund models.Refund
	var queued []notification
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		refund, err = s.loadRefund(tx, refundID)
		if err != nil {
			return err
		}
		if refund.Status != models.RefundApproved {
			return &InvalidTransitionError{Entity: "refund", ID: refund.ID, From: string(refund.Status), To: string(models.RefundCompleted)}
		}
		approved := refund.AmountApproved.Decimal
		amount := in.Amount
		if amount.IsZero() {
			amount = approved
		}
		if amount.GreaterThan(approved) {
			return invalid("amount", "must not exceed the approved %s", approved.StringFixed(2))
		}

		payment, err := s.load(tx, refund.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentCompleted {
			return &InvalidStateError{Entity: "payment", ID: payment.ID, State: string(payment.Status), Action: "be refunded"}
		}

		changes := map[string]any{"amount_refunded": amount}
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			changes["internal_notes"] = notes
		}
		if err := s.moveRefund(tx, &refund, models.RefundApproved, models.RefundCompleted, actor, changes); err != nil {
			return err
		}

		settled, err := s.settledAmount(tx, payment.ID)
		if err != nil {
			return err
		}
		if settled.GreaterThanOrEqual(payment.Amount) {
			res := tx.Model(&models.Payment{}).
				Where("id = ? AND status = ?", payment.ID, models.PaymentCompleted).
				Update("status", models.PaymentRefunded)
			if res.Error != nil {
				return translateStorageError(res.Error, "payment", payment.ID.String())
			}
			if res.RowsAffected == 0 {
				return &ConflictError{Entity: "payment", Key: payment.ID.String() + " status"}
			}
			refunded, err := s.orders.markRefunded(tx, refund.OrderID, actor)
			if err != nil {
				return err
			}
			if refunded != nil {
				queued = append(queued, *refunded)
			}
		}

		queued = append(queued, notification{
			template: TemplatePaymentRefunded,
			data: map[string]any{
				"payment_id":    payment.ID.String(),
				"refund_number": refund.RefundNumber,
				"amount":        amount.StringFixed(2),
				"currency":      refund.Currency,
			},
			recipients: recipient(refund.UserID),
		})
		return nil
	})
	if err != nil {
		return models.Refund{}, err
	}

	s.log.Info("refund completed",
		zap.String("refund_number", refund.RefundNumber),
		zap.String("amount", refund.AmountRefunded.StringFixed(2)),
	)
	s.deliver(ctx, queued)
	return refund, nil
}

// RejectRefund closes a pending refund without returning anything.
func (s *PaymentService) RejectRefund(ctx context.Context, actor Actor, refundID uuid.UUID, notes string) (models.Refund, error) {
	if !actor.IsStaff {
		return models.Refund{}, &PermissionError{Action: "reject refunds"}
	}
	var refund models.Refund
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		refund, err = s.loadRefund(tx, refundID)
		if err != nil {
			return err
		}
		changes := map[string]any{}
		if notes = strings.TrimSpace(notes); notes != "" {
			changes["internal_notes"] = notes
		}
		return s.moveRefund(tx, &refund, models.RefundPending, models.RefundRejected, actor, changes)
	})
	if err != nil {
		return models.Refund{}, err
	}
	s.log.Info("refund rejected", zap.String("refund_number", refund.RefundNumber))
	return refund, nil
}

// CancelRefund withdraws a pending refund. The requester and staff may
// cancel.
func (s *PaymentService) CancelRefund(ctx context.Context, actor Actor, refundID uuid.UUID) (models.Refund, error) {
	var refund models.Refund
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		refund, err = s.loadRefund(tx, refundID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(refund.UserID) {
			return &PermissionError{Action: "cancel this refund"}
		}
		return s.moveRefund(tx, &refund, models.RefundPending, models.RefundCancelled, actor, map[string]any{})
	})
	if err != nil {
		return models.Refund{}, err
	}
	s.log.Info("refund cancelled", zap.String("refund_number", refund.RefundNumber))
	return refund, nil
}

func (s *PaymentService) GetRefund(ctx context.Context, actor Actor, refundID uuid.UUID) (models.Refund, error) {
	refund, err := s.loadRefund(s.conn(ctx), refundID)
	if err != nil {
		return models.Refund{}, err
	}
	if !actor.CanAccess(refund.UserID) {
		return models.Refund{}, &PermissionError{Action: "view this refund"}
	}
	return refund, nil
}

func (s *PaymentService) loadRefund(tx *gorm.DB, id uuid.UUID) (models.Refund, error) {
	var refund models.Refund
	if err := tx.Preload("Items").First(&refund, "id = ?", id).Error; err != nil {
		return models.Refund{}, translateStorageError(err, "refund", id.String())
	}
	return refund, nil
}

// moveRefund is the only writer of refunds.status. The update is conditional
// on the status the caller read.
func (s *PaymentService) moveRefund(tx *gorm.DB, refund *models.Refund, from, to models.RefundStatus, actor Actor, changes map[string]any) error {
	if refund.Status != from {
		return &InvalidTransitionError{Entity: "refund", ID: refund.ID, From: string(refund.Status), To: string(to)}
	}
	now := s.now()
	changes["status"] = to
	changes["processed_by"] = actor.ref()
	changes["processed_at"] = now

	res := tx.Model(&models.Refund{}).Where("id = ? AND status = ?", refund.ID, from).Updates(changes)
	if res.Error != nil {
		return translateStorageError(res.Error, "refund", refund.ID.String())
	}
	if res.RowsAffected == 0 {
		return &ConflictError{Entity: "refund", Key: refund.ID.String() + " status"}
	}

	reloaded, err := s.loadRefund(tx, refund.ID)
	if err != nil {
		return err
	}
	*refund = reloaded
	return nil
}

// refundLines validates requested order lines. Units already claimed by
// open or completed refunds count against each line.
func (s *PaymentService) refundLines(tx *gorm.DB, orderID uuid.UUID, in []RefundItemInput) ([]models.RefundItem, decimal.Decimal, error) {
	total := decimal.Zero
	if len(in) == 0 {
		return nil, total, nil
	}

	seen := map[uuid.UUID]bool{}
	items := make([]models.RefundItem, 0, len(in))
	for i, line := range in {
		field := "items[" + strconv.Itoa(i) + "]"
		if seen[line.OrderItemID] {
			return nil, total, invalid(field, "order item %s listed twice", line.OrderItemID)
		}
		seen[line.OrderItemID] = true
		if line.Quantity < 1 {
			return nil, total, invalid(field+".quantity", "must be at least 1")
		}
		if len(line.Reason) > 50 {
			return nil, total, invalid(field+".reason", "must be at most 50 characters")
		}

		var orderItem models.OrderItem
		err := tx.Where("id = ? AND order_id = ?", line.OrderItemID, orderID).First(&orderItem).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, total, invalid(field+".order_item_id", "order item %s is not part of this order", line.OrderItemID)
			}
			return nil, total, translateStorageError(err, "order item", line.OrderItemID.String())
		}

		var claimed int64
		err = tx.Model(&models.RefundItem{}).
			Joins("JOIN refunds ON refunds.id = refund_items.refund_id").
			Where("refund_items.order_item_id = ? AND refunds.status IN ?", orderItem.ID, holdingRefundStatuses()).
			Where("refunds.date_deleted IS NULL").
			Select("COALESCE(SUM(refund_items.quantity), 0)").
			Scan(&claimed).Error
		if err != nil {
			return nil, total, translateStorageError(err, "refund item", orderItem.ID.String())
		}
		if int(claimed)+line.Quantity > orderItem.Quantity {
			return nil, total, invalid(field+".quantity", "only %d of %d units left to refund", orderItem.Quantity-int(claimed), orderItem.Quantity)
		}

		items = append(items, models.RefundItem{
			OrderItemID: orderItem.ID,
			Quantity:    line.Quantity,
			UnitPrice:   orderItem.UnitPrice,
			Reason:      strings.TrimSpace(line.Reason),
			Lifecycle:   models.Lifecycle{IsActive: true},
		})
		total = total.Add(orderItem.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return items, total, nil
}

func holdingRefundStatuses() []models.RefundStatus {
	return []models.RefundStatus{models.RefundPending, models.RefundApproved, models.RefundCompleted}
}

// claimedAmount is what open and completed refunds hold against a payment:
// the requested amount while pending, the approved amount once approved and
// the refunded amount once completed.
func (s *PaymentService) claimedAmount(tx *gorm.DB, paymentID uuid.UUID) (decimal.Decimal, error) {
	var refunds []models.Refund
	if err := tx.Where("payment_id = ? AND status IN ?", paymentID, holdingRefundStatuses()).Find(&refunds).Error; err != nil {
		return decimal.Zero, translateStorageError(err, "refund", paymentID.String())
	}
	total := decimal.Zero
	for _, r := range refunds {
		switch r.Status {
		case models.RefundPending:
			total = total.Add(r.AmountRequested)
		case models.RefundApproved:
			total = total.Add(r.AmountApproved.Decimal)
		case models.RefundCompleted:
			total = total.Add(r.AmountRefunded)
		}
	}
	return total, nil
}

func (s *PaymentService) settledAmount(tx *gorm.DB, paymentID uuid.UUID) (decimal.Decimal, error) {
	var refunds []models.Refund
	if err := tx.Where("payment_id = ? AND status = ?", paymentID, models.RefundCompleted).Find(&refunds).Error; err != nil {
		return decimal.Zero, translateStorageError(err, "refund", paymentID.String())
	}
	total := decimal.Zero
	for _, r := range refunds {
		total = total.Add(r.AmountRefunded)
	}
	return total, nil
}

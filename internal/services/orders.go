package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/models"
)

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderUnpaid:          {models.OrderAwaitingPayment, models.OrderCancelled},
	models.OrderAwaitingPayment: {models.OrderPaid, models.OrderCancelled},
	models.OrderPaid:            {models.OrderShipped, models.OrderCancelled, models.OrderRefunded},
	models.OrderShipped:         {models.OrderDelivered, models.OrderRefunded},
	models.OrderDelivered:       {models.OrderCompleted, models.OrderRefunded},
	models.OrderCompleted:       {models.OrderRefunded},
}

// CanTransition reports whether the order state machine allows from -> to.
func CanTransition(from, to models.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func knownOrderStatus(status models.OrderStatus) bool {
	switch status {
	case models.OrderUnpaid, models.OrderAwaitingPayment, models.OrderPaid, models.OrderShipped,
		models.OrderDelivered, models.OrderCompleted, models.OrderCancelled, models.OrderRefunded:
		return true
	}
	return false
}

type TaxInput struct {
	Name string          `json:"name" binding:"required"`
	Rate decimal.Decimal `json:"rate"`
}

type CreateOrderInput struct {
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Taxes        []TaxInput      `json:"taxes"`
	Currency     string          `json:"currency"`
}

// OrderService drives the order state machine. Every status change writes the
// status column with a compare-and-set and appends a history row in the same
// transaction.
type OrderService struct {
	*base
	inventory *InventoryService
}

// CreateFromCart snapshots the live lines of an active cart into a new unpaid
// order and marks the cart as ordered.
func (s *OrderService) CreateFromCart(ctx context.Context, actor Actor, cartID uuid.UUID, in CreateOrderInput) (models.Order, error) {
	if in.ShippingCost.IsNegative() {
		return models.Order{}, invalid("shipping_cost", "must not be negative")
	}
	currency, err := normalizeCurrency(in.Currency, s.policy.DefaultCurrency)
	if err != nil {
		return models.Order{}, err
	}
	seen := map[string]bool{}
	for i, tax := range in.Taxes {
		name := strings.TrimSpace(tax.Name)
		field := fmt.Sprintf("taxes[%d]", i)
		if name == "" {
			return models.Order{}, invalid(field, "name is required")
		}
		if seen[name] {
			return models.Order{}, invalid(field, "duplicate tax %q", name)
		}
		seen[name] = true
		if tax.Rate.IsNegative() || tax.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return models.Order{}, invalid(field, "rate must be between 0 and 1")
		}
	}

	var order models.Order
	var queued []notification
	err = s.inTx(ctx, func(tx *gorm.DB) error {
		var cart models.Cart
		if err := tx.Preload("Items").First(&cart, "id = ?", cartID).Error; err != nil {
			return translateStorageError(err, "cart", cartID.String())
		}
		if !actor.CanAccess(cart.UserID) {
			return &PermissionError{Action: "order from this cart"}
		}
		if cart.Status != models.CartActive {
			return &InvalidStateError{Entity: "cart", ID: cart.ID, State: string(cart.Status), Action: "be ordered"}
		}
		if len(cart.Items) == 0 {
			return invalid("cart", "has no items")
		}

		itemsTotal := decimal.Zero
		items := make([]models.OrderItem, 0, len(cart.Items))
		for i, line := range cart.Items {
			item, err := s.snapshotLine(tx, i, line)
			if err != nil {
				return err
			}
			itemsTotal = itemsTotal.Add(item.TotalPrice)
			items = append(items, item)
		}

		taxTotal := decimal.Zero
		taxes := make([]models.OrderTax, 0, len(in.Taxes))
		for _, tax := range in.Taxes {
			value := tax.Rate.Mul(itemsTotal).Round(2)
			taxTotal = taxTotal.Add(value)
			taxes = append(taxes, models.OrderTax{
				Name:      strings.TrimSpace(tax.Name),
				Rate:      tax.Rate,
				Base:      itemsTotal,
				TaxValue:  value,
				Lifecycle: models.Lifecycle{IsActive: true},
			})
		}

		order = models.Order{
			UserID:       cart.UserID,
			CartID:       &cart.ID,
			Status:       models.OrderUnpaid,
			Currency:     currency,
			ItemsTotal:   itemsTotal,
			ShippingCost: in.ShippingCost,
			TaxTotal:     taxTotal,
			TotalAmount:  itemsTotal.Add(in.ShippingCost).Add(taxTotal),
			Items:        items,
			Taxes:        taxes,
			Lifecycle:    models.Lifecycle{IsActive: true},
		}
		if err := tx.Create(&order).Error; err != nil {
			return translateStorageError(err, "order", cart.ID.String())
		}

		res := tx.Model(&models.Cart{}).
			Where("id = ? AND status = ?", cart.ID, models.CartActive).
			Update("status", models.CartOrdered)
		if res.Error != nil {
			return translateStorageError(res.Error, "cart", cart.ID.String())
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Entity: "cart", Key: cart.ID.String() + " status"}
		}

		if err := s.appendHistory(tx, order.ID, "", models.OrderUnpaid, actor, "created from cart"); err != nil {
			return err
		}
		queued = append(queued, statusNotification(order, "", models.OrderUnpaid))
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(order.Items)),
	)
	s.deliver(ctx, queued)
	return order, nil
}

func (s *OrderService) snapshotLine(tx *gorm.DB, index int, line models.CartItem) (models.OrderItem, error) {
	field := fmt.Sprintf("items[%d]", index)

	var product models.Product
	err := tx.First(&product, "id = ?", line.ProductID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !product.IsLive()) {
		return models.OrderItem{}, invalid(field, "product %s is no longer available", line.ProductID)
	}
	if err != nil {
		return models.OrderItem{}, translateStorageError(err, "product", line.ProductID.String())
	}

	var variant *models.ProductVariant
	if line.VariantID != nil {
		var v models.ProductVariant
		err := tx.First(&v, "id = ? AND product_id = ?", *line.VariantID, product.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !v.IsLive()) {
			return models.OrderItem{}, invalid(field, "variant %s is no longer available", *line.VariantID)
		}
		if err != nil {
			return models.OrderItem{}, translateStorageError(err, "product variant", line.VariantID.String())
		}
		variant = &v
	}

	unit := models.UnitPrice(product, variant)
	return models.OrderItem{
		ProductID:   product.ID,
		VariantID:   line.VariantID,
		ProductName: product.Name,
		Quantity:    line.Quantity,
		UnitPrice:   unit,
		TotalPrice:  unit.Mul(decimal.NewFromInt(int64(line.Quantity))),
		Lifecycle:   models.Lifecycle{IsActive: true},
	}, nil
}

// Commit moves an unpaid order to awaiting_payment: stock is reserved, the
// invoice is issued and the history row is written, or nothing is.
func (s *OrderService) Commit(ctx context.Context, actor Actor, orderID uuid.UUID) (models.Order, error) {
	var order models.Order
	var queued []notification
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.loadForActor(tx, actor, orderID, "commit this order")
		if err != nil {
			return err
		}
		if order.Status != models.OrderUnpaid {
			return &InvalidTransitionError{Entity: "order", ID: order.ID, From: string(order.Status), To: string(models.OrderAwaitingPayment)}
		}

		if err := s.inventory.reserve(tx, &order); err != nil {
			return err
		}

		invoice := models.Invoice{
			InvoiceNumber: s.newRef("INV"),
			OrderID:       order.ID,
			UserID:        order.UserID,
			Amount:        order.TotalAmount,
			Currency:      order.Currency,
			IssuedAt:      s.now(),
			Lifecycle:     models.Lifecycle{IsActive: true},
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return translateStorageError(err, "invoice", order.ID.String())
		}

		from := order.Status
		if err := s.changeStatus(tx, &order, models.OrderAwaitingPayment, actor, "committed"); err != nil {
			return err
		}
		queued = append(queued, statusNotification(order, from, order.Status))
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.log.Info("order committed", zap.String("order_id", order.ID.String()))
	s.deliver(ctx, queued)
	return order, nil
}

// Transition applies a staff-driven move through the transition table.
// Cancellation and refunds have dedicated operations with side effects.
func (s *OrderService) Transition(ctx context.Context, actor Actor, orderID uuid.UUID, target models.OrderStatus, note string) (models.Order, error) {
	if !actor.IsStaff {
		return models.Order{}, &PermissionError{Action: "change order status"}
	}
	if !knownOrderStatus(target) {
		return models.Order{}, invalid("status", "unknown order status %q", target)
	}
	switch target {
	case models.OrderCancelled:
		return models.Order{}, invalid("status", "use the cancel operation")
	case models.OrderRefunded:
		return models.Order{}, invalid("status", "orders are refunded through their payments")
	case models.OrderAwaitingPayment:
		return models.Order{}, invalid("status", "use the commit operation")
	}

	var order models.Order
	var queued []notification
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.load(tx, orderID)
		if err != nil {
			return err
		}
		if target == models.OrderPaid {
			paid, err := s.totalPaid(tx, order.ID)
			if err != nil {
				return err
			}
			if paid.LessThan(order.TotalAmount) {
				return &InvalidStateError{
					Entity: "order", ID: order.ID, State: string(order.Status), Action: "be marked paid",
					Reason: fmt.Sprintf("completed payments %s below total %s", paid.StringFixed(2), order.TotalAmount.StringFixed(2)),
				}
			}
		}
		from := order.Status
		if err := s.changeStatus(tx, &order, target, actor, note); err != nil {
			return err
		}
		queued = append(queued, statusNotification(order, from, target))
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.deliver(ctx, queued)
	return order, nil
}

// Cancel cancels the order, returns any reserved stock and cancels payments
// that are still pending. Customers may cancel their own orders until they are
// paid; a paid order can only be cancelled by staff.
func (s *OrderService) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (models.Order, error) {
	var order models.Order
	var queued []notification
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.loadForActor(tx, actor, orderID, "cancel this order")
		if err != nil {
			return err
		}
		if order.Status == models.OrderPaid && !actor.IsStaff {
			return &PermissionError{Action: "cancel a paid order"}
		}

		from := order.Status
		if err := s.changeStatus(tx, &order, models.OrderCancelled, actor, reason); err != nil {
			return err
		}
		if err := s.inventory.release(tx, &order); err != nil {
			return err
		}
		res := tx.Model(&models.Payment{}).
			Scopes(models.PaymentsForOrder(order.ID), models.PaymentsWithStatus(models.PaymentPending)).
			Update("status", models.PaymentCancelled)
		if res.Error != nil {
			return translateStorageError(res.Error, "payment", order.ID.String())
		}
		if res.RowsAffected > 0 {
			s.log.Info("pending payments cancelled with order",
				zap.String("order_id", order.ID.String()),
				zap.Int64("payments", res.RowsAffected),
			)
		}
		queued = append(queued, statusNotification(order, from, order.Status))
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.log.Info("order cancelled", zap.String("order_id", order.ID.String()), zap.String("reason", reason))
	s.deliver(ctx, queued)
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (models.Order, error) {
	return s.loadForActor(s.conn(ctx), actor, orderID, "view this order")
}

// ListForUser returns the actor's orders, newest first.
func (s *OrderService) ListForUser(ctx context.Context, actor Actor, page, limit int) ([]models.Order, int64, error) {
	query := s.conn(ctx).Model(&models.Order{}).Where("user_id = ?", actor.UserID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateStorageError(err, "order", actor.UserID.String())
	}
	var orders []models.Order
	if err := query.Scopes(models.Paginate(page, limit)).Order("date_created DESC").Find(&orders).Error; err != nil {
		return nil, 0, translateStorageError(err, "order", actor.UserID.String())
	}
	return orders, total, nil
}

// History returns the status history of an order, oldest first.
func (s *OrderService) History(ctx context.Context, actor Actor, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	db := s.conn(ctx)
	if _, err := s.loadForActor(db, actor, orderID, "view this order"); err != nil {
		return nil, err
	}
	var history []models.OrderStatusHistory
	if err := db.Where("order_id = ?", orderID).Order("changed_at ASC").Find(&history).Error; err != nil {
		return nil, translateStorageError(err, "order history", orderID.String())
	}
	return history, nil
}

// TotalPaid sums the completed payments of an order.
func (s *OrderService) TotalPaid(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	return s.totalPaid(s.conn(ctx), orderID)
}

func (s *OrderService) totalPaid(tx *gorm.DB, orderID uuid.UUID) (decimal.Decimal, error) {
	var payments []models.Payment
	err := tx.Model(&models.Payment{}).
		Scopes(models.PaymentsForOrder(orderID), models.PaymentsWithStatus(models.PaymentCompleted)).
		Find(&payments).Error
	if err != nil {
		return decimal.Zero, translateStorageError(err, "payment", orderID.String())
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, nil
}

// settle promotes an order awaiting payment to paid once its completed
// payments cover the total.
func (s *OrderService) settle(tx *gorm.DB, orderID uuid.UUID, actor Actor) (*notification, error) {
	order, err := s.load(tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderAwaitingPayment {
		return nil, nil
	}
	paid, err := s.totalPaid(tx, orderID)
	if err != nil {
		return nil, err
	}
	if paid.LessThan(order.TotalAmount) {
		return nil, nil
	}
	if err := s.changeStatus(tx, &order, models.OrderPaid, actor, "payments cover order total"); err != nil {
		return nil, err
	}
	n := statusNotification(order, models.OrderAwaitingPayment, models.OrderPaid)
	return &n, nil
}

// markRefunded moves a post-payment order to refunded once it no longer holds
// any completed payment, returning its stock.
func (s *OrderService) markRefunded(tx *gorm.DB, orderID uuid.UUID, actor Actor) (*notification, error) {
	order, err := s.load(tx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(order.Status, models.OrderRefunded) {
		return nil, nil
	}
	var completed int64
	err = tx.Model(&models.Payment{}).
		Scopes(models.PaymentsForOrder(orderID), models.PaymentsWithStatus(models.PaymentCompleted)).
		Count(&completed).Error
	if err != nil {
		return nil, translateStorageError(err, "payment", orderID.String())
	}
	if completed > 0 {
		return nil, nil
	}

	from := order.Status
	if err := s.changeStatus(tx, &order, models.OrderRefunded, actor, "all payments refunded"); err != nil {
		return nil, err
	}
	if err := s.inventory.release(tx, &order); err != nil {
		return nil, err
	}
	n := statusNotification(order, from, models.OrderRefunded)
	return &n, nil
}

// changeStatus is the only writer of orders.status.
func (s *OrderService) changeStatus(tx *gorm.DB, order *models.Order, to models.OrderStatus, actor Actor, note string) error {
	if !CanTransition(order.Status, to) {
		return &InvalidTransitionError{Entity: "order", ID: order.ID, From: string(order.Status), To: string(to)}
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Update("status", to)
	if res.Error != nil {
		return translateStorageError(res.Error, "order", order.ID.String())
	}
	if res.RowsAffected == 0 {
		return &ConflictError{Entity: "order", Key: order.ID.String() + " status"}
	}
	if err := s.appendHistory(tx, order.ID, order.Status, to, actor, note); err != nil {
		return err
	}
	order.Status = to
	return nil
}

func (s *OrderService) appendHistory(tx *gorm.DB, orderID uuid.UUID, from, to models.OrderStatus, actor Actor, note string) error {
	entry := models.OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.ref(),
		Note:       strings.TrimSpace(note),
		ChangedAt:  s.now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return translateStorageError(err, "order history", orderID.String())
	}
	return nil
}

func (s *OrderService) load(tx *gorm.DB, orderID uuid.UUID) (models.Order, error) {
	var order models.Order
	if err := tx.Preload("Items").Preload("Taxes").First(&order, "id = ?", orderID).Error; err != nil {
		return models.Order{}, translateStorageError(err, "order", orderID.String())
	}
	return order, nil
}

func (s *OrderService) loadForActor(tx *gorm.DB, actor Actor, orderID uuid.UUID, action string) (models.Order, error) {
	order, err := s.load(tx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if !actor.CanAccess(order.UserID) {
		return models.Order{}, &PermissionError{Action: action}
	}
	return order, nil
}

func statusNotification(order models.Order, from, to models.OrderStatus) notification {
	return notification{
		template: TemplateOrderStatusChanged,
		data: map[string]any{
			"order_id":    order.ID.String(),
			"from_status": string(from),
			"to_status":   string(to),
			"total":       order.TotalAmount.StringFixed(2),
			"currency":    order.Currency,
		},
		recipients: recipient(order.UserID),
	}
}

func normalizeCurrency(raw, fallback string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		currency = strings.ToUpper(fallback)
	}
	if len(currency) != 3 {
		return "", invalid("currency", "must be a 3-letter code")
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", invalid("currency", "must be a 3-letter code")
		}
	}
	return currency, nil
}

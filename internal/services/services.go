package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Actor is the identity supplied by the auth provider. The core never
// authenticates; it only compares the actor against resource ownership.
type Actor struct {
	UserID  uuid.UUID
	Email   string
	IsStaff bool
}

// CanAccess reports whether the actor owns the resource or is staff.
func (a Actor) CanAccess(owner uuid.UUID) bool {
	return a.IsStaff || (a.UserID != uuid.Nil && a.UserID == owner)
}

func (a Actor) ref() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// Notifier delivers confirmations outside the transaction. Delivery is best
// effort: a false result is logged and never undoes the state change.
type Notifier interface {
	SendConfirmation(ctx context.Context, template string, data map[string]any, recipients []string) bool
}

const (
	TemplatePaymentCompleted   = "payment_completed"
	TemplatePaymentRefunded    = "payment_refunded"
	TemplateOrderStatusChanged = "order_status_changed"
	TemplateWishlistMoved      = "wishlist_moved_to_cart"
)

// Policy holds the tunable business thresholds.
type Policy struct {
	DuplicatePaymentWindow time.Duration
	PendingPaymentTTL      time.Duration
	MaxCategoryDepth       int
	DefaultCurrency        string
}

func DefaultPolicy() Policy {
	return Policy{
		DuplicatePaymentWindow: 5 * time.Minute,
		PendingPaymentTTL:      24 * time.Hour,
		MaxCategoryDepth:       32,
		DefaultCurrency:        "USD",
	}
}

// Deps bundles the collaborators required to construct the core services.
type Deps struct {
	DB           *gorm.DB
	Logger       *zap.Logger
	Notifier     Notifier
	Clock        func() time.Time
	Policy       Policy
	RefGenerator func(prefix string) string
}

type Services struct {
	Categories *CategoryService
	Payments   *PaymentService
	Orders     *OrderService
	Inventory  *InventoryService
	Carts      *CartService
	Wishlists  *WishlistService
	Bulk       *BulkService
}

func New(deps Deps) (*Services, error) {
	if deps.DB == nil {
		return nil, errors.New("services: database is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	policy := deps.Policy
	defaults := DefaultPolicy()
	if policy.DuplicatePaymentWindow <= 0 {
		policy.DuplicatePaymentWindow = defaults.DuplicatePaymentWindow
	}
	if policy.PendingPaymentTTL <= 0 {
		policy.PendingPaymentTTL = defaults.PendingPaymentTTL
	}
	if policy.MaxCategoryDepth <= 0 {
		policy.MaxCategoryDepth = defaults.MaxCategoryDepth
	}
	if strings.TrimSpace(policy.DefaultCurrency) == "" {
		policy.DefaultCurrency = defaults.DefaultCurrency
	}

	refGen := deps.RefGenerator
	if refGen == nil {
		refGen = func(prefix string) string {
			return prefix + "-" + ulid.Make().String()
		}
	}

	b := &base{
		db:     deps.DB,
		log:    logger,
		notify: deps.Notifier,
		clock:  clock,
		policy: policy,
		newRef: refGen,
	}

	inventory := &InventoryService{base: b}
	orders := &OrderService{base: b, inventory: inventory}
	categories := &CategoryService{base: b}
	carts := &CartService{base: b}

	return &Services{
		Categories: categories,
		Payments:   &PaymentService{base: b, orders: orders},
		Orders:     orders,
		Inventory:  inventory,
		Carts:      carts,
		Wishlists:  &WishlistService{base: b, carts: carts},
		Bulk:       &BulkService{base: b, categories: categories},
	}, nil
}

type base struct {
	db     *gorm.DB
	log    *zap.Logger
	notify Notifier
	clock  func() time.Time
	policy Policy
	newRef func(prefix string) string
}

func (b *base) now() time.Time {
	return b.clock().UTC()
}

func (b *base) conn(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx)
}

// inTx runs fn in a single database transaction; any returned error rolls
// back every mutation made through tx.
func (b *base) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.db.WithContext(ctx).Transaction(fn)
}

// notification is queued during a transaction and delivered after commit.
type notification struct {
	template   string
	data       map[string]any
	recipients []string
}

func (b *base) deliver(ctx context.Context, queued []notification) {
	if b.notify == nil {
		return
	}
	for _, n := range queued {
		if ok := b.notify.SendConfirmation(ctx, n.template, n.data, n.recipients); !ok {
			b.log.Warn("notification not delivered",
				zap.String("template", n.template),
				zap.Strings("recipients", n.recipients),
			)
		}
	}
}

func recipient(userID uuid.UUID) []string {
	return []string{userID.String()}
}

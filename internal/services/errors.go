package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValidationError reports input that violates a field-level or cross-field rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CircularReferenceError names the category whose reparenting would close a cycle.
type CircularReferenceError struct {
	CategoryID uuid.UUID
	ParentID   uuid.UUID
}

func (e *CircularReferenceError) Error() string {
	if e.CategoryID == e.ParentID {
		return fmt.Sprintf("category %s cannot be its own parent", e.CategoryID)
	}
	return fmt.Sprintf("category %s is an ancestor of %s; reparenting would create a cycle", e.CategoryID, e.ParentID)
}

// HasDependentsError blocks deletion of a category still referenced by live rows.
type HasDependentsError struct {
	CategoryID uuid.UUID
	Children   int64
	Products   int64
}

func (e *HasDependentsError) Error() string {
	return fmt.Sprintf("category %s has %d active children and %d active products", e.CategoryID, e.Children, e.Products)
}

// InvalidTransitionError is a state machine move that is not in the transition table.
type InvalidTransitionError struct {
	Entity string
	ID     uuid.UUID
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// InvalidStateError is an action that the entity's current state forbids.
type InvalidStateError struct {
	Entity string
	ID     uuid.UUID
	State  string
	Action string
	Reason string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("%s %s in state %s cannot %s", e.Entity, e.ID, e.State, e.Action)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StockShortfall is one stock unit that cannot cover an order's demand.
type StockShortfall struct {
	OrderItemID uuid.UUID  `json:"order_item_id"`
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	Requested   int        `json:"requested"`
	Available   int        `json:"available"`
}

type InsufficientStockError struct {
	Lines []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		parts = append(parts, fmt.Sprintf("product %s: requested %d, available %d", line.ProductID, line.Requested, line.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// ConflictError signals a uniqueness violation; the caller should re-fetch.
type ConflictError struct {
	Entity string
	Key    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.Key)
}

// NotFoundError covers both missing and soft-deleted rows.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func notFound(entity string, id uuid.UUID) error {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

// PermissionError is an ownership check failure.
type PermissionError struct {
	Action string
}

func (e *PermissionError) Error() string {
	return "not allowed to " + e.Action
}

// ItemError is the validation outcome of one element of a bulk request.
type ItemError struct {
	Index  int               `json:"index"`
	Fields map[string]string `json:"fields"`
}

// BulkError aggregates every rejected id or index of a bulk request. Nothing
// from the batch has been applied when it is returned.
type BulkError struct {
	Operation  string
	InvalidIDs []uuid.UUID
	Items      []ItemError
}

func (e *BulkError) Error() string {
	if len(e.InvalidIDs) > 0 {
		ids := make([]string, 0, len(e.InvalidIDs))
		for _, id := range e.InvalidIDs {
			ids = append(ids, id.String())
		}
		return fmt.Sprintf("%s rejected: invalid ids %s", e.Operation, strings.Join(ids, ", "))
	}
	indexes := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		indexes = append(indexes, fmt.Sprint(item.Index))
	}
	return fmt.Sprintf("%s rejected: invalid items at %s", e.Operation, strings.Join(indexes, ", "))
}

// translateStorageError maps driver-level failures onto the error taxonomy so
// raw database errors never reach callers.
func translateStorageError(err error, entity, key string) error {
	if err == nil {
		return nil
	}
	var (
		validation *ValidationError
		conflict   *ConflictError
		missing    *NotFoundError
	)
	if errors.As(err, &validation) || errors.As(err, &conflict) || errors.As(err, &missing) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Entity: entity, ID: key}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ConflictError{Entity: entity, Key: key}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "duplicate key"):
		return &ConflictError{Entity: entity, Key: key}
	case strings.Contains(msg, "check constraint"):
		return &ValidationError{Field: entity, Message: "violates storage constraint: " + constraintName(err.Error())}
	}
	return fmt.Errorf("%s: %w", entity, err)
}

func constraintName(msg string) string {
	for _, token := range strings.FieldsFunc(msg, func(r rune) bool {
		return r == ' ' || r == '"' || r == ':' || r == '(' || r == ')'
	}) {
		if strings.HasPrefix(token, "chk_") {
			return token
		}
	}
	return msg
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

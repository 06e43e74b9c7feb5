package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/models"
)

// InventoryService owns stock levels. Stock sits on the variant when an order
// line names one, otherwise on the product.
type InventoryService struct {
	*base
}

type stockDemand struct {
	productID uuid.UUID
	variantID *uuid.UUID
	quantity  int
	firstItem uuid.UUID
}

func (d stockDemand) table() any {
	if d.variantID != nil {
		return &models.ProductVariant{}
	}
	return &models.Product{}
}

func (d stockDemand) unitID() uuid.UUID {
	if d.variantID != nil {
		return *d.variantID
	}
	return d.productID
}

// aggregateDemand sums order lines per stock unit, keeping first-seen order.
func aggregateDemand(items []models.OrderItem) []*stockDemand {
	byKey := map[string]*stockDemand{}
	var ordered []*stockDemand
	for _, item := range items {
		key := models.LineKey(item.ProductID, item.VariantID)
		if d, ok := byKey[key]; ok {
			d.quantity += item.Quantity
			continue
		}
		d := &stockDemand{
			productID: item.ProductID,
			variantID: item.VariantID,
			quantity:  item.Quantity,
			firstItem: item.ID,
		}
		byKey[key] = d
		ordered = append(ordered, d)
	}
	return ordered
}

// reserve takes the order's demand out of stock. Every shortfall is collected
// before anything is decremented, and a lost race on any unit aborts the whole
// reservation so the surrounding transaction rolls back.
func (s *InventoryService) reserve(tx *gorm.DB, order *models.Order) error {
	if order.StockReservedAt != nil {
		return &InvalidStateError{Entity: "order", ID: order.ID, State: string(order.Status), Action: "reserve stock", Reason: "stock already reserved"}
	}

	demands := aggregateDemand(order.Items)
	var shortfalls []StockShortfall
	for _, d := range demands {
		available, err := s.availableFor(tx, d.productID, d.variantID, true)
		if err != nil {
			return err
		}
		if available < d.quantity {
			shortfalls = append(shortfalls, StockShortfall{
				OrderItemID: d.firstItem,
				ProductID:   d.productID,
				VariantID:   d.variantID,
				Requested:   d.quantity,
				Available:   available,
			})
		}
	}
	if len(shortfalls) > 0 {
		return &InsufficientStockError{Lines: shortfalls}
	}

	for _, d := range demands {
		res := tx.Model(d.table()).
			Where("id = ? AND stock_quantity >= ?", d.unitID(), d.quantity).
			Update("stock_quantity", gorm.Expr("stock_quantity - ?", d.quantity))
		if res.Error != nil {
			return translateStorageError(res.Error, "stock", d.unitID().String())
		}
		if res.RowsAffected == 0 {
			available, err := s.availableFor(tx, d.productID, d.variantID, false)
			if err != nil {
				return err
			}
			return &InsufficientStockError{Lines: []StockShortfall{{
				OrderItemID: d.firstItem,
				ProductID:   d.productID,
				VariantID:   d.variantID,
				Requested:   d.quantity,
				Available:   available,
			}}}
		}
	}

	if err := tx.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).
		Update("reserved_quantity", gorm.Expr("quantity")).Error; err != nil {
		return translateStorageError(err, "order item", order.ID.String())
	}

	now := s.now()
	res := tx.Model(&models.Order{}).
		Where("id = ? AND stock_reserved_at IS NULL", order.ID).
		Updates(map[string]any{"stock_reserved_at": now, "stock_released_at": nil})
	if res.Error != nil {
		return translateStorageError(res.Error, "order", order.ID.String())
	}
	if res.RowsAffected == 0 {
		return &ConflictError{Entity: "order", Key: order.ID.String() + " stock reservation"}
	}

	order.StockReservedAt = &now
	order.StockReleasedAt = nil
	for i := range order.Items {
		order.Items[i].ReservedQuantity = order.Items[i].Quantity
	}
	s.log.Debug("stock reserved", zap.String("order_id", order.ID.String()), zap.Int("units", len(demands)))
	return nil
}

// release returns exactly what each line reserved. Releasing twice is a no-op:
// the order row is claimed with a conditional update before any stock moves.
func (s *InventoryService) release(tx *gorm.DB, order *models.Order) error {
	now := s.now()
	res := tx.Model(&models.Order{}).
		Where("id = ? AND stock_reserved_at IS NOT NULL AND stock_released_at IS NULL", order.ID).
		Update("stock_released_at", now)
	if res.Error != nil {
		return translateStorageError(res.Error, "order", order.ID.String())
	}
	if res.RowsAffected == 0 {
		return nil
	}

	var items []models.OrderItem
	if err := tx.Where("order_id = ? AND reserved_quantity > 0", order.ID).Find(&items).Error; err != nil {
		return translateStorageError(err, "order item", order.ID.String())
	}
	for _, item := range items {
		d := stockDemand{productID: item.ProductID, variantID: item.VariantID, quantity: item.ReservedQuantity}
		err := tx.Unscoped().Model(d.table()).Where("id = ?", d.unitID()).
			Update("stock_quantity", gorm.Expr("stock_quantity + ?", d.quantity)).Error
		if err != nil {
			return translateStorageError(err, "stock", d.unitID().String())
		}
		if err := tx.Model(&models.OrderItem{}).Where("id = ?", item.ID).Update("reserved_quantity", 0).Error; err != nil {
			return translateStorageError(err, "order item", item.ID.String())
		}
	}

	order.StockReleasedAt = &now
	for i := range order.Items {
		order.Items[i].ReservedQuantity = 0
	}
	s.log.Debug("stock released", zap.String("order_id", order.ID.String()), zap.Int("lines", len(items)))
	return nil
}

// Available reports the stock on hand for a product, or for one of its
// variants when variantID is set.
func (s *InventoryService) Available(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int, error) {
	return s.availableFor(s.conn(ctx), productID, variantID, false)
}

// Restock adds quantity units to a stock unit and returns the new level.
func (s *InventoryService) Restock(ctx context.Context, actor Actor, productID uuid.UUID, variantID *uuid.UUID, quantity int) (int, error) {
	if !actor.IsStaff {
		return 0, &PermissionError{Action: "restock products"}
	}
	if quantity < 1 {
		return 0, invalid("quantity", "must be at least 1")
	}

	var level int
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.availableFor(tx, productID, variantID, false); err != nil {
			return err
		}
		d := stockDemand{productID: productID, variantID: variantID, quantity: quantity}
		if err := tx.Model(d.table()).Where("id = ?", d.unitID()).
			Update("stock_quantity", gorm.Expr("stock_quantity + ?", quantity)).Error; err != nil {
			return translateStorageError(err, "stock", d.unitID().String())
		}
		var err error
		level, err = s.availableFor(tx, productID, variantID, false)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("stock replenished",
		zap.String("unit", describeUnit(productID, variantID)),
		zap.Int("added", quantity),
		zap.Int("level", level),
	)
	return level, nil
}

// availableFor loads the stock unit. With requireLive, an inactive product or
// variant is rejected rather than counted.
func (s *InventoryService) availableFor(tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, requireLive bool) (int, error) {
	var product models.Product
	err := tx.First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if requireLive {
			return 0, invalid("items", "product %s is no longer available", productID)
		}
		return 0, notFound("product", productID)
	}
	if err != nil {
		return 0, translateStorageError(err, "product", productID.String())
	}
	if requireLive && !product.IsLive() {
		return 0, invalid("items", "product %s is no longer available", productID)
	}
	if variantID == nil {
		return product.StockQuantity, nil
	}

	var variant models.ProductVariant
	err = tx.First(&variant, "id = ? AND product_id = ?", *variantID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if requireLive {
			return 0, invalid("items", "variant %s of product %s is no longer available", *variantID, productID)
		}
		return 0, notFound("product variant", *variantID)
	}
	if err != nil {
		return 0, translateStorageError(err, "product variant", variantID.String())
	}
	if requireLive && !variant.IsLive() {
		return 0, invalid("items", "variant %s of product %s is no longer available", *variantID, productID)
	}
	return variant.StockQuantity, nil
}

func describeUnit(productID uuid.UUID, variantID *uuid.UUID) string {
	if variantID == nil {
		return productID.String()
	}
	return fmt.Sprintf("%s/%s", productID, *variantID)
}

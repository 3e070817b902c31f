package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/Luisfeliz3/sporty-urban-ecommerce/common/errors"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/middleware"
	awspkg "github.com/Luisfeliz3/sporty-urban-ecommerce/pkg/aws"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/repository"
)

// InventoryGuard reserves stock for an order with all-or-nothing semantics.
// Each product is decremented with one conditional update, so concurrent
// reservations never drive a count below zero.
type InventoryGuard struct {
	store   repository.InventoryStore
	logger  *zap.Logger
	metrics middleware.MetricsRecorder
}

func NewInventoryGuard(store repository.InventoryStore, logger *zap.Logger, metrics middleware.MetricsRecorder) *InventoryGuard {
	return &InventoryGuard{store: store, logger: logger, metrics: metrics}
}

// Reserve decrements inventory for every product in items. On failure any
// decrement already applied by this call is put back before returning.
func (g *InventoryGuard) Reserve(ctx context.Context, items []models.OrderItem) error {
	reqs := models.AggregateStock(items)
	for _, r := range reqs {
		if r.Quantity <= 0 {
			return apperrors.Validation(fmt.Sprintf("invalid quantity for product %s", r.ProductID))
		}
	}

	done := make([]models.StockRequest, 0, len(reqs))
	for _, r := range reqs {
		err := g.store.DecrementIfSufficient(ctx, r.ProductID, r.Quantity)
		if err == nil {
			done = append(done, r)
			continue
		}

		g.rollback(ctx, done)
		return g.reserveError(ctx, r, err)
	}

	recordCount(g.metrics, awspkg.MetricInventoryReserved, nil)
	return nil
}

// Release puts the stock of items back. It is the compensation for a
// successful Reserve whose order could not be stored.
func (g *InventoryGuard) Release(ctx context.Context, items []models.OrderItem) error {
	var errs []error
	for _, r := range models.AggregateStock(items) {
		if err := g.store.Increment(ctx, r.ProductID, r.Quantity); err != nil {
			reqLogger(ctx, g.logger).Error("Failed to release inventory",
				zap.String("product_id", r.ProductID),
				zap.Int("quantity", r.Quantity),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("release %s: %w", r.ProductID, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	recordCount(g.metrics, awspkg.MetricInventoryReleased, nil)
	return nil
}

func (g *InventoryGuard) rollback(ctx context.Context, done []models.StockRequest) {
	if len(done) == 0 {
		return
	}
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	for _, r := range done {
		if err := g.store.Increment(rbCtx, r.ProductID, r.Quantity); err != nil {
			reqLogger(ctx, g.logger).Error("Inventory rollback failed, stock needs manual correction",
				zap.String("product_id", r.ProductID),
				zap.Int("quantity", r.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (g *InventoryGuard) reserveError(ctx context.Context, r models.StockRequest, err error) error {
	switch {
	case errors.Is(err, repository.ErrInsufficientStock):
		recordCount(g.metrics, awspkg.MetricInventoryRejected, map[string]string{"ProductID": r.ProductID})
		available, availErr := g.store.Available(context.WithoutCancel(ctx), r.ProductID)
		if availErr != nil {
			available = 0
		}
		return apperrors.OutOfStock(r.ProductID, available)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.ProductNotFound(r.ProductID)
	default:
		return apperrors.Internal("Failed to reserve inventory", err)
	}
}

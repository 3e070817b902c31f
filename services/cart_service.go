package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/cache"
	apperrors "github.com/Luisfeliz3/sporty-urban-ecommerce/common/errors"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/middleware"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	awspkg "github.com/Luisfeliz3/sporty-urban-ecommerce/pkg/aws"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/repository"
)

const cartSaveAttempts = 3

// CartService owns the server-side cart of each account. Mongo is the
// authority; Redis holds a read-through copy that every write refreshes.
type CartService struct {
	repo      repository.CartRepository
	cache     cache.CartCache
	products  repository.ProductRepository
	inventory repository.InventoryStore
	idem      repository.IdempotencyStore
	idemTTL   time.Duration
	logger    *zap.Logger
	metrics   middleware.MetricsRecorder
	sfg       singleflight.Group
}

func NewCartService(
	repo repository.CartRepository,
	cartCache cache.CartCache,
	products repository.ProductRepository,
	inventory repository.InventoryStore,
	idem repository.IdempotencyStore,
	idemTTL time.Duration,
	logger *zap.Logger,
	metrics middleware.MetricsRecorder,
) *CartService {
	return &CartService{
		repo:      repo,
		cache:     cartCache,
		products:  products,
		inventory: inventory,
		idem:      idem,
		idemTTL:   idemTTL,
		logger:    logger,
		metrics:   metrics,
	}
}

func (s *CartService) GetCart(ctx context.Context, accountID string) (*models.Cart, error) {
	v, err, _ := s.sfg.Do(accountID, func() (interface{}, error) {
		if s.cache != nil {
			cart, err := s.cache.Get(ctx, accountID)
			if err == nil {
				recordCount(s.metrics, awspkg.MetricCacheHits, map[string]string{"Cache": "cart"})
				return cart, nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				reqLogger(ctx, s.logger).Warn("Cart cache read failed", zap.Error(err))
			}
			recordCount(s.metrics, awspkg.MetricCacheMisses, map[string]string{"Cache": "cart"})
		}

		cart, err := s.load(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && cart.Version > 0 {
			if err := s.cache.Set(ctx, cart); err != nil {
				reqLogger(ctx, s.logger).Warn("Cart cache write failed", zap.Error(err))
			}
		}
		return cart, nil
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to load cart", err)
	}
	// Callers may mutate the result; the shared value must stay intact.
	return v.(*models.Cart).Clone(), nil
}

// AddItem adds a line after checking the product is sellable and that the
// cart would not hold more of it than is in stock.
func (s *CartService) AddItem(ctx context.Context, accountID string, line models.CartLine) (*models.Cart, error) {
	if err := line.Validate(); err != nil {
		return nil, err
	}
	p, err := s.resolveProduct(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	stock, err := s.available(ctx, p.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to check stock", err)
	}

	return s.mutate(ctx, accountID, func(c *models.Cart) error {
		inCart := 0
		for _, l := range c.Items {
			if l.ProductID == line.ProductID {
				inCart += l.Quantity
			}
		}
		if inCart+line.Quantity > stock {
			return apperrors.OutOfStock(p.ID, stock)
		}
		return c.AddLine(line)
	})
}

func (s *CartService) UpdateItem(ctx context.Context, accountID, productID, size, color string, quantity int) (*models.Cart, error) {
	return s.mutate(ctx, accountID, func(c *models.Cart) error {
		return c.UpdateQuantity(productID, size, color, quantity)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, accountID, productID, size, color string) (*models.Cart, error) {
	return s.mutate(ctx, accountID, func(c *models.Cart) error {
		c.RemoveLine(productID, size, color)
		return nil
	})
}

func (s *CartService) ClearCart(ctx context.Context, accountID string) (*models.Cart, error) {
	return s.mutate(ctx, accountID, func(c *models.Cart) error {
		c.Clear()
		return nil
	})
}

// SyncCart merges a client-held cart into the server cart. A repeated
// idempotency key returns the current cart without merging a second time.
func (s *CartService) SyncCart(ctx context.Context, accountID string, lines []models.CartLine, idemKey string) (*models.Cart, error) {
	for _, l := range lines {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}

	var claimed string
	if idemKey != "" && s.idem != nil {
		key := repository.CartIdemKey(accountID, idemKey)
		ok, err := s.idem.Claim(ctx, key, "merged", s.idemTTL)
		switch {
		case err != nil:
			reqLogger(ctx, s.logger).Warn("Cart sync idempotency unavailable, merging anyway", zap.Error(err))
		case !ok:
			reqLogger(ctx, s.logger).Info("Replayed cart sync, skipping merge", zap.String("account_id", accountID))
			return s.GetCart(ctx, accountID)
		default:
			claimed = key
		}
	}

	cart, err := s.mutate(ctx, accountID, func(c *models.Cart) error {
		return c.Merge(lines)
	})
	if err != nil {
		if claimed != "" {
			if relErr := s.idem.Release(context.WithoutCancel(ctx), claimed); relErr != nil {
				reqLogger(ctx, s.logger).Warn("Failed to release cart sync key", zap.Error(relErr))
			}
		}
		return nil, err
	}
	recordCount(s.metrics, awspkg.MetricCartMerges, nil)
	return cart, nil
}

// View enriches the cart with current catalog data for display. Lines whose
// product has disappeared are shown as "Unknown Product" at price 0.
func (s *CartService) View(ctx context.Context, cart *models.Cart) (*models.CartView, error) {
	view := &models.CartView{
		AccountID: cart.AccountID,
		Items:     make([]models.CartItemView, 0, len(cart.Items)),
		Subtotal:  models.Zero,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, l := range cart.Items {
		iv := models.CartItemView{CartLine: l, Name: "Unknown Product", Price: models.Zero}
		p, err := s.products.FindByID(ctx, l.ProductID)
		switch {
		case err == nil:
			iv.Name, iv.Price, iv.Image = p.Name, p.Price, p.Images.Primary()
			if iv.Inventory, err = s.available(ctx, p.ID); err != nil {
				return nil, apperrors.Internal("Failed to load stock", err)
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return nil, apperrors.Internal("Failed to load cart products", err)
		}
		view.Items = append(view.Items, iv)
		view.ItemCount += l.Quantity
		view.Subtotal = view.Subtotal.Add(iv.Price.MulQty(l.Quantity))
	}
	return view, nil
}

func (s *CartService) load(ctx context.Context, accountID string) (*models.Cart, error) {
	cart, err := s.repo.Get(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.NewCart(accountID), nil
	}
	return cart, err
}

// mutate applies fn to a fresh copy of the stored cart and saves it, starting
// over when another writer got there first.
func (s *CartService) mutate(ctx context.Context, accountID string, fn func(*models.Cart) error) (*models.Cart, error) {
	for attempt := 1; attempt <= cartSaveAttempts; attempt++ {
		cart, err := s.load(ctx, accountID)
		if err != nil {
			return nil, apperrors.Internal("Failed to load cart", err)
		}
		if err := fn(cart); err != nil {
			return nil, err
		}

		err = s.repo.Save(ctx, cart)
		if err == nil {
			s.refresh(ctx, cart)
			return cart.Clone(), nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.Internal("Failed to save cart", err)
		}
		reqLogger(ctx, s.logger).Debug("Cart version conflict, retrying",
			zap.String("account_id", accountID),
			zap.Int("attempt", attempt),
		)
	}
	return nil, apperrors.Internal("Failed to save cart", repository.ErrVersionConflict)
}

// refresh stores the saved cart in the cache. The cache keeps the highest
// version it has seen, so a reader that loaded the cart before this save
// cannot put its older copy back. When the write fails the entry is dropped.
func (s *CartService) refresh(ctx context.Context, cart *models.Cart) {
	defer s.sfg.Forget(cart.AccountID)
	if s.cache == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	err := s.cache.Set(cacheCtx, cart)
	if err == nil {
		return
	}
	reqLogger(ctx, s.logger).Warn("Cart cache write failed, dropping entry", zap.Error(err))
	if err := s.cache.Delete(cacheCtx, cart.AccountID); err != nil {
		reqLogger(ctx, s.logger).Warn("Cart cache invalidation failed", zap.Error(err))
	}
}

// available reports sellable stock from the inventory store. A product the
// store does not track has none.
func (s *CartService) available(ctx context.Context, productID string) (int, error) {
	n, err := s.inventory.Available(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	return n, err
}

func (s *CartService) resolveProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ProductNotFound(id)
		}
		return nil, apperrors.Internal("Failed to load product", err)
	}
	if !p.Active() {
		return nil, apperrors.ProductNotFound(id)
	}
	return p, nil
}

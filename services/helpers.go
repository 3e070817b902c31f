package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/logger"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/middleware"
)

// rollbackTimeout bounds compensation work that runs after the request
// context is gone.
const rollbackTimeout = 5 * time.Second

func reqLogger(ctx context.Context, l *zap.Logger) *zap.Logger {
	if id := logger.RequestIDFrom(ctx); id != "" {
		return l.With(zap.String(logger.RequestIDKey, id))
	}
	return l
}

// recordCount sends a counter in the background so CloudWatch latency never
// reaches the caller.
func recordCount(metrics middleware.MetricsRecorder, name string, dims map[string]string) {
	if metrics == nil || !metrics.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.RecordCount(ctx, name, dims)
	}()
}

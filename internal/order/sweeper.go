package order

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jshmir7070-sys/helpme-core/internal/logger"
)

// SweeperLoop drives the time-based SCHEDULED -> IN_PROGRESS transition.
// There is no human actor: once an order's start date passes, the next
// sweep picks it up.
func SweeperLoop(ctx context.Context, svc *Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("sweeper stopped")
			return
		case <-ticker.C:
			started, err := svc.StartDueOrders(ctx)
			if err != nil {
				logger.Log.Error("sweep scheduled orders", zap.Error(err))
				continue
			}
			if started > 0 {
				logger.Log.Info("orders moved to in progress", zap.Int("count", started))
			}
		}
	}
}

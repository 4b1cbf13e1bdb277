package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const defaultOrphanGrace = 10 * time.Minute

type orphanFinder interface {
	FindOrphaned(ctx context.Context, grace time.Duration) ([]models.Order, error)
}

type OrphanedHeaderJobParams struct {
	Logger  *logger.Logger
	Orders  orphanFinder
	Grace   time.Duration
	Metrics *metrics.OrphanMetrics
}

// NewOrphanedHeaderJob reports pending headers that never received lines.
// It only reports; the header may still be completed by a resumed checkout.
func NewOrphanedHeaderJob(params OrphanedHeaderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultOrphanGrace
	}
	return &orphanedHeaderJob{
		logg:    params.Logger,
		orders:  params.Orders,
		grace:   grace,
		metrics: params.Metrics,
	}, nil
}

type orphanedHeaderJob struct {
	logg    *logger.Logger
	orders  orphanFinder
	grace   time.Duration
	metrics *metrics.OrphanMetrics
}

func (j *orphanedHeaderJob) Name() string { return "orphaned-order-headers" }

func (j *orphanedHeaderJob) Run(ctx context.Context) error {
	orphans, err := j.orders.FindOrphaned(ctx, j.grace)
	if err != nil {
		return fmt.Errorf("find orphaned headers: %w", err)
	}
	j.metrics.SetOrphaned(len(orphans))
	for _, order := range orphans {
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		orderCtx = j.logg.WithFields(orderCtx, map[string]any{
			"user_id":    order.UserID.String(),
			"total":      order.TotalAmount.StringFixed(2),
			"created_at": order.CreatedAt,
		})
		j.logg.Warn(orderCtx, "order header has no lines")
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"orphaned":     len(orphans),
		"grace_period": j.grace.String(),
	}), "orphaned header scan complete")
	return nil
}

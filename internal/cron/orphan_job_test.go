package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

type fakeOrphanFinder struct {
	grace  time.Duration
	orders []models.Order
	err    error
}

func (f *fakeOrphanFinder) FindOrphaned(_ context.Context, grace time.Duration) ([]models.Order, error) {
	f.grace = grace
	return f.orders, f.err
}

func TestOrphanedHeaderJobReportsCount(t *testing.T) {
	finder := &fakeOrphanFinder{orders: []models.Order{
		{ID: uuid.New(), UserID: uuid.New(), Status: enums.OrderStatusPending, TotalAmount: decimal.NewFromInt(25)},
		{ID: uuid.New(), UserID: uuid.New(), Status: enums.OrderStatusPending, TotalAmount: decimal.NewFromInt(4)},
	}}
	reg := prometheus.NewRegistry()
	m := metrics.NewOrphanMetrics(reg)
	job, err := NewOrphanedHeaderJob(OrphanedHeaderJobParams{
		Logger:  logger.Nop(),
		Orders:  finder,
		Grace:   time.Hour,
		Metrics: m,
	})
	require.NoError(t, err)
	require.Equal(t, "orphaned-order-headers", job.Name())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, time.Hour, finder.grace)
	count, err := testutil.GatherAndCount(reg, "storefront_orders_orphaned_headers")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	gathered, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, gathered, 1)
	require.Equal(t, float64(2), gathered[0].GetMetric()[0].GetGauge().GetValue())
}

func TestOrphanedHeaderJobDefaultsAndErrors(t *testing.T) {
	finder := &fakeOrphanFinder{err: errors.New("db down")}
	job, err := NewOrphanedHeaderJob(OrphanedHeaderJobParams{Logger: logger.Nop(), Orders: finder})
	require.NoError(t, err)

	require.Error(t, job.Run(context.Background()))
	require.Equal(t, defaultOrphanGrace, finder.grace)

	_, err = NewOrphanedHeaderJob(OrphanedHeaderJobParams{Orders: finder})
	require.Error(t, err)
	_, err = NewOrphanedHeaderJob(OrphanedHeaderJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}

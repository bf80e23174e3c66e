package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/jackc/pgx/v5"
)

// MetricsTracer records query latency and errors on StorageMetrics.
type MetricsTracer struct {
	m *metrics.StorageMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.StorageMetrics) *MetricsTracer {
	return &MetricsTracer{m: m}
}

type queryContextKey struct{}

type queryContext struct {
	start time.Time
	name  string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		start: time.Now(),
		name:  queryName(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.m.DBQueryDuration.WithLabelValues(qctx.name).Observe(time.Since(qctx.start).Seconds())
	if data.Err != nil {
		t.m.DBErrors.WithLabelValues(qctx.name).Inc()
	}
}

// queryName keeps label cardinality low by using the statement keyword only.
func queryName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

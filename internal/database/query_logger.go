package database

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// QueryObserver receives per-query timings, typically Prometheus metrics.
type QueryObserver interface {
	RecordDBQuery(operation string, duration time.Duration, err error)
}

// QueryLoggerConfig configures query logging behavior.
type QueryLoggerConfig struct {
	// SlowQueryThreshold is the duration above which queries are logged at WARN.
	SlowQueryThreshold time.Duration
	// VerySlowQueryThreshold is the duration above which queries are logged at ERROR.
	VerySlowQueryThreshold time.Duration
}

// DefaultQueryLoggerConfig returns the default thresholds.
func DefaultQueryLoggerConfig() *QueryLoggerConfig {
	return &QueryLoggerConfig{
		SlowQueryThreshold:     100 * time.Millisecond,
		VerySlowQueryThreshold: 500 * time.Millisecond,
	}
}

// QueryStats tracks query statistics.
type QueryStats struct {
	TotalQueries  int64
	SlowQueries   int64
	FailedQueries int64

	mu            sync.Mutex
	totalDuration time.Duration
}

// Snapshot returns the counters and the mean query duration.
func (qs *QueryStats) Snapshot() (total, slow, failed int64, avg time.Duration) {
	total = atomic.LoadInt64(&qs.TotalQueries)
	slow = atomic.LoadInt64(&qs.SlowQueries)
	failed = atomic.LoadInt64(&qs.FailedQueries)
	if total > 0 {
		qs.mu.Lock()
		avg = qs.totalDuration / time.Duration(total)
		qs.mu.Unlock()
	}
	return
}

// QueryLogger implements pgx.QueryTracer.
type QueryLogger struct {
	config   *QueryLoggerConfig
	logger   *zap.Logger
	observer QueryObserver
	stats    *QueryStats
	now      func() time.Time
}

var _ pgx.QueryTracer = (*QueryLogger)(nil)

// NewQueryLogger creates a query logger. observer may be nil.
func NewQueryLogger(cfg *QueryLoggerConfig, logger *zap.Logger, observer QueryObserver) *QueryLogger {
	if cfg == nil {
		cfg = DefaultQueryLoggerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryLogger{
		config:   cfg,
		logger:   logger.Named("query"),
		observer: observer,
		stats:    &QueryStats{},
		now:      time.Now,
	}
}

// Stats returns the query statistics.
func (ql *QueryLogger) Stats() *QueryStats {
	return ql.stats
}

type queryTraceData struct {
	startTime time.Time
	sql       string
}

type ctxKey struct{}

// TraceQueryStart records the query start time.
func (ql *QueryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, ctxKey{}, &queryTraceData{
		startTime: ql.now(),
		sql:       data.SQL,
	})
}

// TraceQueryEnd logs failed and slow queries and reports timings.
func (ql *QueryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	traceData, ok := ctx.Value(ctxKey{}).(*queryTraceData)
	if !ok {
		return
	}
	ql.record(traceData.sql, ql.now().Sub(traceData.startTime), data.CommandTag.String(), data.Err)
}

func (ql *QueryLogger) record(sql string, duration time.Duration, tag string, err error) {
	atomic.AddInt64(&ql.stats.TotalQueries, 1)
	ql.stats.mu.Lock()
	ql.stats.totalDuration += duration
	ql.stats.mu.Unlock()

	if ql.observer != nil {
		ql.observer.RecordDBQuery(operationName(sql), duration, err)
	}

	if err != nil {
		atomic.AddInt64(&ql.stats.FailedQueries, 1)
		ql.logger.Error("query failed",
			zap.String("sql", truncateSQL(sql, 500)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	switch {
	case duration >= ql.config.VerySlowQueryThreshold:
		atomic.AddInt64(&ql.stats.SlowQueries, 1)
		ql.logger.Error("very slow query detected",
			zap.String("sql", truncateSQL(sql, 500)),
			zap.Duration("duration", duration),
			zap.String("command_tag", tag),
		)
	case duration >= ql.config.SlowQueryThreshold:
		atomic.AddInt64(&ql.stats.SlowQueries, 1)
		ql.logger.Warn("slow query detected",
			zap.String("sql", truncateSQL(sql, 500)),
			zap.Duration("duration", duration),
			zap.String("command_tag", tag),
		)
	}
}

// LogStats logs current query statistics.
func (ql *QueryLogger) LogStats() {
	total, slow, failed, avg := ql.stats.Snapshot()
	ql.logger.Info("query statistics",
		zap.Int64("total_queries", total),
		zap.Int64("slow_queries", slow),
		zap.Int64("failed_queries", failed),
		zap.Duration("avg_duration", avg),
	)
}

// operationName is the lower-cased leading SQL keyword, used as a metric label.
func operationName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	switch op := strings.ToLower(fields[0]); op {
	case "select", "insert", "update", "delete", "create", "begin", "commit", "rollback", "with":
		return op
	default:
		return "other"
	}
}

func truncateSQL(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen-3] + "..."
}

// Package metrics persists tool usage records to ClickHouse for
// offline analysis of which tools the agent actually leans on.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ToolUsageMetric is one tool execution record
type ToolUsageMetric struct {
	Timestamp       time.Time
	ToolName        string
	Params          string // JSON
	Success         bool
	ExecutionTimeMs int
}

func (m *ToolUsageMetric) values() []interface{} {
	return []interface{}{
		m.Timestamp,
		m.ToolName,
		m.Params,
		m.Success,
		m.ExecutionTimeMs,
	}
}

// Repository abstracts the metrics storage backend
type Repository interface {
	InsertBatch(ctx context.Context, metrics []ToolUsageMetric) error
	Close() error
}

// ClickHouseRepository implements Repository on ClickHouse
type ClickHouseRepository struct {
	db *sqlx.DB
}

// NewClickHouseRepository creates the ClickHouse metrics repository
func NewClickHouseRepository(db *sqlx.DB) *ClickHouseRepository {
	return &ClickHouseRepository{db: db}
}

// InsertBatch writes a batch of metrics in a single INSERT
func (r *ClickHouseRepository) InsertBatch(ctx context.Context, metrics []ToolUsageMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	placeholders := make([]string, len(metrics))
	args := make([]interface{}, 0, len(metrics)*5)
	for i := range metrics {
		placeholders[i] = "(?, ?, ?, ?, ?)"
		args = append(args, metrics[i].values()...)
	}

	query := fmt.Sprintf(
		"INSERT INTO tool_usage_metrics (timestamp, tool_name, params, success, execution_time_ms) VALUES %s",
		strings.Join(placeholders, ", "),
	)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ClickHouse insert failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (r *ClickHouseRepository) Close() error {
	return r.db.Close()
}

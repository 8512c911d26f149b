package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alphalens/alphalens/pkg/logger"
)

// BatchedWriter buffers tool usage records and flushes them to the
// repository in batches. It implements toolkit.MetricsLogger; logging
// a metric never blocks the agent loop on ClickHouse.
type BatchedWriter struct {
	repo        Repository
	buffer      []ToolUsageMetric
	bufferMu    sync.Mutex
	maxBatch    int
	flushTicker *time.Ticker
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewBatchedWriter creates the writer and starts its flush loop
func NewBatchedWriter(repo Repository, maxBatch int, maxWait time.Duration) *BatchedWriter {
	ctx, cancel := context.WithCancel(context.Background())

	w := &BatchedWriter{
		repo:        repo,
		buffer:      make([]ToolUsageMetric, 0, maxBatch),
		maxBatch:    maxBatch,
		flushTicker: time.NewTicker(maxWait),
		ctx:         ctx,
		cancel:      cancel,
	}

	w.wg.Add(1)
	go w.autoFlush()

	return w
}

// LogToolUsage buffers one tool execution record
func (w *BatchedWriter) LogToolUsage(_ context.Context, toolName string, params interface{}, success bool, executionTimeMs int) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		paramsJSON = []byte("{}")
	}

	w.bufferMu.Lock()
	w.buffer = append(w.buffer, ToolUsageMetric{
		Timestamp:       time.Now().UTC(),
		ToolName:        toolName,
		Params:          string(paramsJSON),
		Success:         success,
		ExecutionTimeMs: executionTimeMs,
	})
	shouldFlush := len(w.buffer) >= w.maxBatch
	w.bufferMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *BatchedWriter) autoFlush() {
	defer w.wg.Done()

	for {
		select {
		case <-w.flushTicker.C:
			w.flush()
		case <-w.ctx.Done():
			// Final flush before exit
			w.flush()
			return
		}
	}
}

func (w *BatchedWriter) flush() {
	w.bufferMu.Lock()
	if len(w.buffer) == 0 {
		w.bufferMu.Unlock()
		return
	}
	toWrite := make([]ToolUsageMetric, len(w.buffer))
	copy(toWrite, w.buffer)
	w.buffer = w.buffer[:0]
	w.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.repo.InsertBatch(ctx, toWrite); err != nil {
		logger.Warn("failed to flush tool metrics",
			zap.Int("records", len(toWrite)),
			zap.Error(err),
		)
		return
	}

	logger.Debug("flushed tool metrics",
		zap.Int("records", len(toWrite)),
	)
}

// Close stops the flush loop, flushes remaining records and closes the
// repository
func (w *BatchedWriter) Close() error {
	w.flushTicker.Stop()
	w.cancel()
	w.wg.Wait()
	return w.repo.Close()
}

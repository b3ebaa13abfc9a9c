// Package csvlog is the buffered, append-only CSV audit trail named in
// spec.md §6/§5: equity_curve.csv, trades_log.csv, decisions_log.csv,
// errors_log.csv, learning_log.csv. Grounded on original_source/
// alpha-arena-backend/core/csv_logger.py's deque-buffered writers, flushed
// every 7 cycles and on shutdown — kept alongside the Postgres equity
// journal rather than replaced by it, per SPEC_FULL's supplemented-features
// note that the source keeps CSV as the durable operator-facing trail even
// where a database exists.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"perpctl/internal/models"

	"perpctl/pkg/logger"
)

type buffer struct {
	mu     sync.Mutex
	path   string
	header []string
	rows   [][]string
}

func newBuffer(dir, filename string, header []string) *buffer {
	return &buffer{path: filepath.Join(dir, filename), header: header}
}

func (b *buffer) append(row []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, row)
}

func (b *buffer) flush() error {
	b.mu.Lock()
	rows := b.rows
	b.rows = nil
	b.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	needsHeader := true
	if fi, err := os.Stat(b.path); err == nil && fi.Size() > 0 {
		needsHeader = false
	}

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("csvlog: open %s: %w", b.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(b.header); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Logger is the fx-provided audit trail; one instance per process.
type Logger struct {
	decisions *buffer
	trades    *buffer
	errors    *buffer
	learning  *buffer
	equity    *buffer
}

func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csvlog: create dir %s: %w", dir, err)
	}
	return &Logger{
		decisions: newBuffer(dir, "decisions_log.csv", []string{"timestamp", "agent_id", "symbol", "signal", "raw_confidence", "normalized_confidence", "strategy", "reasoning"}),
		trades:    newBuffer(dir, "trades_log.csv", []string{"closed_at", "position_ref", "decision_ref", "exit_reason", "exit_price", "realized_pnl", "hold_seconds"}),
		errors:    newBuffer(dir, "errors_log.csv", []string{"timestamp", "message"}),
		learning:  newBuffer(dir, "learning_log.csv", []string{"timestamp", "agent_id", "outcome_status", "pnl"}),
		equity:    newBuffer(dir, "equity_curve.csv", []string{"timestamp", "realized", "unrealized", "total", "peak", "drawdown_from_peak"}),
	}, nil
}

func (l *Logger) AppendDecision(d models.Decision) {
	l.decisions.append([]string{
		d.Timestamp.UTC().Format(time.RFC3339), d.AgentID, d.Symbol, string(d.RawSignal),
		strconv.FormatFloat(d.RawConfidence, 'f', 4, 64), strconv.FormatFloat(d.NormalizedConfidence, 'f', 4, 64),
		d.StrategyTag, d.ReasoningText,
	})
}

func (l *Logger) AppendTrade(o models.TradeOutcome) {
	l.trades.append([]string{
		o.ClosedAt.UTC().Format(time.RFC3339), o.PositionRef, o.DecisionRef, string(o.ExitReason),
		strconv.FormatFloat(o.ExitPrice, 'f', 8, 64), strconv.FormatFloat(o.RealizedPnL, 'f', 8, 64),
		strconv.FormatFloat(o.HoldDuration.Seconds(), 'f', 1, 64),
	})
}

func (l *Logger) AppendError(now time.Time, message string) {
	l.errors.append([]string{now.UTC().Format(time.RFC3339), message})
}

func (l *Logger) AppendLearning(now time.Time, agentID, outcomeStatus string, pnl float64) {
	l.learning.append([]string{now.UTC().Format(time.RFC3339), agentID, outcomeStatus, strconv.FormatFloat(pnl, 'f', 8, 64)})
}

func (l *Logger) AppendEquity(s models.EquitySnapshot) {
	l.equity.append([]string{
		s.Timestamp.UTC().Format(time.RFC3339), strconv.FormatFloat(s.Realized, 'f', 4, 64),
		strconv.FormatFloat(s.Unrealized, 'f', 4, 64), strconv.FormatFloat(s.Total, 'f', 4, 64),
		strconv.FormatFloat(s.Peak, 'f', 4, 64), strconv.FormatFloat(s.DrawdownFromPeak, 'f', 6, 64),
	})
}

// FlushAll writes every buffer to disk, called every 7 cycles by the
// orchestrator and once more on shutdown (spec.md §5/§6).
func (l *Logger) FlushAll() {
	for _, b := range []*buffer{l.decisions, l.trades, l.errors, l.learning, l.equity} {
		if err := b.flush(); err != nil {
			logger.Error("csvlog: flush %s failed: %v", b.path, err)
		}
	}
}

// Package journal implements the append-only decision/trade ledgers and
// the atomic cooldown persistence file (spec §6). Grounded on
// notification_service.go's chat_id.txt load/save pair, generalized
// from a plain read-then-write to a write-to-temp-then-rename so a
// crash mid-write never corrupts the ledger, and on the teacher's
// encoding/json usage throughout (handleMessage's combined-stream
// decode) for the record format.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// DecisionRecord captures one supervisor cycle's outcome for a symbol,
// scored signal or not, for later replay/audit.
type DecisionRecord struct {
	Timestamp  time.Time          `json:"timestamp"`
	Symbol     string             `json:"symbol"`
	Stage      string             `json:"stage"`
	Direction  candle.Direction   `json:"direction"`
	Quality    string             `json:"quality,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	Components map[string]float64 `json:"components,omitempty"`
	Outcome    string             `json:"outcome"` // e.g. "TAKEN", "VETOED:spread_sentinel", "REJECTED:score_floor"

	RSI           float64          `json:"rsi,omitempty"`
	PDZone        string           `json:"pd_zone,omitempty"`
	HTFTrend      candle.Trend     `json:"htf_trend,omitempty"`
	LTFTrend      candle.Trend     `json:"ltf_trend,omitempty"`
	SweepDetected bool             `json:"sweep_detected,omitempty"`
	SMTSignal     bool             `json:"smt_signal,omitempty"`
	Session       string           `json:"session,omitempty"`
}

// TradeRecord captures one completed trade lifecycle entry (open,
// management action, or close) for the journal.
type TradeRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Symbol    string           `json:"symbol"`
	Direction candle.Direction `json:"direction"`
	Event     string           `json:"event"` // "OPEN" | "BREAK_EVEN" | "PARTIAL_CLOSE" | "TRAIL" | "CLOSE"
	Entry     float64          `json:"entry,omitempty"`
	StopLoss  float64          `json:"stop_loss,omitempty"`
	TakeProfit float64         `json:"take_profit,omitempty"`
	Quantity  float64          `json:"quantity,omitempty"`
	ExitPrice float64          `json:"exit_price,omitempty"`
	PnL       float64          `json:"pnl,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// Writer appends newline-delimited JSON records to the decision and
// trade logs under one directory. Safe for concurrent use.
type Writer struct {
	mu           sync.Mutex
	decisionFile *os.File
	tradeFile    *os.File
}

// NewWriter opens (creating if necessary) decisions.jsonl and
// trades.jsonl under dir in append mode.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir %s: %w", dir, err)
	}
	decisions, err := os.OpenFile(filepath.Join(dir, "decisions.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open decisions.jsonl: %w", err)
	}
	trades, err := os.OpenFile(filepath.Join(dir, "trades.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		decisions.Close()
		return nil, fmt.Errorf("journal: open trades.jsonl: %w", err)
	}
	return &Writer{decisionFile: decisions, tradeFile: trades}, nil
}

// Close flushes and closes both underlying files.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err1 := w.decisionFile.Close()
	err2 := w.tradeFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// WriteDecision appends rec as one JSON line to decisions.jsonl.
func (w *Writer) WriteDecision(rec DecisionRecord) error {
	return w.appendLine(w.decisionFile, rec)
}

// WriteTrade appends rec as one JSON line to trades.jsonl.
func (w *Writer) WriteTrade(rec TradeRecord) error {
	return w.appendLine(w.tradeFile, rec)
}

func (w *Writer) appendLine(f *os.File, rec any) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: append write: %w", err)
	}
	return nil
}

// cooldownFile is the atomic ledger of last-order timestamps per
// symbol, persisted so restarts don't reset in-flight cooldowns.
type cooldownFile struct {
	Cooldowns map[string]time.Time `json:"cooldowns"`
}

// SaveCooldowns persists cooldowns to path atomically: it writes to a
// temp file in the same directory, then renames over path, so readers
// never observe a partially-written file.
func SaveCooldowns(path string, cooldowns map[string]time.Time) error {
	data, err := json.MarshalIndent(cooldownFile{Cooldowns: cooldowns}, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal cooldowns: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("journal: write temp cooldown file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("journal: rename cooldown file: %w", err)
	}
	return nil
}

// LoadCooldowns reads the cooldown ledger written by SaveCooldowns. A
// missing file is not an error; it returns an empty map.
func LoadCooldowns(path string) (map[string]time.Time, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: read cooldown file: %w", err)
	}
	var f cooldownFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("journal: parse cooldown file: %w", err)
	}
	if f.Cooldowns == nil {
		f.Cooldowns = map[string]time.Time{}
	}
	return f.Cooldowns, nil
}

// ReadDecisions replays every DecisionRecord from a decisions.jsonl
// file, in file order. Intended for tests and offline audit tooling,
// not the hot path.
func ReadDecisions(path string) ([]DecisionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	var out []DecisionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec DecisionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("journal: parse decision line: %w", err)
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const gatewayMetricsFileName = "gateway_metrics.json"

var latencyBucketUpperBoundsMs = []int64{
	10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000,
}

// Snapshot aggregates gateway outcomes since the recorder started.
type Snapshot struct {
	UpdatedAt time.Time     `json:"updated_at"`
	Requests  RequestStats  `json:"requests"`
	Execution ExecutionStat `json:"execution"`
}

// RequestStats counts how requests were decided.
type RequestStats struct {
	Total           int64 `json:"total"`
	ResolveFailures int64 `json:"resolve_failures"`
	Allowed         int64 `json:"allowed"`
	Denied          int64 `json:"denied"`
	HITL            int64 `json:"hitl"`
	Approved        int64 `json:"approved"`
	Rejected        int64 `json:"rejected"`
}

// DenyRatio returns denied/total in [0,1].
func (r RequestStats) DenyRatio() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Denied) / float64(r.Total)
}

// ExecutionStat tracks backend calls.
type ExecutionStat struct {
	Total             int64 `json:"total"`
	Errors            int64 `json:"errors"`
	Timeouts          int64 `json:"timeouts"`
	Rows              int64 `json:"rows"`
	TotalLatencyMs    int64 `json:"total_latency_ms"`
	MaxLatencyMs      int64 `json:"max_latency_ms"`
	LastLatencyMs     int64 `json:"last_latency_ms"`
	P95ProxyLatencyMs int64 `json:"p95_proxy_latency_ms"`
}

// ErrorRatio returns errors/total in [0,1].
func (e ExecutionStat) ErrorRatio() float64 {
	if e.Total <= 0 {
		return 0
	}
	return float64(e.Errors) / float64(e.Total)
}

// AvgLatencyMs returns the mean backend latency.
func (e ExecutionStat) AvgLatencyMs() float64 {
	if e.Total <= 0 {
		return 0
	}
	return float64(e.TotalLatencyMs) / float64(e.Total)
}

// HasData reports whether anything was recorded.
func (s Snapshot) HasData() bool {
	return s.Requests.Total > 0
}

// Event describes one finished gateway call.
type Event struct {
	ResolveFailed bool
	Decision      string // final ALLOW, DENY or HITL from the evaluator
	Approved      *bool  // set only when the approval gate ran
	Executed      bool
	Rowcount      int
	Latency       time.Duration
	Err           error
}

// Recorder keeps a Snapshot in memory and persists it after every event.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	path string

	mu      sync.Mutex
	snap    Snapshot
	buckets []int64
}

// NewRecorder persists to <workspace>/state/gateway_metrics.json.
// An empty workspace keeps metrics in memory only.
func NewRecorder(workspace string) *Recorder {
	path := ""
	if strings.TrimSpace(workspace) != "" {
		path = snapshotPath(workspace)
	}
	return &Recorder{
		path:    path,
		buckets: make([]int64, len(latencyBucketUpperBoundsMs)+1),
	}
}

// Snapshot returns the in-memory snapshot.
func (m *Recorder) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Record folds ev into the snapshot and persists it.
func (m *Recorder) Record(ev Event) (Snapshot, error) {
	if m == nil {
		return Snapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Requests.Total++

	switch {
	case ev.ResolveFailed:
		m.snap.Requests.ResolveFailures++
		m.snap.Requests.Denied++
	case ev.Decision == "HITL":
		m.snap.Requests.HITL++
		if ev.Approved != nil && *ev.Approved {
			m.snap.Requests.Approved++
		} else {
			m.snap.Requests.Rejected++
			m.snap.Requests.Denied++
		}
	case ev.Decision == "ALLOW":
		m.snap.Requests.Allowed++
	default:
		m.snap.Requests.Denied++
	}

	if ev.Executed {
		latencyMs := ev.Latency.Milliseconds()
		if latencyMs < 0 {
			latencyMs = 0
		}
		exec := &m.snap.Execution
		exec.Total++
		exec.Rows += int64(ev.Rowcount)
		exec.TotalLatencyMs += latencyMs
		exec.LastLatencyMs = latencyMs
		if latencyMs > exec.MaxLatencyMs {
			exec.MaxLatencyMs = latencyMs
		}
		if ev.Err != nil {
			exec.Errors++
			if isTimeoutError(ev.Err) {
				exec.Timeouts++
			}
		}
		m.buckets[latencyBucketIndex(latencyMs)]++
		exec.P95ProxyLatencyMs = p95ProxyFromBuckets(m.buckets, exec.Total)
	}

	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistSnapshot(m.path, snapshot)
}

// ReadSnapshot reads the persisted snapshot. A missing file yields a zero
// snapshot and no error.
func ReadSnapshot(workspace string) (Snapshot, error) {
	raw, err := os.ReadFile(snapshotPath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("read gateway metrics: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode gateway metrics: %w", err)
	}
	return snap, nil
}

func snapshotPath(workspace string) string {
	return filepath.Join(workspace, "state", gatewayMetricsFileName)
}

func persistSnapshot(path string, snapshot Snapshot) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create gateway metrics dir: %w", err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode gateway metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), gatewayMetricsFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create gateway metrics temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write gateway metrics temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close gateway metrics temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename gateway metrics file: %w", err)
	}
	return nil
}

func latencyBucketIndex(latencyMs int64) int {
	for i, upper := range latencyBucketUpperBoundsMs {
		if latencyMs <= upper {
			return i
		}
	}
	return len(latencyBucketUpperBoundsMs)
}

func p95ProxyFromBuckets(buckets []int64, total int64) int64 {
	if total <= 0 {
		return 0
	}
	target := int64(float64(total) * 0.95)
	if target <= 0 {
		target = 1
	}

	var cumulative int64
	for i, count := range buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		if i >= len(latencyBucketUpperBoundsMs) {
			return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
		}
		return latencyBucketUpperBoundsMs[i]
	}
	return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	lowered := strings.ToLower(err.Error())
	return strings.Contains(lowered, "deadline exceeded") ||
		strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "timed out")
}

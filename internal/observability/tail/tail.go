// Package tail implements the telemetry tail sidecar: it waits for the
// emitter's sink file, follows it in real time, and republishes each
// event line onto the bus so the observer (and any other subscriber)
// never has to read the sink file directly.
//
// The follow loop is grounded on internal/skills/manager.go's
// fsnotify-based watch loop (watcher + debounced refresh on
// Write/Create), adapted from "rediscover skills on change" to "drain
// newly appended lines on change."
package tail

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aishacrm/orchestrator-core/internal/apperr"
	"github.com/aishacrm/orchestrator-core/internal/bus"
)

// HealthState is one of the sidecar's reported lifecycle states.
type HealthState string

const (
	HealthStarting        HealthState = "starting"
	HealthWaitingForFile  HealthState = "waiting_for_file"
	HealthTailing         HealthState = "tailing"
	HealthError           HealthState = "error"
)

// Config configures a Sidecar.
type Config struct {
	SinkPath string
	Topic    string

	// PollInterval is how often the sidecar checks for the sink file's
	// existence while waiting. Defaults to 500ms.
	PollInterval time.Duration

	// WaitAttemptsBeforeSurfacing bounds how many poll attempts are made
	// silently before SinkUnavailable is surfaced in Health(); the
	// sidecar keeps polling indefinitely either way. Defaults to 10.
	WaitAttemptsBeforeSurfacing int
}

// Sidecar tails an emitter's sink file and republishes lines to a bus
// topic. Delivery is at-least-once: a restart re-reads from the current
// end of file rather than tracking a durable offset, so the bus
// consumer's idempotency (by run_id/span_id/type/ts) is load-bearing.
type Sidecar struct {
	cfg       Config
	publisher bus.Publisher
	logger    *slog.Logger

	mu      sync.RWMutex
	health  HealthState
	lastErr error
}

// New constructs a Sidecar. publisher is typically a bus.Bus obtained
// from bus.New.
func New(cfg Config, publisher bus.Publisher, logger *slog.Logger) *Sidecar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sidecar{cfg: cfg, publisher: publisher, logger: logger, health: HealthStarting}
}

// Health reports the sidecar's current lifecycle state and, if in
// HealthError or a surfaced SinkUnavailable wait, the last error.
func (s *Sidecar) Health() (HealthState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health, s.lastErr
}

func (s *Sidecar) setHealth(state HealthState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = state
	s.lastErr = err
}

// Run blocks, tailing the sink file until ctx is cancelled or an
// unrecoverable error occurs (a failure to create the fsnotify watcher
// itself; everything else — a missing file, a transient read error —
// is retried rather than returned).
func (s *Sidecar) Run(ctx context.Context) error {
	s.setHealth(HealthStarting, nil)

	file, err := s.waitForFile(ctx)
	if err != nil {
		return err
	}
	defer file.Close()

	s.setHealth(HealthTailing, nil)
	return s.followFile(ctx, file)
}

func (s *Sidecar) waitForFile(ctx context.Context) (*os.File, error) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	boundedAttempts := s.cfg.WaitAttemptsBeforeSurfacing
	if boundedAttempts <= 0 {
		boundedAttempts = 10
	}

	attempt := 0
	for {
		f, err := os.Open(s.cfg.SinkPath)
		if err == nil {
			return f, nil
		}

		attempt++
		if attempt >= boundedAttempts {
			s.setHealth(HealthWaitingForFile, apperr.New(apperr.CodeStorageUnavailable, "telemetry sink file not yet available"))
		} else {
			s.setHealth(HealthWaitingForFile, nil)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (s *Sidecar) followFile(ctx context.Context, file *os.File) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.setHealth(HealthError, err)
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.cfg.SinkPath)
	if err := watcher.Add(dir); err != nil {
		s.setHealth(HealthError, err)
		return err
	}

	reader := bufio.NewReader(file)
	target := filepath.Clean(s.cfg.SinkPath)

	drain := func() {
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				s.handleLine(ctx, line)
			}
			if err != nil {
				return
			}
		}
	}
	drain()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				drain()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("telemetry tail watcher error", "error", err)
		}
	}
}

func (s *Sidecar) handleLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	var rec map[string]interface{}
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return
	}
	if marker, ok := rec["_telemetry"].(bool); !ok || !marker {
		return
	}

	tenantID, _ := rec["tenant_id"].(string)
	runID, _ := rec["run_id"].(string)
	key := bus.PartitionKey(tenantID, runID)

	if err := s.publisher.Publish(ctx, bus.Message{Topic: s.cfg.Topic, Key: key, Payload: []byte(line)}); err != nil {
		s.logger.Warn("telemetry tail publish failed", "error", err)
	}
}

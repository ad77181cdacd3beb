package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TurnLogEvent is one recorded conversation turn.
type TurnLogEvent struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	DTCCode   string `json:"dtc_code,omitempty"`
	StepIndex int    `json:"step_index"`
	Role      string `json:"role"`
	EventType string `json:"event_type"`
	Content   string `json:"content"`
}

// TurnLogger records conversation turns for offline review.
type TurnLogger interface {
	Log(event TurnLogEvent)
	Close() error
}

// TurnLogConfig controls NDJSON turn logging.
type TurnLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

type noopTurnLogger struct{}

func (noopTurnLogger) Log(TurnLogEvent) {}
func (noopTurnLogger) Close() error     { return nil }

// ndjsonTurnLogger appends one JSON object per line to a per-session
// file under the configured directory. Writes go through a buffered
// queue so a slow disk never blocks a request; the queue drops on
// overflow.
type ndjsonTurnLogger struct {
	dir    string
	queue  chan TurnLogEvent
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewTurnLogger creates a turn logger. Returns a no-op logger when
// disabled.
func NewTurnLogger(cfg TurnLogConfig, logger *slog.Logger) (TurnLogger, error) {
	if !cfg.Enabled {
		return noopTurnLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create turn log directory: %w", err)
	}

	l := &ndjsonTurnLogger{
		dir:    cfg.Dir,
		queue:  make(chan TurnLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log enqueues an event, dropping it if the queue is full.
func (l *ndjsonTurnLogger) Log(event TurnLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("turn log queue full, dropping event", "session_id", event.SessionID)
	}
}

func (l *ndjsonTurnLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.queue:
			l.write(event)
		case <-l.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case event := <-l.queue:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *ndjsonTurnLogger) write(event TurnLogEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal turn log event", "error", err)
		return
	}

	path := filepath.Join(l.dir, event.SessionID+".ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.logger.Warn("failed to open turn log file", "error", err, "path", path)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.logger.Warn("failed to write turn log event", "error", err, "path", path)
	}
}

// Close stops the writer goroutine after draining the queue.
func (l *ndjsonTurnLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

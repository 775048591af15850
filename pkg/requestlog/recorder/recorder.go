package recorder

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/kate/pkg/requestlog"
)

// Config contains configuration for the request log recorder.
type Config struct {
	// Enabled enables request logging.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single storage write, and how long Record waits
	// for buffer space before dropping.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxBodyLength truncates captured request and response bodies.
	// Default: 2048
	MaxBodyLength int

	// RedactHeaders lists headers stored only as a hash.
	// Default: Authorization, Proxy-Authorization, Cookie, X-Api-Key
	RedactHeaders []string
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		AsyncBuffer:   1000,
		WriteTimeout:  5 * time.Second,
		MaxBodyLength: 2048,
		RedactHeaders: []string{"Authorization", "Proxy-Authorization", "Cookie", "X-Api-Key"},
	}
}

// Recorder writes request log records to storage on a background worker so
// that serving a request never waits on the database.
type Recorder struct {
	storage    requestlog.Storage
	config     *Config
	recordChan chan *requestlog.Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger

	mu     sync.RWMutex
	redact map[string]bool

	// OnDrop is called for every record that could not be enqueued.
	OnDrop func(*requestlog.Record)
}

// NewRecorder creates a recorder and starts its worker.
func NewRecorder(storage requestlog.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *requestlog.Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "requestlog.recorder"),
		redact:     make(map[string]bool),
	}
	for _, h := range config.RedactHeaders {
		r.redact[http.CanonicalHeaderKey(h)] = true
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("request log recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// RedactHeader adds a header, such as a route's key header, to the redacted set.
func (r *Recorder) RedactHeader(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redact[http.CanonicalHeaderKey(name)] = true
}

// Headers flattens h for storage, hashing redacted values.
func (r *Recorder) Headers(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(h))
	for k, v := range h {
		value := strings.Join(v, ", ")
		if r.redact[http.CanonicalHeaderKey(k)] {
			value = RedactSecret(value)
		}
		out[k] = value
	}
	return out
}

// Body truncates a captured body.
func (r *Recorder) Body(b []byte) string {
	return TruncateString(string(b), r.config.MaxBodyLength)
}

// Record enqueues a finished record. It returns immediately; records for
// admin paths are ignored.
func (r *Recorder) Record(ctx context.Context, record *requestlog.Record) error {
	if !r.config.Enabled || record == nil {
		return nil
	}
	if strings.HasPrefix(record.Path, "/_") {
		return nil
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	select {
	case <-r.done:
		r.drop(record)
		return requestlog.NewRecorderError(record.ID, requestlog.ErrClosed)
	default:
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- record:
		return nil
	case <-timer.C:
		r.logger.Error("request log channel full, dropping record",
			"record_id", record.ID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		r.drop(record)
		return requestlog.NewRecorderError(record.ID, context.DeadlineExceeded)
	case <-ctx.Done():
		r.drop(record)
		return requestlog.NewRecorderError(record.ID, ctx.Err())
	case <-r.done:
		r.logger.Warn("recorder shutting down, dropping record", "record_id", record.ID)
		r.drop(record)
		return requestlog.NewRecorderError(record.ID, requestlog.ErrClosed)
	}
}

func (r *Recorder) drop(record *requestlog.Record) {
	if r.OnDrop != nil {
		r.OnDrop(record)
	}
}

// Close drains the channel and waits for pending writes.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down request log recorder")
		close(r.done)
		r.wg.Wait()
		r.logger.Info("request log recorder shut down complete")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *requestlog.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.logger.Error("failed to store request log record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"error", err,
		)
		return
	}

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow request log write",
			"record_id", record.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}

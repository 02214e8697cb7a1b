// Package pipeline exports extracted portal records through a pool of
// workers that validate, de-duplicate and batch them for an OutputWriter.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

const (
	DefaultBatchSize  = 64
	DefaultDedupeSize = 10000
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []models.Record) error
	Close() error
	Validate() error
}

// Pipeline fans records out to workers that validate, de-duplicate and
// batch them per kind before handing each batch to the writer.
type Pipeline struct {
	writer    OutputWriter
	in        chan models.Record
	batchSize int
	workers   sync.WaitGroup

	// seen remembers the most recent record keys; older keys may be evicted
	// and written again.
	seen    *lru.Cache[string, struct{}]
	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	stopOnce sync.Once
	done     chan struct{}
}

// NewPipeline builds a pipeline remembering up to dedupeSize record keys.
func NewPipeline(writer OutputWriter, dedupeSize int) (*Pipeline, error) {
	if writer == nil {
		return nil, fmt.Errorf("pipeline: writer is nil")
	}
	if dedupeSize <= 0 {
		dedupeSize = DefaultDedupeSize
	}
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create dedupe cache: %w", err)
	}
	return &Pipeline{
		writer:    writer,
		in:        make(chan models.Record, 512),
		batchSize: DefaultBatchSize,
		seen:      seen,
		metrics:   newMetrics(),
		done:      make(chan struct{}),
	}, nil
}

// Start launches n workers. It does nothing once the pipeline is closed.
func (p *Pipeline) Start(n int) {
	if closed, _ := p.state(); closed {
		return
	}
	for range max(n, 1) {
		p.workers.Add(1)
		go p.work()
	}
}

// Process enqueues records. Nil records are ignored.
func (p *Pipeline) Process(records []models.Record) error {
	if closed, err := p.state(); err != nil {
		return err
	} else if closed {
		return ErrPipelineClosed
	}
	for _, record := range records {
		if record == nil {
			continue
		}
		if err := p.send(record); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued records, waits for the workers and returns the first
// write error. The writer is left open for the caller to close.
func (p *Pipeline) Close() error {
	p.stop(nil)
	p.workers.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Metrics is a point-in-time copy of the pipeline counters.
type Metrics struct {
	Processed        int64
	ByKind           map[string]int64
	ValidationErrors map[string]int
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() Metrics {
	return p.metrics.snapshot()
}

// StartMetricsReporting logs progress every interval until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("processed", m.Processed),
					slog.Any("by_kind", m.ByKind),
					slog.Any("validation_errors", m.ValidationErrors))
			case <-p.done:
				return
			}
		}
	}()
}

// work keeps one pending batch per record kind so every Write call carries
// a single kind.
func (p *Pipeline) work() {
	defer p.workers.Done()

	pending := make(map[string][]models.Record)
	var order []string
	flush := func(kind string) bool {
		batch := pending[kind]
		if len(batch) == 0 {
			return true
		}
		if err := p.writer.Write(batch); err != nil {
			p.stop(fmt.Errorf("write %s batch: %w", kind, err))
			return false
		}
		pending[kind] = batch[:0]
		return true
	}

	for record := range p.in {
		if !p.accept(record) {
			continue
		}
		kind := record.Kind()
		if _, ok := pending[kind]; !ok {
			order = append(order, kind)
		}
		pending[kind] = append(pending[kind], record)
		if len(pending[kind]) >= p.batchSize && !flush(kind) {
			return
		}
	}
	for _, kind := range order {
		if !flush(kind) {
			return
		}
	}
}

func (p *Pipeline) accept(record models.Record) bool {
	if err := parser.ValidateRecord(record); err != nil {
		slog.Debug("dropping invalid record", slog.String("kind", record.Kind()), slog.Any("error", err))
		p.metrics.addValidation("invalid_record")
		return false
	}
	if found, _ := p.seen.ContainsOrAdd(record.Kind()+"/"+record.Key(), struct{}{}); found {
		p.metrics.addValidation("duplicate_key")
		return false
	}
	p.metrics.incrementProcessed(record.Kind())
	return true
}

// send blocks until a worker takes record or the pipeline stops. A send
// racing with stop may hit the closed channel; that is reported as closed.
func (p *Pipeline) send(record models.Record) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrPipelineClosed
		}
	}()
	select {
	case <-p.done:
		return ErrPipelineClosed
	case p.in <- record:
		return nil
	}
}

// stop closes the pipeline once, keeping the first non-nil cause.
func (p *Pipeline) stop(cause error) {
	p.mu.Lock()
	p.closed = true
	if p.err == nil {
		p.err = cause
	}
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.done)
		close(p.in)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	byKind     map[string]int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		byKind:     make(map[string]int64),
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed(kind string) {
	m.mu.Lock()
	m.processed++
	m.byKind[kind]++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Metrics{
		Processed:        m.processed,
		ByKind:           make(map[string]int64, len(m.byKind)),
		ValidationErrors: make(map[string]int, len(m.validation)),
	}
	for k, v := range m.byKind {
		out.ByKind[k] = v
	}
	for k, v := range m.validation {
		out.ValidationErrors[k] = v
	}
	return out
}

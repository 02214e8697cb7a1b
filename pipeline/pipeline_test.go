package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/go-unipa/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]models.Record
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(records []models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]models.Record, len(records))
	copy(copyBatch, records)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func notice(id string) models.NoticeItem {
	return models.NoticeItem{ID: id, Title: "掲示 " + id, Date: "2024-07-01", Category: models.CategoryGeneral, Priority: models.PriorityLow}
}

func newTestPipeline(t *testing.T, writer OutputWriter, dedupeSize int) *Pipeline {
	t.Helper()
	p, err := NewPipeline(writer, dedupeSize)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, 0)
	p.Start(1)

	valid := notice("1")
	invalid := models.NoticeItem{ID: "2", Date: "2024-07-01"}
	duplicate := notice("1")
	sameKeyOtherKind := models.AttendanceItem{Date: "2024-07-01", Period: 1, Subject: "1", Teacher: "田中"}

	if err := p.Process([]models.Record{valid, invalid, duplicate, nil, sameKeyOtherKind}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 2 {
		t.Fatalf("written records = %d, want 2", got)
	}

	metrics := p.GetMetrics()
	if metrics.ValidationErrors["invalid_record"] != 1 {
		t.Fatalf("invalid_record = %d, want 1", metrics.ValidationErrors["invalid_record"])
	}
	if metrics.ValidationErrors["duplicate_key"] != 1 {
		t.Fatalf("duplicate_key = %d, want 1", metrics.ValidationErrors["duplicate_key"])
	}
	if metrics.ByKind["notice"] != 1 || metrics.ByKind["attendance"] != 1 {
		t.Fatalf("by kind = %v", metrics.ByKind)
	}
}

func TestPipelineDedupeCacheEvicts(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, 1)
	p.Start(1)

	records := []models.Record{notice("a"), notice("b"), notice("a")}
	if err := p.Process(records); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.totalWritten(); got != 3 {
		t.Fatalf("written records = %d, want 3 once the key was evicted", got)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, 0)
	p.Start(1)

	for i := 0; i < DefaultBatchSize+1; i++ {
		if err := p.Process([]models.Record{notice(strconv.Itoa(i))}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != DefaultBatchSize || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [%d 1]", sizes, DefaultBatchSize)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, 0)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process([]models.Record{notice(strconv.Itoa(i + 200))}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written records = %d, want 100", got)
	}
	if writer.closed {
		t.Fatalf("pipeline must leave the writer open")
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := newTestPipeline(t, &mockWriter{}, 0)
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process([]models.Record{notice("late")}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineWriteError(t *testing.T) {
	boom := errors.New("disk full")
	p := newTestPipeline(t, &mockWriter{writeErr: boom}, 0)
	p.Start(1)

	if err := p.Process([]models.Record{notice("1")}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); !errors.Is(err, boom) {
		t.Fatalf("close = %v, want %v", err, boom)
	}
}

func TestNewPipelineRequiresWriter(t *testing.T) {
	if _, err := NewPipeline(nil, 10); err == nil {
		t.Fatalf("expected error for nil writer")
	}
}

package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-unipa/models"
)

type namedWriter struct {
	name string
	OutputWriter
}

// DualWriter fans each batch out to several writers in order. The first
// failing Write stops the batch; Close and Validate visit every writer.
type DualWriter struct {
	mu      sync.Mutex
	targets []namedWriter
}

// NewDualWriter opens a JSONL file and a CSV set side by side. CSV files
// are created as record kinds arrive.
func NewDualWriter(csvFilename, jsonFilename, primary string) (*DualWriter, error) {
	jw, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, fmt.Errorf("dual writer: %w", err)
	}
	cw := NewCSVSet(csvFilename, primary)
	return &DualWriter{targets: []namedWriter{{"csv", cw}, {"json", jw}}}, nil
}

func (dw *DualWriter) Write(records []models.Record) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	for _, t := range dw.targets {
		if err := t.Write(records); err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
	}
	return nil
}

func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each("close", OutputWriter.Close)
}

func (dw *DualWriter) Validate() error {
	return dw.each("validate", OutputWriter.Validate)
}

func (dw *DualWriter) each(op string, fn func(OutputWriter) error) error {
	var errs []error
	for _, t := range dw.targets {
		if err := fn(t.OutputWriter); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op, t.name, err))
		}
	}
	return errors.Join(errs...)
}

package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-unipa/models"
)

// NewWriter opens the writer for format. Dual output derives its two file
// names from output by extension. primary names the record kind that gets
// the CSV file itself; other kinds get sibling files.
func NewWriter(format, output, primary string) (OutputWriter, error) {
	switch format {
	case "csv":
		return NewCSVSet(output, primary), nil
	case "json":
		return NewJSONWriter(output)
	case "dual":
		base := strings.TrimSuffix(output, filepath.Ext(output))
		return NewDualWriter(base+".csv", base+".jsonl", primary)
	case "sqlite":
		return NewSQLiteWriter(output)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// fileSink is the file handle and row count shared by the flat-file writers.
type fileSink struct {
	mu     sync.Mutex
	file   *os.File
	buffer *bufio.Writer
	format string
	rows   int
}

func openSink(filename, format string) (*fileSink, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", format, err)
	}
	return &fileSink{file: f, buffer: bufio.NewWriter(f), format: format}, nil
}

func (fs *fileSink) close(flush func() error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := flush(); err != nil {
		_ = fs.file.Close()
		return fmt.Errorf("flush %s writer: %w", fs.format, err)
	}
	return fs.file.Close()
}

// validate reports an error when no record reached the file.
func (fs *fileSink) validate() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.rows == 0 {
		return fmt.Errorf("%s file is empty", fs.format)
	}
	return nil
}

// CSVWriter writes records of a single kind to CSV. The header comes from
// the first record written.
type CSVWriter struct {
	*fileSink
	writer *csv.Writer
	kind   string
}

// NewCSVWriter creates the output file.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	sink, err := openSink(filename, "csv")
	if err != nil {
		return nil, err
	}
	return &CSVWriter{fileSink: sink, writer: csv.NewWriter(sink.buffer)}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, record := range records {
		if cw.kind == "" {
			cw.kind = record.Kind()
			if err := cw.writer.Write(record.Columns()); err != nil {
				return fmt.Errorf("write csv header: %w", err)
			}
		}
		if record.Kind() != cw.kind {
			return fmt.Errorf("csv writer holds %s records, got %s", cw.kind, record.Kind())
		}
		if err := cw.writer.Write(record.Values()); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return cw.buffer.Flush()
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	return cw.close(func() error {
		cw.writer.Flush()
		if err := cw.writer.Error(); err != nil {
			return err
		}
		return cw.buffer.Flush()
	})
}

// Validate ensures at least one record was written.
func (cw *CSVWriter) Validate() error {
	return cw.validate()
}

// CSVSet writes each record kind to its own CSV file. The primary kind
// takes filename; other kinds go to "<base>.<kind><ext>" beside it. With no
// primary kind, the first kind written takes filename.
type CSVSet struct {
	mu       sync.Mutex
	filename string
	primary  string
	order    []string
	files    map[string]*CSVWriter
}

// NewCSVSet returns a set that opens files on first use.
func NewCSVSet(filename, primary string) *CSVSet {
	return &CSVSet{filename: filename, primary: primary, files: make(map[string]*CSVWriter)}
}

// Path returns the file used for kind.
func (cs *CSVSet) Path(kind string) string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.path(kind)
}

func (cs *CSVSet) path(kind string) string {
	if cs.primary == "" && len(cs.order) > 0 {
		cs.primary = cs.order[0]
	}
	if cs.primary == "" || cs.primary == kind {
		return cs.filename
	}
	ext := filepath.Ext(cs.filename)
	return strings.TrimSuffix(cs.filename, ext) + "." + kind + ext
}

// Write routes each run of same-kind records to that kind's file.
func (cs *CSVSet) Write(records []models.Record) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for start := 0; start < len(records); {
		kind := records[start].Kind()
		end := start + 1
		for end < len(records) && records[end].Kind() == kind {
			end++
		}
		cw, ok := cs.files[kind]
		if !ok {
			var err error
			if cw, err = NewCSVWriter(cs.path(kind)); err != nil {
				return err
			}
			cs.files[kind] = cw
			cs.order = append(cs.order, kind)
		}
		if err := cw.Write(records[start:end]); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		start = end
	}
	return nil
}

// Close closes every file opened so far.
func (cs *CSVSet) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var errs []error
	for _, kind := range cs.order {
		if err := cs.files[kind].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// Validate fails when no file received a record.
func (cs *CSVSet) Validate() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, kind := range cs.order {
		if cs.files[kind].validate() == nil {
			return nil
		}
	}
	return fmt.Errorf("csv file is empty")
}

// jsonLine is one JSONL entry. Kind and key let a reader split a mixed
// stream without knowing every record type.
type jsonLine struct {
	Kind   string        `json:"kind"`
	Key    string        `json:"key"`
	Record models.Record `json:"record"`
}

// JSONWriter writes newline-delimited JSON, one record per line.
type JSONWriter struct {
	*fileSink
	encoder *json.Encoder
}

// NewJSONWriter creates the output file.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	sink, err := openSink(filename, "json")
	if err != nil {
		return nil, err
	}
	encoder := json.NewEncoder(sink.buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{fileSink: sink, encoder: encoder}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		line := jsonLine{Kind: record.Kind(), Key: record.Key(), Record: record}
		if err := jw.encoder.Encode(line); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.rows++
	}
	if err := jw.buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.close(jw.buffer.Flush)
}

// Validate ensures at least one record was written.
func (jw *JSONWriter) Validate() error {
	return jw.validate()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

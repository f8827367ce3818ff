package journal

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const schemaMarkerPrefix = "# audit-schema: v"

func schemaMarker() string {
	return schemaMarkerPrefix + strconv.Itoa(SchemaVersion)
}

// CSVJournal appends audit rows to a delimited file. Every Record opens the
// file, writes one row, syncs and closes it again, so a crash can lose at
// most the row being written.
type CSVJournal struct {
	mu   sync.Mutex
	path string
}

// NewCSV prepares path for appending. An existing file must carry the
// current schema marker.
func NewCSV(path string) (*CSVJournal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := checkSchema(path); err != nil {
		return nil, err
	}
	return &CSVJournal{path: path}, nil
}

func (j *CSVJournal) Path() string { return j.path }

func (j *CSVJournal) Record(r AuditRecord) (err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	fh, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer func() {
		if cerr := fh.Close(); err == nil {
			err = cerr
		}
	}()

	info, err := fh.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(fh)
	if info.Size() == 0 {
		if _, err := io.WriteString(fh, schemaMarker()+"\n"); err != nil {
			return err
		}
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	if err := w.Write(r.Row()); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fh.Sync()
}

// Close is a no-op; the file is never held open between records.
func (j *CSVJournal) Close() error { return nil }

func checkSchema(path string) error {
	fh, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer fh.Close()

	line, err := bufio.NewReader(fh).ReadString('\n')
	if err == io.EOF && line == "" {
		return nil
	}
	if err != nil && err != io.EOF {
		return err
	}
	if strings.TrimSpace(line) != schemaMarker() {
		return fmt.Errorf("audit log %s: unexpected schema %q (want %q)", path, strings.TrimSpace(line), schemaMarker())
	}
	return nil
}

// ReadCSV loads every record from an audit file written by CSVJournal.
func ReadCSV(path string) ([]AuditRecord, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	rd := csv.NewReader(fh)
	rd.Comment = '#'
	rd.FieldsPerRecord = len(Header)

	rows, err := rd.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]AuditRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("audit row %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (AuditRecord, error) {
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("timestamp: %w", err)
	}
	qty, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("qty: %w", err)
	}
	filled, err := strconv.ParseFloat(row[8], 64)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("filled_qty: %w", err)
	}
	avg, err := optional(row[9])
	if err != nil {
		return AuditRecord{}, fmt.Errorf("avg_fill_price: %w", err)
	}
	stop, err := optional(row[12])
	if err != nil {
		return AuditRecord{}, fmt.Errorf("stop_price: %w", err)
	}
	tp, err := optional(row[13])
	if err != nil {
		return AuditRecord{}, fmt.Errorf("take_profit_price: %w", err)
	}
	return AuditRecord{
		Time:            time.Unix(ts, 0).UTC(),
		Symbol:          row[1],
		Side:            row[2],
		Qty:             qty,
		Type:            row[4],
		TimeInForce:     row[5],
		ClientOrderID:   row[6],
		Status:          row[7],
		FilledQty:       filled,
		AvgFillPrice:    avg,
		OrderID:         row[10],
		OrderClass:      row[11],
		StopPrice:       stop,
		TakeProfitPrice: tp,
	}, nil
}

func optional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

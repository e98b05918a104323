package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/cyber-run/OpenMV-H7/logging"
)

// header is the first row of every record file.
var header = []string{"time", "error", "angle"}

// A Sink stores a finished record without ever replacing an earlier one. It returns the name
// the record was stored under.
type Sink interface {
	Write(ctx context.Context, rec *Record, freq float64) (string, error)
}

// CSVSink writes records as CSV files named Curve<freq>Hz_<n>.csv in a directory, picking the
// first n that is not taken.
type CSVSink struct {
	fs     afero.Fs
	dir    string
	logger logging.Logger
}

// NewCSVSink returns a sink writing into dir on fs.
func NewCSVSink(fs afero.Fs, dir string, logger logging.Logger) *CSVSink {
	return &CSVSink{fs: fs, dir: dir, logger: logger}
}

// FileName returns the name of the n'th record file for freq.
func FileName(freq float64, n int) string {
	return fmt.Sprintf("Curve%sHz_%d.csv", strconv.FormatFloat(freq, 'f', -1, 64), n)
}

// FreqFromFileName returns the frequency tag of a record file name, ok is false when the name
// was not made by FileName.
func FreqFromFileName(name string) (freq float64, ok bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, "Curve") || !strings.HasSuffix(base, ".csv") {
		return 0, false
	}
	tag := strings.TrimSuffix(strings.TrimPrefix(base, "Curve"), ".csv")
	i := strings.LastIndex(tag, "Hz_")
	if i <= 0 {
		return 0, false
	}
	if _, err := strconv.Atoi(tag[i+3:]); err != nil {
		return 0, false
	}
	freq, err := strconv.ParseFloat(tag[:i], 64)
	if err != nil || freq <= 0 {
		return 0, false
	}
	return freq, true
}

// Write stores rec and returns the path of the new file.
func (s *CSVSink) Write(ctx context.Context, rec *Record, freq float64) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "couldn't create %q", s.dir)
	}
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path := filepath.Join(s.dir, FileName(freq, n))
		f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			exists, existsErr := afero.Exists(s.fs, path)
			if existsErr == nil && exists {
				continue
			}
			return "", errors.Wrapf(err, "couldn't create %q", path)
		}
		err = WriteCSV(f, rec)
		if err := multierr.Combine(err, f.Close()); err != nil {
			return "", errors.Wrapf(err, "couldn't write %q", path)
		}
		s.logger.Infow("record saved", "path", path, "samples", rec.Len())
		return path, nil
	}
}

// WriteCSV writes rec to w with a header row.
func WriteCSV(w io.Writer, rec *Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range rec.Samples() {
		row := []string{formatFloat(s.Time), formatFloat(s.Error), formatFloat(s.Angle)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadCSV reads a record written by WriteCSV.
func ReadCSV(r io.Reader) (*Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't parse record")
	}
	if len(rows) == 0 {
		return nil, errors.New("record has no header")
	}
	for i, h := range header {
		if rows[0][i] != h {
			return nil, errors.Errorf("unexpected record header %v", rows[0])
		}
	}
	rec := NewRecord()
	for i, row := range rows[1:] {
		var vals [3]float64
		for j, field := range row {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %s", i+1, header[j])
			}
			vals[j] = v
		}
		rec.Append(Sample{Time: vals[0], Error: vals[1], Angle: vals[2]})
	}
	return rec, nil
}

// ReadCSVFile reads the record stored at path on fs.
func ReadCSVFile(fs afero.Fs, path string) (*Record, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open %q", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

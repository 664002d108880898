// Package parser turns an uploaded file into ordered records. Parsing is all or
// nothing: any failure is a job-level error and no partial result is returned.
package parser

import (
	"context"
	"fmt"
	"io"
	"strings"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
)

const moduleName = "parser"

const bom = "\ufeff"

// ctxCheckEvery is how many records are read between two context checks.
const ctxCheckEvery = 256

var (
	// ErrCorruptFile matches a file that could not be decoded.
	ErrCorruptFile = exception.Sentinel(exception.CodeFileIsCorrupt)
	// ErrEmptyUpload matches a file without records.
	ErrEmptyUpload = exception.Sentinel(exception.CodeUploadFileEmpty)
	// ErrEmptyUnit matches a file with a record that carries no value.
	ErrEmptyUnit = exception.Sentinel(exception.CodeFileHasEmptyUnit)
	// ErrUnsupportedFormat matches an unknown file extension.
	ErrUnsupportedFormat = exception.Sentinel(exception.CodeUnsupportedFileType)
)

// Options are the per-job parsing settings.
type Options struct {
	// Delimiter separates CSV cells. Zero means ','.
	Delimiter rune
	// SkipLines is the number of leading lines dropped before the header row.
	// Ignored for XML.
	SkipLines int
}

// OptionsFromJob derives the parsing options of a job.
func OptionsFromJob(job *model.Job) Options {
	return Options{Delimiter: job.Delimiter(), SkipLines: job.SkipLines}
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// FileParser decodes one file format.
type FileParser interface {
	Parse(ctx context.Context, r io.Reader, opts Options) ([]model.Record, error)
}

var parsers = map[model.FileFormat]FileParser{
	model.FormatCSV:  &CSVParser{},
	model.FormatXML:  &XMLParser{},
	model.FormatXLSX: &XLSXParser{},
}

// For returns the parser of a format.
func For(format model.FileFormat) (FileParser, error) {
	p, ok := parsers[format]
	if !ok {
		return nil, exception.NewJobError(moduleName, exception.CodeUnsupportedFileType, fmt.Sprintf("unsupported file type %q", format), nil)
	}
	return p, nil
}

// Parse decodes r in the given format and checks the result: an upload must hold
// at least one record and every record at least one non-blank value.
func Parse(ctx context.Context, r io.Reader, format model.FileFormat, opts Options) ([]model.Record, error) {
	p, err := For(format)
	if err != nil {
		return nil, err
	}
	records, err := p.Parse(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	if err := checkRecords(records); err != nil {
		return nil, err
	}
	return records, nil
}

// ParseFile is Parse with the format taken from the file name.
func ParseFile(ctx context.Context, r io.Reader, fileName string, opts Options) ([]model.Record, error) {
	format, ok := model.FormatFromFileName(fileName)
	if !ok {
		return nil, exception.NewJobError(moduleName, exception.CodeUnsupportedFileType, fmt.Sprintf("unsupported file type: %s", fileName), nil)
	}
	return Parse(ctx, r, format, opts)
}

func checkRecords(records []model.Record) error {
	if len(records) == 0 {
		return exception.NewJobError(moduleName, exception.CodeUploadFileEmpty, "the uploaded file contains no records", nil)
	}
	for _, rec := range records {
		if isBlank(rec) {
			return exception.NewJobError(moduleName, exception.CodeFileHasEmptyUnit, fmt.Sprintf("record %d has no values", rec.Position), nil)
		}
	}
	return nil
}

func isBlank(rec model.Record) bool {
	for _, f := range rec.Fields {
		if strings.TrimSpace(f.Value) != "" {
			return false
		}
	}
	return true
}

func corrupt(message string, err error) error {
	return exception.NewJobError(moduleName, exception.CodeFileIsCorrupt, message, err)
}

// tabular builds records from a header row and the rows below it. Cells beyond
// the header are tolerated only when blank (a trailing delimiter); short rows
// leave the missing fields out. Blank lines are not records.
type tabular struct {
	header []string
	count  int
}

func newTabular(header []string) (*tabular, error) {
	names := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimPrefix(name, bom)
		}
		if name == "" {
			if trailingBlank(header[i:]) {
				names = names[:i]
				break
			}
			return nil, corrupt(fmt.Sprintf("header column %d has no name", i+1), nil)
		}
		if _, dup := seen[name]; dup {
			return nil, corrupt(fmt.Sprintf("header column %q is repeated", name), nil)
		}
		seen[name] = struct{}{}
		names[i] = name
	}
	if len(names) == 0 {
		return nil, corrupt("header row is empty", nil)
	}
	return &tabular{header: names}, nil
}

func (t *tabular) record(row []string) (model.Record, bool, error) {
	if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
		return model.Record{}, false, nil
	}
	if len(row) > len(t.header) && !trailingBlank(row[len(t.header):]) {
		return model.Record{}, false, corrupt(fmt.Sprintf("record %d has %d cells, header has %d", t.count+1, len(row), len(t.header)), nil)
	}
	t.count++
	n := len(row)
	if n > len(t.header) {
		n = len(t.header)
	}
	fields := make([]model.Field, n)
	for i := 0; i < n; i++ {
		fields[i] = model.Field{Name: t.header[i], Value: strings.TrimSpace(row[i])}
	}
	return model.Record{Position: t.count, Fields: fields}, true, nil
}

func trailingBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

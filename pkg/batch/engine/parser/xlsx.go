package parser

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// XLSXParser reads the first sheet of a workbook with the same header rules as CSV.
type XLSXParser struct{}

// Parse implements FileParser.
func (p *XLSXParser) Parse(ctx context.Context, r io.Reader, opts Options) ([]model.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, corrupt("failed to open workbook", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warnf("Failed to close workbook: %v", cerr)
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, corrupt(fmt.Sprintf("failed to read sheet %q", sheets[0]), err)
	}
	defer rows.Close()

	var (
		tab     *tabular
		records []model.Record
		line    int
	)
	for rows.Next() {
		line++
		if line <= opts.SkipLines {
			continue
		}
		cells, err := rows.Columns()
		if err != nil {
			return nil, corrupt(fmt.Sprintf("failed to read row %d", line), err)
		}
		if tab == nil {
			if trailingBlank(cells) {
				continue
			}
			if tab, err = newTabular(cells); err != nil {
				return nil, err
			}
			continue
		}
		if trailingBlank(cells) {
			continue
		}
		rec, ok, err := tab.record(cells)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
		if len(records)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Error(); err != nil {
		return nil, corrupt("failed to iterate rows", err)
	}
	return records, nil
}

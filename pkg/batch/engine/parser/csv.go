package parser

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
)

// CSVParser reads delimited text. The first line after SkipLines is the header.
type CSVParser struct{}

// Parse implements FileParser.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader, opts Options) ([]model.Record, error) {
	br := bufio.NewReader(r)
	if err := skipBOM(br); err != nil {
		return nil, corrupt("failed to read file", err)
	}
	for i := 0; i < opts.SkipLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, corrupt("failed to skip leading lines", err)
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = opts.delimiter()
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, corrupt("failed to read header row", err)
	}
	tab, err := newTabular(header)
	if err != nil {
		return nil, err
	}

	var records []model.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt(fmt.Sprintf("failed to read record %d", tab.count+1), err)
		}
		rec, ok, err := tab.record(row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		records = append(records, rec)
		if len(records)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return records, nil
}

func skipBOM(br *bufio.Reader) error {
	r, _, err := br.ReadRune()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	if r != '\ufeff' {
		return br.UnreadRune()
	}
	return nil
}

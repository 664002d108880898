package parser

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
)

// XMLParser reads a flat repeating-element document: every child of the root
// element is one record. Attributes and leaf elements become fields in document
// order; nested elements are flattened with a dot, e.g. "Address.City".
type XMLParser struct{}

type xmlFrame struct {
	path     string
	hasChild bool
	text     strings.Builder
}

// Parse implements FileParser. SkipLines does not apply to XML.
func (p *XMLParser) Parse(ctx context.Context, r io.Reader, _ Options) ([]model.Record, error) {
	dec := xml.NewDecoder(r)

	var (
		records []model.Record
		current *model.Record
		stack   []*xmlFrame
		depth   int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt("failed to decode XML", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
			case depth == 2:
				current = &model.Record{Position: len(records) + 1}
				addAttrs(current, "", t.Attr)
			default:
				path := t.Name.Local
				if n := len(stack); n > 0 {
					stack[n-1].hasChild = true
					path = stack[n-1].path + "." + path
				}
				stack = append(stack, &xmlFrame{path: path})
				addAttrs(current, path+".", t.Attr)
			}
		case xml.CharData:
			if n := len(stack); n > 0 {
				stack[n-1].text.Write(t)
			}
		case xml.EndElement:
			switch {
			case depth == 2:
				records = append(records, *current)
				current = nil
				if len(records)%ctxCheckEvery == 0 {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
				}
			case depth > 2:
				frame := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if !frame.hasChild {
					current.Fields = append(current.Fields, model.Field{
						Name:  frame.path,
						Value: strings.TrimSpace(frame.text.String()),
					})
				}
			}
			depth--
		}
	}
	if depth != 0 {
		return nil, corrupt("unexpected end of XML document", nil)
	}
	return records, nil
}

func addAttrs(rec *model.Record, prefix string, attrs []xml.Attr) {
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		rec.Fields = append(rec.Fields, model.Field{Name: prefix + a.Name.Local, Value: strings.TrimSpace(a.Value)})
	}
}

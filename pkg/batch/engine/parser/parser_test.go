package parser_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/engine/parser"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
)

func parseCSV(t *testing.T, content string, opts parser.Options) ([]model.Record, error) {
	t.Helper()
	return parser.Parse(context.Background(), strings.NewReader(content), model.FormatCSV, opts)
}

func TestCSV_SkipLinesHeaderAndRows(t *testing.T) {
	content := "\ufeffUnits export 2026\n id , name \n1,Acme\n\n2,\n3,\"Beta, Inc\"\n"
	records, err := parseCSV(t, content, parser.Options{SkipLines: 1})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, 1, records[0].Position)
	assert.Equal(t, []model.Field{{Name: "id", Value: "1"}, {Name: "name", Value: "Acme"}}, records[0].Fields)
	v, ok := records[1].Get("name")
	assert.True(t, ok)
	assert.Equal(t, "", v)
	v, _ = records[2].Get("name")
	assert.Equal(t, "Beta, Inc", v)
	assert.Equal(t, 3, records[2].Position)
}

func TestCSV_DelimiterAndShortRows(t *testing.T) {
	records, err := parseCSV(t, "id;name;taxRegId;\n7;Acme;\n8;Beta;T-8;\n", parser.Options{Delimiter: ';'})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[1].Len())
	_, ok := records[0].Get("taxRegId")
	assert.True(t, ok)
}

func TestCSV_Failures(t *testing.T) {
	cases := map[string]struct {
		content string
		opts    parser.Options
		want    error
	}{
		"empty file":         {"", parser.Options{}, parser.ErrEmptyUpload},
		"header only":        {"id,name\n", parser.Options{}, parser.ErrEmptyUpload},
		"skip beyond end":    {"id,name\n1,a\n", parser.Options{SkipLines: 5}, parser.ErrEmptyUpload},
		"row with no values": {"id,name\n1,Acme\n , \n", parser.Options{}, parser.ErrEmptyUnit},
		"extra cells":        {"id,name\n1,Acme,surplus\n", parser.Options{}, parser.ErrCorruptFile},
		"duplicate header":   {"id,id\n1,2\n", parser.Options{}, parser.ErrCorruptFile},
		"unnamed header":     {"id,,name\n1,2,3\n", parser.Options{}, parser.ErrCorruptFile},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			records, err := parseCSV(t, tc.content, tc.opts)
			require.Error(t, err)
			assert.Nil(t, records)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.False(t, exception.IsSkippable(err))
		})
	}
}

func TestParseFile_UnsupportedExtension(t *testing.T) {
	_, err := parser.ParseFile(context.Background(), strings.NewReader("{}"), "units.json", parser.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrUnsupportedFormat))
	assert.Equal(t, exception.CodeUnsupportedFileType, exception.CodeOf(err))
}

func TestXML_FlattensNestedElements(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<units xmlns="urn:statreg">
  <unit id="1">
    <name>Acme</name>
    <Address>
      <City>Bishkek</City>
      <Street kind="main">Chui 1</Street>
    </Address>
  </unit>
  <unit id="2"><name> Beta </name></unit>
</units>`
	records, err := parser.ParseFile(context.Background(), strings.NewReader(doc), "units.XML", parser.Options{SkipLines: 3})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []model.Field{
		{Name: "id", Value: "1"},
		{Name: "name", Value: "Acme"},
		{Name: "Address.City", Value: "Bishkek"},
		{Name: "Address.Street.kind", Value: "main"},
		{Name: "Address.Street", Value: "Chui 1"},
	}, records[0].Fields)
	v, _ := records[1].Get("name")
	assert.Equal(t, "Beta", v)
	assert.Equal(t, 2, records[1].Position)
}

func TestXML_Failures(t *testing.T) {
	_, err := parser.Parse(context.Background(), strings.NewReader("<units><unit><name>Acme</unit></units>"), model.FormatXML, parser.Options{})
	assert.True(t, errors.Is(err, parser.ErrCorruptFile), "got %v", err)

	_, err = parser.Parse(context.Background(), strings.NewReader("<units><unit><name>Acme</name></unit>"), model.FormatXML, parser.Options{})
	assert.True(t, errors.Is(err, parser.ErrCorruptFile), "got %v", err)

	_, err = parser.Parse(context.Background(), strings.NewReader("<units/>"), model.FormatXML, parser.Options{})
	assert.True(t, errors.Is(err, parser.ErrEmptyUpload), "got %v", err)

	_, err = parser.Parse(context.Background(), strings.NewReader("<units><unit/></units>"), model.FormatXML, parser.Options{})
	assert.True(t, errors.Is(err, parser.ErrEmptyUnit), "got %v", err)
}

func TestXLSX_FirstSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Register extract"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"id", "name", "employees"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"1", "Acme", 12}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]interface{}{"2", "Beta"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := parser.Parse(context.Background(), buf, model.FormatXLSX, parser.Options{SkipLines: 1})
	require.NoError(t, err)
	require.Len(t, records, 2)
	v, _ := records[0].Get("employees")
	assert.Equal(t, "12", v)
	assert.Equal(t, 2, records[1].Len())

	_, err = parser.Parse(context.Background(), strings.NewReader("not a workbook"), model.FormatXLSX, parser.Options{})
	assert.True(t, errors.Is(err, parser.ErrCorruptFile), "got %v", err)
}

func TestParseHonoursCancellation(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 0; i < 1000; i++ {
		b.WriteString("1,Acme\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := parser.Parse(ctx, strings.NewReader(b.String()), model.FormatCSV, parser.Options{})
	assert.True(t, errors.Is(err, context.Canceled))
}

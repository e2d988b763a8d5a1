// Package reportwriter is the minimal store.Writer used by the download
// route. Per-format exporters (Excel, PDF, PPTX, zip bundles) are a named
// Non-goal of the engine; this package implements only the two formats
// that need no third-party renderer — json (the canonical report
// structure) and csv (the summary table) — and returns an "unsupported
// format" error for anything else, which the HTTP layer maps to 415.
package reportwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ncrc/justdata/pkg/core/report"
)

// Writer implements store.Writer for the formats this engine actually
// authors itself.
type Writer struct{}

func New() *Writer { return &Writer{} }

func (Writer) Write(rep *report.Report, format string) (data []byte, mime string, filename string, err error) {
	base := rep.Metadata.JobID
	switch format {
	case "json":
		data, err = json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return nil, "", "", err
		}
		return data, "application/json", base + ".json", nil
	case "csv":
		data, err = writeSummaryCSV(rep)
		if err != nil {
			return nil, "", "", err
		}
		return data, "text/csv", base + "-summary.csv", nil
	default:
		return nil, "", "", fmt.Errorf("reportwriter: unsupported format %q", format)
	}
}

func writeSummaryCSV(rep *report.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"countyCode", "year", "totalCount", "totalAmount"}); err != nil {
		return nil, err
	}
	for _, row := range rep.Summary {
		if err := w.Write([]string{
			row.CountyCode,
			strconv.Itoa(row.Year),
			strconv.FormatInt(row.TotalCount, 10),
			strconv.FormatInt(row.TotalAmount, 10),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

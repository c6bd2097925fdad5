package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const DateColumn = "Date"

// Row is one chart data point: a formatted date plus numeric columns in the
// order they were first written.
type Row struct {
	Date    string
	columns []string
	values  map[string]float64
}

func NewRow(date string) *Row {
	return &Row{Date: date, values: make(map[string]float64)}
}

// Set writes a column, appending it to the column order on first use.
func (r *Row) Set(column string, v float64) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = v
}

// Add accumulates into a column.
func (r *Row) Add(column string, v float64) {
	r.Set(column, r.values[column]+v)
}

// MarshalJSON emits {"Date": ..., <columns in order>}.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, DateColumn, r.Date); err != nil {
		return nil, err
	}
	for _, c := range r.columns {
		buf.WriteByte(',')
		if err := writeField(&buf, c, r.values[c]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, v any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(val)
	return nil
}

func (r *Row) String() string {
	var b strings.Builder
	b.WriteString(r.Date)
	for _, c := range r.columns {
		fmt.Fprintf(&b, " %s=%g", c, r.values[c])
	}
	return b.String()
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"20060102",
}

// FormatDate renders an ordinal day, abbreviated month and year, e.g.
// "1st Jan 2024". Keys that do not parse are returned unchanged.
func FormatDate(key string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, key); err == nil {
			return humanize.Ordinal(t.Day()) + " " + t.Format("Jan 2006")
		}
	}
	return key
}

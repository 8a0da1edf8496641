package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PreviewRows is the number of data rows returned by Preview.
const PreviewRows = 10

// Row is one parsed CSV record keyed by header name. It marshals to a JSON
// object whose keys keep the column order of the file.
type Row struct {
	columns []string
	values  map[string]string
}

func NewRow() Row {
	return Row{values: make(map[string]string)}
}

func (r *Row) Set(column, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

func (r Row) Get(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

func (r Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

func (r Row) Len() int {
	return len(r.columns)
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseCSV reads a header record followed by up to limit data records. A limit
// of zero or less reads the whole input. Short records omit their missing
// columns; surplus cells are keyed "_<index>".
func ParseCSV(r io.Reader, limit int) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows := make([]Row, 0)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return rows, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	for limit <= 0 || len(rows) < limit {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		row := NewRow()
		for i, cell := range record {
			if i < len(header) {
				row.Set(header[i], cell)
				continue
			}
			row.Set("_"+strconv.Itoa(i), cell)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

package render

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Table is a rectangular grid of already-formatted cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// TableFrom converts result data into a Table, keeping key order as sent.
// It understands pandas' column-oriented dict ({"col": {"idx": v}}), column
// lists ({"col": [v]}), and record lists ([{"col": v}]). Anything else
// becomes a one-cell table holding the JSON text.
func TableFrom(raw json.RawMessage) *Table {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 {
		switch raw[0] {
		case '{':
			if t, ok := fromColumns(raw); ok {
				return t
			}
		case '[':
			if t, ok := fromRecords(raw); ok {
				return t
			}
		}
	}
	var buf bytes.Buffer
	if json.Indent(&buf, raw, "", "  ") != nil {
		buf.Reset()
		buf.Write(raw)
	}
	return &Table{Columns: []string{"value"}, Rows: [][]string{{buf.String()}}}
}

type object struct {
	keys []string
	vals map[string]json.RawMessage
}

// decodeObject reads a JSON object preserving key order.
func decodeObject(raw json.RawMessage) (*object, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}
	obj := &object{vals: map[string]json.RawMessage{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		if _, dup := obj.vals[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.vals[key] = v
	}
	return obj, true
}

func decodeArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func fromColumns(raw json.RawMessage) (*Table, bool) {
	top, ok := decodeObject(raw)
	if !ok || len(top.keys) == 0 {
		return nil, false
	}
	byIndex := make(map[string]*object, len(top.keys))
	byPos := make(map[string][]json.RawMessage, len(top.keys))
	var index []string
	seen := map[string]bool{}
	addIndex := func(k string) {
		if !seen[k] {
			seen[k] = true
			index = append(index, k)
		}
	}
	for _, c := range top.keys {
		v := bytes.TrimSpace(top.vals[c])
		if len(v) == 0 {
			return nil, false
		}
		switch v[0] {
		case '{':
			col, ok := decodeObject(v)
			if !ok {
				return nil, false
			}
			byIndex[c] = col
			for _, k := range col.keys {
				addIndex(k)
			}
		case '[':
			col, ok := decodeArray(v)
			if !ok {
				return nil, false
			}
			byPos[c] = col
			for i := range col {
				addIndex(strconv.Itoa(i))
			}
		default:
			return nil, false
		}
	}

	t := &Table{Columns: append([]string{""}, top.keys...)}
	for _, k := range index {
		row := []string{k}
		for _, c := range top.keys {
			var cell json.RawMessage
			if col, ok := byIndex[c]; ok {
				cell = col.vals[k]
			} else if i, err := strconv.Atoi(k); err == nil && i < len(byPos[c]) {
				cell = byPos[c][i]
			}
			row = append(row, Cell(cell))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, true
}

func fromRecords(raw json.RawMessage) (*Table, bool) {
	items, ok := decodeArray(raw)
	if !ok || len(items) == 0 {
		return nil, false
	}
	recs := make([]*object, 0, len(items))
	seen := map[string]bool{}
	var cols []string
	for _, it := range items {
		rec, ok := decodeObject(it)
		if !ok {
			return nil, false
		}
		recs = append(recs, rec)
		for _, k := range rec.keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	t := &Table{Columns: cols}
	for _, rec := range recs {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = Cell(rec.vals[c])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, true
}

// Cell formats one JSON value for display. Numbers keep their wire text.
func Cell(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

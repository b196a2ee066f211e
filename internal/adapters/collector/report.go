package collector

import (
	"encoding/json"
	"fmt"

	"github.com/target/mmk-jobs/internal/domain/model"
)

// Report is the raw report envelope returned by the spots endpoint.
type Report struct {
	Header json.RawMessage `json:"header"`
	Body   json.RawMessage `json:"body"`
}

var kpiColumns = []string{"amr-perc", "reach (%)", "reach-avg", "share", "ats-avg", "atv-avg"}

// FlattenReport converts a report into rows. It accepts three body shapes: a list of
// objects (returned as-is), an object keyed by channel, and a list of positional rows
// aligned with a header list. Anything else yields no rows.
func FlattenReport(rep Report) []model.Row {
	body := trimNull(rep.Body)
	if len(body) == 0 {
		return nil
	}

	switch body[0] {
	case '{':
		return flattenKeyed(body)
	case '[':
		return flattenList(trimNull(rep.Header), body)
	default:
		return nil
	}
}

func flattenKeyed(body json.RawMessage) []model.Row {
	var keyed map[string]any
	if err := json.Unmarshal(body, &keyed); err != nil {
		return nil
	}
	rows := make([]model.Row, 0, len(keyed))
	for key, value := range keyed {
		switch v := value.(type) {
		case map[string]any:
			row := model.Row(v)
			_, upper := row["Channel"]
			_, lower := row["channel"]
			if !upper && !lower {
				row["Channel"] = key
			}
			rows = append(rows, row)
		case []any:
			if len(v) == 0 {
				continue
			}
			row := model.Row{"Channel": key}
			for i, item := range v {
				if i < len(kpiColumns) {
					row[kpiColumns[i]] = item
				} else {
					row[fmt.Sprintf("kpi_%d", i)] = item
				}
			}
			rows = append(rows, row)
		default:
			rows = append(rows, model.Row{"Channel": key, "Value": v})
		}
	}
	return rows
}

func flattenList(header, body json.RawMessage) []model.Row {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil || len(items) == 0 {
		return nil
	}

	var columns []string
	if len(header) > 0 {
		// A header object carries report metadata, not a column schema.
		if header[0] != '[' {
			return nil
		}
		var cols []any
		if err := json.Unmarshal(header, &cols); err != nil {
			return nil
		}
		columns = columnNames(cols)
	}

	rows := make([]model.Row, 0, len(items))
	for _, item := range items {
		item = trimNull(item)
		if len(item) == 0 {
			continue
		}
		if item[0] == '{' {
			var row model.Row
			if err := json.Unmarshal(item, &row); err == nil {
				rows = append(rows, row)
			}
			continue
		}
		var values []any
		if err := json.Unmarshal(item, &values); err != nil {
			continue
		}
		row := make(model.Row, len(values))
		for i, v := range values {
			if i >= len(columns) {
				break
			}
			row[columns[i]] = v
		}
		rows = append(rows, row)
	}
	return rows
}

func columnNames(cols []any) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = fmt.Sprintf("col_%d", i)
		switch c := col.(type) {
		case string:
			names[i] = c
		case map[string]any:
			for _, k := range []string{"key", "item", "caption", "name"} {
				if s, ok := c[k].(string); ok && s != "" {
					names[i] = s
					break
				}
			}
		}
	}
	return names
}

func trimNull(raw json.RawMessage) json.RawMessage {
	for len(raw) > 0 && isSpace(raw[0]) {
		raw = raw[1:]
	}
	if string(raw) == "null" {
		return nil
	}
	return raw
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}

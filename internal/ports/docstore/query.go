package docstore

import (
	"sort"
	"time"
)

// Campos especiales reconocidos por Query.
const (
	FieldID         = "__id"
	FieldCreateTime = "__createTime"
)

type Filter struct {
	Field string
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// Cursor posiciona una página: los valores van alineados con Query.OrderBy.
type Cursor struct {
	Values []any  `json:"v"`
	ID     string `json:"id"`
}

type Query struct {
	Where      []Filter
	OrderBy    []Order
	Limit      int
	StartAfter *Cursor
}

// FieldValue lee un campo del documento, incluyendo los campos especiales.
func FieldValue(d Document, field string) any {
	switch field {
	case FieldID:
		return d.ID
	case FieldCreateTime:
		if d.CreateTime.IsZero() {
			return nil
		}
		return d.CreateTime.UnixNano()
	}
	return d.Fields[field]
}

// CursorOf arma el cursor que apunta justo después de d.
func CursorOf(d Document, orderBy []Order) *Cursor {
	vals := make([]any, 0, len(orderBy))
	for _, o := range orderBy {
		vals = append(vals, FieldValue(d, o.Field))
	}
	return &Cursor{Values: vals, ID: d.ID}
}

// Evaluate aplica filtros, orden, cursor y límite sobre docs.
// Los adapters que no pueden resolver la query en el motor la delegan acá,
// así el orden es idéntico en memory, badger y postgres.
func Evaluate(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if matches(d, q.Where) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return compareDocs(out[i], out[j], q.OrderBy) < 0
	})

	if q.StartAfter != nil {
		start := len(out)
		for i, d := range out {
			if compareToCursor(d, q.StartAfter, q.OrderBy) > 0 {
				start = i
				break
			}
		}
		out = out[start:]
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(d Document, where []Filter) bool {
	for _, f := range where {
		if CompareValues(FieldValue(d, f.Field), f.Value) != 0 {
			return false
		}
	}
	return true
}

func compareDocs(a, b Document, orderBy []Order) int {
	for _, o := range orderBy {
		c := CompareValues(FieldValue(a, o.Field), FieldValue(b, o.Field))
		if o.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return compareStrings(a.ID, b.ID)
}

func compareToCursor(d Document, c *Cursor, orderBy []Order) int {
	for i, o := range orderBy {
		var cv any
		if i < len(c.Values) {
			cv = c.Values[i]
		}
		r := CompareValues(FieldValue(d, o.Field), cv)
		if o.Desc {
			r = -r
		}
		if r != 0 {
			return r
		}
	}
	return compareStrings(d.ID, c.ID)
}

// CompareValues ordena null < bool < número < string < otros.
func CompareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNull:
		return 0
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return compareStrings(toString(a), toString(b))
	}
	return 0
}

const (
	rankNull = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case int, int32, int64, float32, float64:
		return rankNumber
	case string, time.Time:
		return rankString
	default:
		return rankOther
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

func compareNumbers(a, b any) int {
	ai, aInt := toInt64(a)
	bi, bInt := toInt64(b)
	if aInt && bInt {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}

	af, bf := toFloat(a), toFloat(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	}
	return 0, false
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case float64:
		return t
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

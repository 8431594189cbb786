package postgres

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"pet-diary/internal/ports/docstore"
)

// selectSQL arma el SELECT de List/ListGroup. Con pushed == true orden, cursor
// y LIMIT ya van en el SQL; si algo no se puede expresar igual que
// docstore.CompareValues se trae la colección filtrada y decide Evaluate.
//
// Cada campo de orden se compara por rango de tipo (null < bool < number <
// string < otro) y después por el valor tipado; los strings con COLLATE "C"
// para que el orden sea por bytes como en Go.
func selectSQL(column, value string, q docstore.Query) (query string, args []any, pushed bool, err error) {
	b := &sqlBuilder{}
	var sb strings.Builder
	sb.WriteString(`SELECT path, fields, created_at, updated_at FROM documents WHERE ` + column + ` = ` + b.arg(value))

	contains := map[string]any{}
	pushed = column == "parent"
	for _, f := range q.Where {
		if f.Field == docstore.FieldID || f.Field == docstore.FieldCreateTime {
			// filtro que resuelve Evaluate: el LIMIT no puede ir al motor
			pushed = false
			continue
		}
		if !scalar(f.Value) {
			pushed = false
		}
		contains[f.Field] = f.Value
	}
	if len(contains) > 0 {
		raw, err := docstore.MarshalFields(contains)
		if err != nil {
			return "", nil, false, err
		}
		sb.WriteString(` AND fields @> ` + b.arg(string(raw)) + `::jsonb`)
	}

	for _, o := range q.OrderBy {
		if o.Field == docstore.FieldID {
			pushed = false
		}
	}
	if !pushed {
		return sb.String(), b.args, false, nil
	}

	base, baseArgs := sb.String(), len(b.args)
	keys := make([]orderKey, 0, len(q.OrderBy))
	for _, o := range q.OrderBy {
		keys = append(keys, b.key(o))
	}

	if c := q.StartAfter; c != nil {
		cond, ok := b.after(keys, c, value)
		if !ok {
			return base, b.args[:baseArgs], false, nil
		}
		sb.WriteString(` AND (` + cond + `)`)
	}

	sb.WriteString(` ORDER BY `)
	for _, k := range keys {
		for _, e := range k.order() {
			sb.WriteString(e + ", ")
		}
	}
	sb.WriteString(`path COLLATE "C"`)

	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(` LIMIT %d`, q.Limit))
	}
	return sb.String(), b.args, true, nil
}

type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// orderKey son las expresiones SQL de un campo de orden.
type orderKey struct {
	desc      bool
	createdAt bool

	rank    string
	boolKey string
	numKey  string
	strKey  string
}

func (b *sqlBuilder) key(o docstore.Order) orderKey {
	if o.Field == docstore.FieldCreateTime {
		return orderKey{desc: o.Desc, createdAt: true}
	}
	j := `(fields -> ` + b.arg(o.Field) + `::text)`
	typ := `jsonb_typeof(` + j + `)`
	return orderKey{
		desc:    o.Desc,
		rank:    `(CASE COALESCE(` + typ + `, 'null') WHEN 'null' THEN 0 WHEN 'boolean' THEN 1 WHEN 'number' THEN 2 WHEN 'string' THEN 3 ELSE 4 END)`,
		boolKey: `(CASE WHEN ` + typ + ` = 'boolean' THEN ` + j + `::boolean END)`,
		numKey:  `(CASE WHEN ` + typ + ` = 'number' THEN ` + j + `::float8 END)`,
		strKey:  `((CASE WHEN ` + typ + ` = 'string' THEN ` + j + ` #>> '{}' END) COLLATE "C")`,
	}
}

func (k orderKey) dir() string {
	if k.desc {
		return " DESC"
	}
	return " ASC"
}

func (k orderKey) order() []string {
	if k.createdAt {
		return []string{"created_at" + k.dir()}
	}
	return []string{k.rank + k.dir(), k.boolKey + k.dir(), k.numKey + k.dir(), k.strKey + k.dir()}
}

// after arma "la fila va después del cursor": comparación lexicográfica sobre
// los campos de orden y, en empate, por id (path dentro de la colección).
func (b *sqlBuilder) after(keys []orderKey, c *docstore.Cursor, collection string) (string, bool) {
	var ors []string
	var eqs []string
	for i, k := range keys {
		var v any
		if i < len(c.Values) {
			v = c.Values[i]
		}
		op := ">"
		if k.desc {
			op = "<"
		}
		gt, eq, ok := b.compare(k, v, op)
		if !ok {
			return "", false
		}
		ors = append(ors, join(append(slices.Clone(eqs), gt)))
		eqs = append(eqs, eq)
	}
	tie := `path COLLATE "C" > ` + b.arg(docstore.Join(collection, c.ID)) + `::text`
	ors = append(ors, join(append(slices.Clone(eqs), tie)))
	return strings.Join(ors, " OR "), true
}

// compare devuelve "campo op v" y "campo = v" con la semántica de CompareValues.
func (b *sqlBuilder) compare(k orderKey, v any, op string) (gt, eq string, ok bool) {
	if k.createdAt {
		nanos, isNum := toNanos(v)
		switch {
		case v == nil:
			// created_at nunca es null: toda fila es mayor
			if op == ">" {
				return "TRUE", "FALSE", true
			}
			return "FALSE", "FALSE", true
		case !isNum:
			// el cursor tiene un rango mayor que number
			if rankOf(v) > 2 {
				if op == ">" {
					return "FALSE", "FALSE", true
				}
				return "TRUE", "FALSE", true
			}
			return "", "", false
		}
		p := b.arg(time.Unix(0, nanos).UTC())
		return "created_at " + op + " " + p + "::timestamptz", "created_at = " + p + "::timestamptz", true
	}

	r := rankOf(v)
	rank := fmt.Sprintf("%d", r)
	var typed, p string
	switch r {
	case 0:
		return "(" + k.rank + " " + op + " 0)", "(" + k.rank + " = 0)", true
	case 1:
		typed, p = k.boolKey, b.arg(v)+"::boolean"
	case 2:
		f := toFloat(v)
		typed, p = k.numKey, b.arg(f)+"::float8"
	case 3:
		typed, p = k.strKey, b.arg(stringOf(v))+"::text"
	default:
		return "", "", false
	}
	gt = "(" + k.rank + " " + op + " " + rank + " OR (" + k.rank + " = " + rank + " AND " + typed + " " + op + " " + p + "))"
	eq = "(" + k.rank + " = " + rank + " AND " + typed + " = " + p + ")"
	return gt, eq, true
}

func join(conds []string) string {
	return "(" + strings.Join(conds, " AND ") + ")"
}

func scalar(v any) bool {
	return rankOf(v) < 4
}

// rankOf replica el rango de docstore.CompareValues.
func rankOf(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case string, time.Time:
		return 3
	}
	return 4
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

func toNanos(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	}
	return 0, false
}

func stringOf(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	s, _ := v.(string)
	return s
}

package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/query/render"
)

// Execute runs SQL produced by the sqlite renderer. Rows are keyed by output
// column name; TEXT values come back as strings and integers as int64.
func (s *Store) Execute(ctx context.Context, q *render.RenderedQuery) ([]eav.Row, error) {
	if q.Backend != render.BackendSQLite {
		return nil, apperr.Errorf(apperr.KindInvalid, "sqlitestore: execute", "query rendered for %s", q.Backend)
	}
	if unbound := q.Unbound(); len(unbound) > 0 {
		return nil, apperr.Errorf(apperr.KindInvalid, "sqlitestore: execute", "unbound parameters: $%s", strings.Join(unbound, ", $"))
	}

	rows, err := s.q.QueryContext(ctx, q.Text, q.Args()...)
	if err != nil {
		return nil, classify("sqlitestore: execute", err)
	}
	defer rows.Close()

	names := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		names[i] = c.Name
	}
	got, err := rows.Columns()
	if err != nil {
		return nil, classify("sqlitestore: execute", err)
	}
	if len(got) != len(names) {
		return nil, fmt.Errorf("sqlitestore: execute: %d columns, want %d", len(got), len(names))
	}

	out := []eav.Row{}
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify("sqlitestore: execute", err)
		}
		row := make(eav.Row, len(names))
		for i, name := range names {
			if b, ok := vals[i].([]byte); ok {
				vals[i] = string(b)
			}
			row[name] = vals[i]
		}
		out = append(out, row)
	}
	return out, classify("sqlitestore: execute", rows.Err())
}

func scanHits(rows *sql.Rows) ([]eav.SearchHit, error) {
	defer rows.Close()
	var out []eav.SearchHit
	for rows.Next() {
		var h eav.SearchHit
		if err := rows.Scan(&h.EntityID, &h.Path, &h.Title, &h.Snippet, &h.Position); err != nil {
			return nil, classify("sqlitestore: search", err)
		}
		out = append(out, h)
	}
	return out, classify("sqlitestore: search", rows.Err())
}

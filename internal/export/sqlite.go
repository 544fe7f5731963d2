package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// SQL layout: "panel" holds one row per merchant-month with the wide columns,
// "panel_values" holds every other numeric cell in long form keyed by row_id.
// Engineered panels exceed SQLite's 2000-column table limit, hence the split.
const (
	PanelTable  = "panel"
	ValuesTable = "panel_values"
)

func sqlType(k panel.Kind) string {
	switch k {
	case panel.KindFloat:
		return "REAL"
	case panel.KindInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// WriteSQLite writes t into a fresh SQLite database at path. Columns named in
// wide, plus every text and month column, go to the panel table; remaining
// numeric columns go to panel_values with missing cells omitted.
func WriteSQLite(ctx context.Context, path string, t *panel.Table, wide []string) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sqlite %s: %w", path, cerr)
		}
	}()

	isWide := make(map[string]bool, len(wide))
	for _, w := range wide {
		isWide[w] = true
	}
	var wideCols, longCols []*panel.Column
	for _, c := range t.Columns() {
		if isWide[c.Name] || !c.Kind.Numeric() {
			wideCols = append(wideCols, c)
		} else {
			longCols = append(longCols, c)
		}
	}

	defs := []string{"row_id INTEGER PRIMARY KEY"}
	names := []string{"row_id"}
	marks := []string{"?"}
	for _, c := range wideCols {
		defs = append(defs, quoteIdent(c.Name)+" "+sqlType(c.Kind))
		names = append(names, quoteIdent(c.Name))
		marks = append(marks, "?")
	}
	schema := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", PanelTable, strings.Join(defs, ", ")),
		fmt.Sprintf("CREATE TABLE %s (row_id INTEGER NOT NULL, name TEXT NOT NULL, value REAL NOT NULL)", ValuesTable),
	}
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	rowStmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		PanelTable, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer rowStmt.Close()
	valStmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (row_id, name, value) VALUES (?, ?, ?)", ValuesTable))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer valStmt.Close()

	args := make([]any, len(names))
	for i := 0; i < t.Rows(); i++ {
		args[0] = i
		for j, c := range wideCols {
			args[j+1] = sqlValue(c, i)
		}
		if _, err = rowStmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
		for _, c := range longCols {
			v, ok := c.FloatAt(i)
			if !ok {
				continue
			}
			if _, err = valStmt.ExecContext(ctx, i, c.Name, v); err != nil {
				return fmt.Errorf("insert %s row %d: %w", c.Name, i, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	q := fmt.Sprintf("CREATE INDEX idx_%s_name ON %s (name, row_id)", ValuesTable, ValuesTable)
	if _, err = db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func sqlValue(c *panel.Column, i int) any {
	if !c.IsValid(i) {
		return nil
	}
	switch c.Kind {
	case panel.KindFloat:
		return c.Float[i]
	case panel.KindInt:
		return c.Int[i]
	default:
		return c.TextAt(i)
	}
}

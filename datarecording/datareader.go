package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// A Filter narrows and orders the rows read from a table.
type Filter struct {
	// Where is a condition without the WHERE keyword, with ? placeholders
	// for Args. For example "PID = ? AND Outcome = ?".
	Where string
	Args  []any

	// OrderBy is a column list without the ORDER BY keywords.
	OrderBy string

	// Limit of 0 means no limit.
	Limit  int
	Offset int
}

func (f Filter) clause() string {
	var b strings.Builder

	if f.Where != "" {
		b.WriteString(" WHERE " + f.Where)
	}

	if f.OrderBy != "" {
		b.WriteString(" ORDER BY " + f.OrderBy)
	}

	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	return b.String()
}

// A Reader reads back a recording written by a DataRecorder.
type Reader struct {
	db *sql.DB
}

// NewReader opens the recording at path. The .sqlite3 suffix that New adds
// may be left out.
func NewReader(path string) (*Reader, error) {
	if !strings.HasSuffix(path, ".sqlite3") {
		path += ".sqlite3"
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening recording %s: %w", path, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a Reader over an open database.
func NewReaderWithDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Tables lists the tables of the recording, by name.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// Count returns the number of rows of the table that match the filter.
// Ordering and paging are ignored.
func (r *Reader) Count(ctx context.Context, table string, f Filter) (int, error) {
	query := "SELECT COUNT(*) FROM " + table
	if f.Where != "" {
		query += " WHERE " + f.Where
	}

	var n int
	err := r.db.QueryRowContext(ctx, query, f.Args...).Scan(&n)

	return n, err
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Query reads the rows of a table into values of T. Columns are matched to
// the fields of T by name, as CreateTable names them. Columns without a
// field are skipped.
func Query[T any](
	ctx context.Context,
	r *Reader,
	table string,
	f Filter,
) ([]T, error) {
	structType := reflect.TypeOf((*T)(nil)).Elem()
	if structType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot read table %s into %s",
			table, structType)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM "+table+f.clause(), f.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []T
	for rows.Next() {
		var v T
		if err := rows.Scan(scanTargets(&v, columns)...); err != nil {
			return nil, fmt.Errorf("reading %s: %w", table, err)
		}

		results = append(results, v)
	}

	return results, rows.Err()
}

func scanTargets(ptr any, columns []string) []any {
	value := reflect.ValueOf(ptr).Elem()
	targets := make([]any, len(columns))

	for i, column := range columns {
		field := value.FieldByName(column)
		if field.IsValid() && field.CanSet() {
			targets[i] = field.Addr().Interface()
			continue
		}

		var skipped any
		targets[i] = &skipped
	}

	return targets
}

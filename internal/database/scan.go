package database

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// sqlQueryer is satisfied by both *sql.DB and *sql.Tx.
type sqlQueryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// executor implements Executor over any sqlQueryer. SQLiteDB, MySQLDB and
// open transactions all delegate here, so queries behave identically inside
// and outside a transaction.
type executor struct {
	q sqlQueryer
}

// Select executes query and scans all rows into dest (pointer to a slice of structs).
func (e executor) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, dest)
}

// Get executes query and scans a single row into dest.
func (e executor) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return scanCurrentRow(rows, dest)
}

// Exec executes a statement that returns no rows.
func (e executor) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := e.q.ExecContext(ctx, query, args...)
	return err
}

// Insert inserts a struct into table using its `db:` tags.
// Returns the last inserted row ID.
func (e executor) Insert(ctx context.Context, table string, record interface{}) (int64, error) {
	cols, placeholders, vals := structToInsert(record)
	// Internal DB helper: table/column names come from trusted application code, values remain parameterized.
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	res, err := e.q.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return res.LastInsertId()
}

// Update updates rows in table matching where clause.
func (e executor) Update(ctx context.Context, table string, record interface{}, where string, args ...interface{}) error {
	cols, vals := structToUpdate(record)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	// Internal DB helper: callers provide trusted SQL fragments for table/where; data values are bound separately.
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
	_, err := e.q.ExecContext(ctx, query, append(vals, args...)...)
	return err
}

// runTx wraps fn in a transaction on db.
func runTx(ctx context.Context, db *sql.DB, fn func(tx Executor) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(executor{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- reflection helpers ---

// structToInsert extracts column names, placeholders and values from a struct
// using `db:` tags. Fields with db:"-" or zero-value id fields are skipped.
func structToInsert(record interface{}) (cols, placeholders []string, vals []interface{}) {
	v := reflect.ValueOf(record)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		// Skip zero-value "id" to let the DB auto-assign.
		if tag == "id" && v.Field(i).IsZero() {
			continue
		}
		cols = append(cols, tag)
		placeholders = append(placeholders, "?")
		vals = append(vals, v.Field(i).Interface())
	}
	return
}

// structToUpdate extracts column/value pairs (excluding id).
func structToUpdate(record interface{}) (cols []string, vals []interface{}) {
	v := reflect.ValueOf(record)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" || tag == "id" {
			continue
		}
		cols = append(cols, tag)
		vals = append(vals, v.Field(i).Interface())
	}
	return
}

// scanRows scans every row into dest, which must be a pointer to a slice of
// structs (or of struct pointers). Columns are matched to fields by `db:` tag;
// unmatched columns are discarded.
func scanRows(rows *sql.Rows, dest interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("dest must be a pointer to a slice, got %T", dest)
	}
	sliceVal := dv.Elem()
	elemType := sliceVal.Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	structType := elemType
	if isPtr {
		structType = elemType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("dest element must be a struct, got %s", structType)
	}

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	fieldIdx := fieldIndexByTag(structType)

	for rows.Next() {
		elem := reflect.New(structType)
		targets := scanTargets(elem.Elem(), cols, fieldIdx)
		if err := rows.Scan(targets...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		if isPtr {
			sliceVal.Set(reflect.Append(sliceVal, elem))
		} else {
			sliceVal.Set(reflect.Append(sliceVal, elem.Elem()))
		}
	}
	return rows.Err()
}

// scanCurrentRow scans the row the cursor is on into a struct pointer.
func scanCurrentRow(rows *sql.Rows, dest interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dest must be a pointer to a struct, got %T", dest)
	}
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	elem := dv.Elem()
	targets := scanTargets(elem, cols, fieldIndexByTag(elem.Type()))
	if err := rows.Scan(targets...); err != nil {
		return fmt.Errorf("scanning row: %w", err)
	}
	return nil
}

func fieldIndexByTag(t reflect.Type) map[string]int {
	idx := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag != "" && tag != "-" {
			idx[tag] = i
		}
	}
	return idx
}

// scanTargets builds the Scan argument list: pointers into the struct for
// matched columns, throwaways for the rest. Scanning into a pointer field
// (e.g. *time.Time) maps SQL NULL to nil.
func scanTargets(structVal reflect.Value, cols []string, fieldIdx map[string]int) []interface{} {
	targets := make([]interface{}, len(cols))
	for i, col := range cols {
		if fi, ok := fieldIdx[col]; ok {
			targets[i] = structVal.Field(fi).Addr().Interface()
		} else {
			targets[i] = new(interface{})
		}
	}
	return targets
}

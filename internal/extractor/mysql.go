package extractor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/CosmoTheDev/procwatch/models"
)

// systemSchemas are excluded from extraction; they hold server-shipped
// modules, never user-authored objects.
var systemSchemas = []string{"mysql", "information_schema", "performance_schema", "sys"}

// MySQL extracts programmable objects from MySQL / MariaDB targets via
// information_schema. Each call opens its own short-lived connection.
type MySQL struct {
	// ConnectTimeout bounds the TCP/handshake phase; the caller's context
	// bounds the whole call.
	ConnectTimeout time.Duration
}

// NewMySQL returns a MySQL extractor with the given connect timeout.
func NewMySQL(connectTimeout time.Duration) *MySQL {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	return &MySQL{ConnectTimeout: connectTimeout}
}

func (e *MySQL) open(conn models.ConnectionInfo) (*sql.DB, error) {
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&timeout=%ds",
		conn.User, conn.Password, conn.Host, port, conn.Database,
		int(e.ConnectTimeout.Seconds()))
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection to %s: %w", conn.Host, err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(2 * time.Minute)
	return db, nil
}

// TestConnection pings the target and reports server and database names.
func (e *MySQL) TestConnection(ctx context.Context, conn models.ConnectionInfo) (string, error) {
	db, err := e.open(conn)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var hostname, database string
	row := db.QueryRowContext(ctx, `SELECT @@hostname, DATABASE()`)
	if err := row.Scan(&hostname, &database); err != nil {
		return "", fmt.Errorf("connection test against %s: %w", conn.Host, err)
	}
	return fmt.Sprintf("server %s, database %s", hostname, database), nil
}

// ExtractAll reads procedures and functions from information_schema.routines
// and views from information_schema.views, excluding system schemas.
func (e *MySQL) ExtractAll(ctx context.Context, conn models.ConnectionInfo) ([]models.ProgrammableObject, error) {
	db, err := e.open(conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	objects, err := e.extractRoutines(ctx, db, "", "")
	if err != nil {
		return nil, err
	}
	views, err := e.extractViews(ctx, db, "", "")
	if err != nil {
		return nil, err
	}
	return append(objects, views...), nil
}

// ExtractSingle returns one routine or view by schema and name, nil if absent.
func (e *MySQL) ExtractSingle(ctx context.Context, conn models.ConnectionInfo, schema, name string) (*models.ProgrammableObject, error) {
	db, err := e.open(conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	routines, err := e.extractRoutines(ctx, db, schema, name)
	if err != nil {
		return nil, err
	}
	if len(routines) > 0 {
		return &routines[0], nil
	}
	views, err := e.extractViews(ctx, db, schema, name)
	if err != nil {
		return nil, err
	}
	if len(views) > 0 {
		return &views[0], nil
	}
	return nil, nil
}

func (e *MySQL) extractRoutines(ctx context.Context, db *sql.DB, schema, name string) ([]models.ProgrammableObject, error) {
	query := `SELECT routine_schema, routine_name, routine_type,
	       COALESCE(routine_definition, ''),
	       COALESCE(last_altered, created)
	FROM information_schema.routines
	WHERE routine_schema NOT IN (` + schemaPlaceholders() + `)`
	args := systemSchemaArgs()
	if schema != "" {
		query += ` AND routine_schema = ? AND routine_name = ?`
		args = append(args, schema, name)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading routine catalog: %w", err)
	}
	defer rows.Close()

	var out []models.ProgrammableObject
	for rows.Next() {
		var obj models.ProgrammableObject
		var routineType string
		var modified sql.NullTime
		if err := rows.Scan(&obj.Schema, &obj.Name, &routineType, &obj.Definition, &modified); err != nil {
			return nil, fmt.Errorf("scanning routine row: %w", err)
		}
		obj.Kind = kindForRoutine(routineType)
		if modified.Valid {
			obj.LastModified = modified.Time
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

func (e *MySQL) extractViews(ctx context.Context, db *sql.DB, schema, name string) ([]models.ProgrammableObject, error) {
	query := `SELECT v.table_schema, v.table_name,
	       COALESCE(v.view_definition, ''),
	       t.create_time
	FROM information_schema.views v
	LEFT JOIN information_schema.tables t
	       ON t.table_schema = v.table_schema AND t.table_name = v.table_name
	WHERE v.table_schema NOT IN (` + schemaPlaceholders() + `)`
	args := systemSchemaArgs()
	if schema != "" {
		query += ` AND v.table_schema = ? AND v.table_name = ?`
		args = append(args, schema, name)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading view catalog: %w", err)
	}
	defer rows.Close()

	var out []models.ProgrammableObject
	for rows.Next() {
		var obj models.ProgrammableObject
		var created sql.NullTime
		if err := rows.Scan(&obj.Schema, &obj.Name, &obj.Definition, &created); err != nil {
			return nil, fmt.Errorf("scanning view row: %w", err)
		}
		obj.Kind = models.KindView
		if created.Valid {
			obj.LastModified = created.Time
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

// kindForRoutine maps information_schema routine types to short kind codes.
func kindForRoutine(routineType string) string {
	if strings.EqualFold(routineType, "PROCEDURE") {
		return models.KindProcedure
	}
	return models.KindScalarFunction
}

func schemaPlaceholders() string {
	return strings.TrimSuffix(strings.Repeat("?, ", len(systemSchemas)), ", ")
}

func systemSchemaArgs() []interface{} {
	args := make([]interface{}, len(systemSchemas))
	for i, s := range systemSchemas {
		args[i] = s
	}
	return args
}

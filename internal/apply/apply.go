// Package apply executes change scripts against a target database. Scripts
// are split on GO batch separators and each batch runs as its own statement.
package apply

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/CosmoTheDev/procwatch/models"
)

// goSeparator matches a batch separator line: GO alone on a line, optionally
// followed by a repeat count (the count is not honoured; the batch runs once).
var goSeparator = regexp.MustCompile(`(?im)^\s*GO(?:\s+\d+)?\s*$`)

// BatchResult records the outcome of one executed batch.
type BatchResult struct {
	Index        int     `json:"index"`
	RowsAffected int64   `json:"rows_affected"`
	DurationMS   float64 `json:"duration_ms"`
	Error        string  `json:"error,omitempty"`
}

// Result is the outcome of one script application.
type Result struct {
	Batches []BatchResult `json:"batches"`
	Applied int           `json:"applied"`
	Failed  int           `json:"failed"`
}

// SplitBatches splits a script on GO separator lines and drops empty batches.
func SplitBatches(script string) []string {
	var batches []string
	for _, part := range goSeparator.Split(script, -1) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			batches = append(batches, trimmed)
		}
	}
	return batches
}

// Script runs every batch of script against the target in order, stopping at
// the first failing batch. Batches before the failure stay applied; the
// script is not transactional across batches.
func Script(ctx context.Context, conn models.ConnectionInfo, script string) (*Result, error) {
	batches := SplitBatches(script)
	if len(batches) == 0 {
		return nil, fmt.Errorf("script contains no statements")
	}

	db, err := open(conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", conn.Host, err)
	}

	result := &Result{}
	for i, batch := range batches {
		start := time.Now()
		br := BatchResult{Index: i + 1}
		res, execErr := db.ExecContext(ctx, batch)
		br.DurationMS = float64(time.Since(start).Microseconds()) / 1000
		if execErr != nil {
			br.Error = execErr.Error()
			result.Batches = append(result.Batches, br)
			result.Failed++
			slog.Warn("Script batch failed", "batch", br.Index, "error", execErr)
			return result, fmt.Errorf("batch %d of %d: %w", br.Index, len(batches), execErr)
		}
		if n, err := res.RowsAffected(); err == nil {
			br.RowsAffected = n
		}
		result.Batches = append(result.Batches, br)
		result.Applied++
	}
	slog.Info("Script applied", "batches", result.Applied, "host", conn.Host)
	return result, nil
}

func open(conn models.ConnectionInfo) (*sql.DB, error) {
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		conn.User, conn.Password, conn.Host, port, conn.Database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection to %s: %w", conn.Host, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

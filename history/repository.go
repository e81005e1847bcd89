package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the journal.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the journal at dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Debug("history_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("history_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("history_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Start inserts op in the running state and sets op.ID.
func (r *Repository) Start(ctx context.Context, op *Operation) error {
	op.Status = StatusRunning

	query := `
		INSERT INTO operations (command, vendor, product, alternate, location, address, sha256, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		op.Command, op.Vendor, op.Product, op.Alternate,
		op.Location, op.Address, op.SHA256, op.Status)
	if err != nil {
		slog.Error("history_insert_failed", "command", op.Command, "error", err)
		return errors.Wrap(err, "failed to insert operation")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	op.ID = id

	slog.Debug("history_record", "operation_id", op.ID, "command", op.Command)
	return nil
}

// Finish records the outcome of op. A nil opErr marks it succeeded.
func (r *Repository) Finish(ctx context.Context, op *Operation, opErr error) error {
	op.Status = StatusSucceeded
	op.ErrorMessage = ""
	if opErr != nil {
		op.Status = StatusFailed
		op.ErrorMessage = opErr.Error()
	}

	query := `
		UPDATE operations
		SET bytes = ?, sha256 = ?, status = ?, error_message = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		op.Bytes, op.SHA256, op.Status, op.ErrorMessage, op.ID)
	if err != nil {
		slog.Error("history_update_failed", "operation_id", op.ID, "error", err)
		return errors.Wrap(err, "failed to update operation")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("operation not found: id=%d", op.ID)
	}

	slog.Debug("history_finished", "operation_id", op.ID, "status", op.Status)
	return nil
}

// Get returns the operation with the given id, or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id int64) (*Operation, error) {
	row := r.db.QueryRowContext(ctx, selectOperation+" WHERE id = ?", id)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query operation")
	}
	return op, nil
}

// List returns up to limit operations, most recent first.
func (r *Repository) List(ctx context.Context, limit int) ([]*Operation, error) {
	rows, err := r.db.QueryContext(ctx, selectOperation+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list operations")
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan operation")
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate operations")
	}
	return ops, nil
}

// Digest returns the hex SHA-256 of data, as stored in Operation.SHA256.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

const selectOperation = `
	SELECT id, command, vendor, product, alternate, location, address, bytes,
	       sha256, status, error_message, started_at, finished_at
	FROM operations`

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (*Operation, error) {
	var op Operation
	var location, digest, errorMessage, finishedAt sql.NullString
	var address sql.NullInt64

	err := s.Scan(
		&op.ID, &op.Command, &op.Vendor, &op.Product, &op.Alternate,
		&location, &address, &op.Bytes,
		&digest, &op.Status, &errorMessage, &op.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	op.Location = location.String
	op.Address = uint32(address.Int64)
	op.SHA256 = digest.String
	op.ErrorMessage = errorMessage.String
	op.FinishedAt = finishedAt.String
	return &op, nil
}

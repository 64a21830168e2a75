package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
)

// RequestRecord is the audit row of one admitted request.
type RequestRecord struct {
	RequestID  string
	Type       string
	Caller     core.Identity
	Amount     decimal.Decimal
	ErrorCode  string
	ReceivedAt time.Time
}

// RecordRequest stores rec. A request id can be recorded once; a second
// attempt returns ErrDuplicateRequest.
func (s *Store) RecordRequest(ctx context.Context, rec RequestRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (request_id, type, caller, amount, error_code, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.RequestID,
		rec.Type,
		string(rec.Caller),
		rec.Amount.String(),
		rec.ErrorCode,
		rec.ReceivedAt.UnixNano(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, rec.RequestID)
		}
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// AppendEvents stores the notifications of one successful call in a single
// transaction and returns the sequence number of the last one.
func (s *Store) AppendEvents(ctx context.Context, requestID string, caller core.Identity, notes []core.Notification) (int64, error) {
	if len(notes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append events: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (request_id, caller, kind, account, amount, fee, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("append events: prepare: %w", err)
	}
	defer stmt.Close()

	var last int64
	for _, n := range notes {
		res, err := stmt.ExecContext(ctx,
			requestID,
			string(caller),
			string(n.Kind),
			string(n.Account),
			n.Amount.String(),
			n.Fee.String(),
			n.At.UnixNano(),
		)
		if err != nil {
			return 0, fmt.Errorf("append events: insert %s: %w", n.Kind, err)
		}
		if last, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("append events: last id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append events: commit: %w", err)
	}
	return last, nil
}

// SetRequestOutcome records the error code of a request that was admitted but
// rejected by the auction.
func (s *Store) SetRequestOutcome(ctx context.Context, requestID, errorCode string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE requests SET error_code = ? WHERE request_id = ?`, errorCode, requestID)
	if err != nil {
		return fmt.Errorf("set request outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set request outcome: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set request outcome: unknown request %s", requestID)
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

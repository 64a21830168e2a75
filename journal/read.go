package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

// Events returns up to limit events in sequence order, skipping the first
// offset. An empty account selects every event.
//
// Returns an empty slice (not nil) past the end of the journal.
func (s *Store) Events(ctx context.Context, account core.Identity, offset, limit int) ([]enclaveapi.Event, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("invalid page: offset %d, limit %d", offset, limit)
	}

	var (
		rows *sql.Rows
		err  error
	)
	if account.IsZero() {
		rows, err = s.db.QueryContext(ctx, `
			SELECT seq, request_id, caller, kind, account, amount, fee, at
			FROM events
			ORDER BY seq ASC
			LIMIT ? OFFSET ?
		`, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT seq, request_id, caller, kind, account, amount, fee, at
			FROM events
			WHERE account = ?
			ORDER BY seq ASC
			LIMIT ? OFFSET ?
		`, string(account), limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []enclaveapi.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of journaled events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Request returns the audit row of requestID.
func (s *Store) Request(ctx context.Context, requestID string) (*RequestRecord, error) {
	var (
		rec        RequestRecord
		caller     string
		amount     string
		receivedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, type, caller, amount, error_code, received_at
		FROM requests
		WHERE request_id = ?
	`, requestID).Scan(&rec.RequestID, &rec.Type, &caller, &amount, &rec.ErrorCode, &receivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}

	rec.Caller = core.Identity(caller)
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount of %s: %w", requestID, err)
	}
	rec.ReceivedAt = time.Unix(0, receivedAt).UTC()
	return &rec, nil
}

func scanEvent(rows *sql.Rows) (enclaveapi.Event, error) {
	var (
		ev           enclaveapi.Event
		caller, kind string
		account      string
		amount, fee  string
		at           int64
	)
	if err := rows.Scan(&ev.Seq, &ev.RequestID, &caller, &kind, &account, &amount, &fee, &at); err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}

	var err error
	if ev.Note.Amount, err = decimal.NewFromString(amount); err != nil {
		return ev, fmt.Errorf("parse amount of event %d: %w", ev.Seq, err)
	}
	if ev.Note.Fee, err = decimal.NewFromString(fee); err != nil {
		return ev, fmt.Errorf("parse fee of event %d: %w", ev.Seq, err)
	}
	ev.Caller = core.Identity(caller)
	ev.Note.Kind = core.NotificationKind(kind)
	ev.Note.Account = core.Identity(account)
	ev.Note.At = time.Unix(0, at).UTC()
	return ev, nil
}

package store

import (
	"context"
	"fmt"
	"time"
)

const outboxColumns = `id, broadcast_id, sender_id, recipient, template_name, language_code,
	status, error_message, provider_message_id, message_id`

// QueueOutbox adds one queued row per recipient under a new broadcast id,
// all in a single transaction.
func (db *DB) QueueOutbox(ctx context.Context, senderID, templateName, languageCode string, recipients []string) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("queue outbox: no recipients")
	}
	broadcastID := db.newID()
	now := db.now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", unavailable("queue outbox", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range recipients {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbox (broadcast_id, sender_id, recipient, template_name, language_code, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'queued', ?, ?)`,
			broadcastID, senderID, r, templateName, languageCode, now, now); err != nil {
			return "", unavailable("queue outbox", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", unavailable("queue outbox", err)
	}
	return broadcastID, nil
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(ctx context.Context, id int64) error {
	return db.setOutbox(ctx, "mark sending", `UPDATE outbox SET status = 'sending', updated_at = ? WHERE id = ?`,
		db.now().UnixMilli(), id)
}

// MarkOutboxSent records the provider message id and the stored message id.
func (db *DB) MarkOutboxSent(ctx context.Context, id int64, providerMessageID, messageID string) error {
	return db.setOutbox(ctx, "mark sent", `
		UPDATE outbox SET status = 'sent', provider_message_id = ?, message_id = ?, updated_at = ?
		WHERE id = ?`, providerMessageID, messageID, db.now().UnixMilli(), id)
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(ctx context.Context, id int64, errMsg, messageID string) error {
	return db.setOutbox(ctx, "mark failed", `
		UPDATE outbox SET status = 'failed', error_message = ?, message_id = ?, updated_at = ?
		WHERE id = ?`, errMsg, messageID, db.now().UnixMilli(), id)
}

func (db *DB) setOutbox(ctx context.Context, op, query string, args ...any) error {
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// RequeueSending puts rows left in 'sending' by a crash back in the queue.
func (db *DB) RequeueSending(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'queued', updated_at = ? WHERE status = 'sending'`,
		db.now().UnixMilli())
	if err != nil {
		return 0, unavailable("requeue outbox", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PendingOutbox returns up to limit queued entries in insertion order.
func (db *DB) PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryOutbox(ctx, "pending outbox",
		`SELECT `+outboxColumns+` FROM outbox WHERE status = 'queued' ORDER BY id ASC LIMIT ?`, limit)
}

// ListBroadcast returns every entry of a broadcast in insertion order.
func (db *DB) ListBroadcast(ctx context.Context, broadcastID string) ([]OutboxEntry, error) {
	return db.queryOutbox(ctx, "list broadcast",
		`SELECT `+outboxColumns+` FROM outbox WHERE broadcast_id = ? ORDER BY id ASC`, broadcastID)
}

func (db *DB) queryOutbox(ctx context.Context, op, query string, args ...any) ([]OutboxEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.BroadcastID, &e.SenderID, &e.Recipient, &e.TemplateName, &e.LanguageCode,
			&e.Status, &e.ErrorMessage, &e.ProviderMessageID, &e.MessageID); err != nil {
			return nil, unavailable(op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return entries, nil
}

// BroadcastSummary aggregates the outbox rows of one broadcast.
type BroadcastSummary struct {
	ID           string    `json:"id"`
	TemplateName string    `json:"templateName"`
	Total        int       `json:"total"`
	Sent         int       `json:"sent"`
	Failed       int       `json:"failed"`
	Pending      int       `json:"pending"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Status is "completed" once no recipient is queued or sending.
func (b BroadcastSummary) Status() string {
	if b.Pending == 0 {
		return "completed"
	}
	return "in-progress"
}

// ListBroadcasts returns one summary per broadcast, newest first.
func (db *DB) ListBroadcasts(ctx context.Context, limit int) ([]BroadcastSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT broadcast_id, MIN(template_name), COUNT(*),
			SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status IN ('queued', 'sending') THEN 1 ELSE 0 END),
			MIN(created_at)
		FROM outbox
		GROUP BY broadcast_id
		ORDER BY MIN(id) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("list broadcasts", err)
	}
	defer func() { _ = rows.Close() }()

	var out []BroadcastSummary
	for rows.Next() {
		var (
			b       BroadcastSummary
			created int64
		)
		if err := rows.Scan(&b.ID, &b.TemplateName, &b.Total, &b.Sent, &b.Failed, &b.Pending, &created); err != nil {
			return nil, unavailable("list broadcasts", err)
		}
		b.CreatedAt = fromMillis(created)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list broadcasts", err)
	}
	return out, nil
}

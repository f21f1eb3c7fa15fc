package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/wabiz/internal/status"
	"github.com/matheus3301/wabiz/internal/webhook"
)

const messageColumns = `id, conversation_id, sender_id, receiver_id, direction, text, message_type,
	status, provider_message_id, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m          Message
		providerID sql.NullString
		created    int64
		updated    int64
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Direction, &m.Text,
		&m.MessageType, &m.Status, &providerID, &m.ErrorMessage, &created, &updated); err != nil {
		return nil, err
	}
	m.ProviderMessageID = providerID.String
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return &m, nil
}

func (db *DB) insertMessage(ctx context.Context, m *Message) error {
	now := db.now().UTC().Truncate(time.Millisecond)
	m.ID = db.newID()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.MessageType == "" {
		m.MessageType = "text"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Direction, m.Text, m.MessageType,
		m.Status, nullable(m.ProviderMessageID), m.ErrorMessage, now.UnixMilli(), now.UnixMilli()); err != nil {
		return err
	}
	if err := touchConversation(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordIncoming persists a received message as delivered. The conversation is
// the sender's phone; receiverID is the business phone number id the webhook
// was addressed to.
func (db *DB) RecordIncoming(ctx context.Context, evt webhook.Event, receiverID string) (*Message, error) {
	m := &Message{
		ConversationID:    evt.ConversationID,
		SenderID:          evt.ConversationID,
		ReceiverID:        receiverID,
		Direction:         DirectionIncoming,
		Status:            status.Delivered,
		ProviderMessageID: evt.ProviderMessageID,
	}
	if evt.Message != nil {
		m.Text = evt.Message.Text
		m.MessageType = evt.Message.Type
	}
	if err := db.insertMessage(ctx, m); err != nil {
		return nil, unavailable("record incoming", err)
	}
	return m, nil
}

// RecordOutgoing persists a message the business sent. ProviderMessageID may
// be empty when the send failed before the provider assigned one.
func (db *DB) RecordOutgoing(ctx context.Context, o Outgoing) (*Message, error) {
	st := o.Status
	if st == "" {
		st = status.Sent
	}
	m := &Message{
		ConversationID:    o.ConversationID,
		SenderID:          o.SenderID,
		ReceiverID:        o.ConversationID,
		Direction:         DirectionOutgoing,
		Text:              o.Text,
		MessageType:       o.MessageType,
		Status:            st,
		ProviderMessageID: o.ProviderMessageID,
		ErrorMessage:      o.ErrorMessage,
	}
	if err := db.insertMessage(ctx, m); err != nil {
		return nil, unavailable("record outgoing", err)
	}
	return m, nil
}

// ApplyStatusUpdate sets the status of the oldest message carrying
// providerMessageID. It returns nil, nil when no message matches. The new
// status is written as received, with no ordering check; the returned record
// carries the status it replaced in PreviousStatus.
func (db *DB) ApplyStatusUpdate(ctx context.Context, providerMessageID string, st status.Status) (*Message, error) {
	if providerMessageID == "" {
		return nil, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("apply status", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id   string
		prev status.Status
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, status FROM messages
		WHERE provider_message_id = ?
		ORDER BY created_at ASC, rowid ASC LIMIT 1`, providerMessageID).Scan(&id, &prev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("apply status", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE messages SET status = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+messageColumns, st, db.now().UnixMilli(), id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, unavailable("apply status", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("apply status", err)
	}
	m.PreviousStatus = prev
	return m, nil
}

// GetMessage returns a message by id, or nil if it does not exist.
func (db *DB) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get message", err)
	}
	return m, nil
}

// FindByProviderID returns the oldest message carrying providerMessageID, or nil.
func (db *DB) FindByProviderID(ctx context.Context, providerMessageID string) (*Message, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE provider_message_id = ?
		ORDER BY created_at ASC, rowid ASC LIMIT 1`, providerMessageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find message", err)
	}
	return m, nil
}

// ListMessages returns the latest limit messages of a conversation, oldest
// first. An empty conversationID lists across all conversations.
func (db *DB) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE ? = '' OR conversation_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, conversationID, conversationID, limit)
	if err != nil {
		return nil, unavailable("list messages", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, unavailable("list messages", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list messages", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

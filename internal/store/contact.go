package store

import (
	"context"
	"database/sql"
	"errors"
)

// UpsertContact inserts or updates a contact. An empty name never overwrites
// a known one.
func (db *DB) UpsertContact(ctx context.Context, c Contact) error {
	if c.WaID == "" {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO contacts (wa_id, name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(wa_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			updated_at = excluded.updated_at`,
		c.WaID, c.Name, db.now().UnixMilli())
	if err != nil {
		return unavailable("upsert contact", err)
	}
	return nil
}

// GetContact returns a contact by WhatsApp id, or nil if not found.
func (db *DB) GetContact(ctx context.Context, waID string) (*Contact, error) {
	var c Contact
	err := db.QueryRowContext(ctx, `SELECT wa_id, name FROM contacts WHERE wa_id = ?`, waID).Scan(&c.WaID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get contact", err)
	}
	return &c, nil
}

// MessageCount returns the total number of stored messages.
func (db *DB) MessageCount(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, unavailable("count messages", err)
	}
	return count, nil
}

package store

import (
	"context"
)

const previewLen = 80

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen])
}

func touchConversation(ctx context.Context, ex execer, m *Message) error {
	ts := m.CreatedAt.UnixMilli()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO conversations (id, last_message_at, last_message_preview, last_direction, message_count, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= last_message_at
				THEN excluded.last_message_preview ELSE last_message_preview END,
			last_direction = CASE WHEN excluded.last_message_at >= last_message_at
				THEN excluded.last_direction ELSE last_direction END,
			message_count = message_count + 1,
			updated_at = excluded.updated_at`,
		m.ConversationID, ts, preview(m.Text), m.Direction, ts)
	return err
}

// ListConversations returns conversations ordered by most recent activity.
// Name comes from the contact table when the provider has reported one.
func (db *DB) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, COALESCE(ct.name, ''), c.last_message_at, c.last_message_preview,
			c.last_direction, c.message_count
		FROM conversations c
		LEFT JOIN contacts ct ON ct.wa_id = c.id
		ORDER BY c.last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("list conversations", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var (
			c  Conversation
			ts int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &ts, &c.LastMessagePreview, &c.LastDirection, &c.MessageCount); err != nil {
			return nil, unavailable("list conversations", err)
		}
		c.LastMessageAt = fromMillis(ts)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list conversations", err)
	}
	return convs, nil
}

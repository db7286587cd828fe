package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertChat inserts or updates a chat record. Empty names and older
// previews never overwrite stored ones.
func (db *Mirror) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (jid, name, kind, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			kind = excluded.kind,
			unread_count = excluded.unread_count,
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		c.JID, c.Name, c.Kind, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

const chatCols = `c.jid,
	COALESCE(NULLIF(c.name,''), NULLIF(ct.push_name,''), NULLIF(ct.name,''), c.jid) AS display_name,
	c.kind, c.unread_count, c.last_message_at, c.last_message_preview`

// ListChats returns chats sorted by last message timestamp descending.
// Names are resolved via LEFT JOIN to contacts table with fallback:
// chat.name -> contact.push_name -> contact.name -> chat.jid
func (db *Mirror) ListChats(limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT `+chatCols+`
		FROM chats c
		LEFT JOIN contacts ct ON c.jid = ct.jid
		WHERE c.jid NOT LIKE '%@lid'
		ORDER BY c.last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.JID, &c.Name, &c.Kind, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by JID, or nil if unknown.
func (db *Mirror) GetChat(jid string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT `+chatCols+`
		FROM chats c
		LEFT JOIN contacts ct ON c.jid = ct.jid
		WHERE c.jid = ?`, jid).
		Scan(&c.JID, &c.Name, &c.Kind, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the total number of chats.
func (db *Mirror) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

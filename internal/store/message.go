package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const messageCols = `id, chat_jid, msg_id, sender_jid, sender_name, from_me, timestamp, body,
	media_type, file_name, mime_type, file_size, file_sha256, thumbnail, raw, group_id, local_path`

const upsertMessage = `
	INSERT INTO messages (chat_jid, msg_id, sender_jid, sender_name, from_me, timestamp, body,
		media_type, file_name, mime_type, file_size, file_sha256, thumbnail, raw, group_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(chat_jid, msg_id) DO UPDATE SET
		sender_name = excluded.sender_name,
		body = excluded.body,
		media_type = excluded.media_type,
		file_name = excluded.file_name,
		mime_type = excluded.mime_type,
		file_size = excluded.file_size,
		file_sha256 = excluded.file_sha256,
		thumbnail = COALESCE(excluded.thumbnail, messages.thumbnail),
		raw = COALESCE(excluded.raw, messages.raw),
		group_id = excluded.group_id`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func execUpsertMessage(e execer, m *Message) error {
	_, err := e.Exec(upsertMessage,
		m.ChatJID, m.MsgID, m.SenderJID, m.SenderName, m.FromMe, m.Timestamp, m.Body,
		m.MediaType, m.FileName, m.MimeType, m.FileSize, m.FileSHA256, m.Thumbnail, m.Raw, m.GroupID,
		time.Now().UnixMilli())
	return err
}

// UpsertMessage inserts or updates a message (idempotent on chat_jid + msg_id)
// and returns its row id.
func (db *Mirror) UpsertMessage(m *Message) (int64, error) {
	if err := execUpsertMessage(db, m); err != nil {
		return 0, err
	}
	var id int64
	err := db.QueryRow(`SELECT id FROM messages WHERE chat_jid = ? AND msg_id = ?`, m.ChatJID, m.MsgID).Scan(&id)
	return id, err
}

// IngestBatch upserts messages and their chats in one transaction. chat
// describes the chat row each message belongs to; its name and unread count
// are only written when non-empty.
func (db *Mirror) IngestBatch(msgs []*Message, chat func(*Message) Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		c := chat(m)
		if _, err := tx.Exec(`
			INSERT INTO chats (jid, name, kind, last_message_at, last_message_preview, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(jid) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
				kind = excluded.kind,
				last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
				last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
				updated_at = excluded.updated_at`,
			c.JID, c.Name, c.Kind, c.LastMessageAt, c.LastMessagePreview, now); err != nil {
			return fmt.Errorf("upsert chat in batch: %w", err)
		}
		if err := execUpsertMessage(tx, m); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var m Message
	err := s.Scan(&m.ID, &m.ChatJID, &m.MsgID, &m.SenderJID, &m.SenderName, &m.FromMe, &m.Timestamp, &m.Body,
		&m.MediaType, &m.FileName, &m.MimeType, &m.FileSize, &m.FileSHA256, &m.Thumbnail, &m.Raw, &m.GroupID, &m.LocalPath)
	return m, err
}

func (db *Mirror) queryMessages(q string, args ...any) ([]Message, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns a message by row id, or nil if unknown.
func (db *Mirror) GetMessage(id int64) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageCols+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Page is a keyset cursor over a chat's messages ordered by (timestamp, id).
type Page struct {
	ChatJID string
	// From is the cursor message id; 0 starts at the newest message.
	From      int64
	Inclusive bool
	Limit     int
}

func (p Page) where() (string, []any) {
	clause := ` WHERE chat_jid = ?`
	args := []any{p.ChatJID}
	if p.From != 0 {
		op := "<"
		if p.Inclusive {
			op = "<="
		}
		clause += ` AND (timestamp, id) ` + op + ` (SELECT timestamp, id FROM messages WHERE id = ?)`
		args = append(args, p.From)
	}
	return clause, args
}

func (p Page) limit() int {
	if p.Limit <= 0 {
		return 50
	}
	return p.Limit
}

// HistoryPage returns messages older than the cursor, newest first.
func (db *Mirror) HistoryPage(p Page) ([]Message, error) {
	where, args := p.where()
	args = append(args, p.limit())
	return db.queryMessages(`SELECT `+messageCols+` FROM messages`+where+
		` ORDER BY timestamp DESC, id DESC LIMIT ?`, args...)
}

// Window returns up to older messages before and newer messages after
// aroundID, plus aroundID itself, oldest first.
func (db *Mirror) Window(chatJID string, aroundID int64, older, newer int) ([]Message, error) {
	center, err := db.GetMessage(aroundID)
	if err != nil {
		return nil, err
	}
	if center == nil || center.ChatJID != chatJID {
		return nil, fmt.Errorf("message %d not found in %s", aroundID, chatJID)
	}

	before, err := db.queryMessages(`SELECT `+messageCols+` FROM messages
		WHERE chat_jid = ? AND (timestamp, id) < (?, ?)
		ORDER BY timestamp DESC, id DESC LIMIT ?`, chatJID, center.Timestamp, center.ID, older)
	if err != nil {
		return nil, err
	}
	after, err := db.queryMessages(`SELECT `+messageCols+` FROM messages
		WHERE chat_jid = ? AND (timestamp, id) > (?, ?)
		ORDER BY timestamp ASC, id ASC LIMIT ?`, chatJID, center.Timestamp, center.ID, newer)
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(before)+1+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		out = append(out, before[i])
	}
	out = append(out, *center)
	return append(out, after...), nil
}

// ResolveAtOrBefore returns the newest message id with timestamp <= ts (unix ms).
func (db *Mirror) ResolveAtOrBefore(chatJID string, ts int64) (int64, bool, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM messages WHERE chat_jid = ? AND timestamp <= ?
		ORDER BY timestamp DESC, id DESC LIMIT 1`, chatJID, ts).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// SetLocalPath records where a message's media bytes are cached. An empty
// path clears it.
func (db *Mirror) SetLocalPath(id int64, path string) error {
	_, err := db.Exec(`UPDATE messages SET local_path = ? WHERE id = ?`, path, id)
	return err
}

// MessageCount returns the total number of messages.
func (db *Mirror) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

package store

import "fmt"

// LIDMapping maps a LID JID to a phone number JID.
type LIDMapping struct {
	LID string
	PN  string
}

// SyncLIDMap replaces the lid_map table with the given mappings.
func (db *Mirror) SyncLIDMap(mappings []LIDMapping) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM lid_map`); err != nil {
		return fmt.Errorf("clear lid_map: %w", err)
	}
	for _, m := range mappings {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO lid_map (lid, pn) VALUES (?, ?)`, m.LID, m.PN); err != nil {
			return fmt.Errorf("insert lid_map %q: %w", m.LID, err)
		}
	}
	return tx.Commit()
}

// ReconcileLIDs folds chats addressed by LID into their phone number chats so
// that one conversation is not listed (and scanned) twice. Messages already
// present under the phone number chat are kept; LID duplicates are dropped.
// Returns the number of LID chats merged.
func (db *Mirror) ReconcileLIDs() (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		name  string
		query string
	}{
		{"ensure PN chats", `
			INSERT INTO chats (jid, name, kind, unread_count, last_message_at, last_message_preview, updated_at)
			SELECT lm.pn || '@s.whatsapp.net', c.name, c.kind, c.unread_count, c.last_message_at, c.last_message_preview, c.updated_at
			FROM chats c
			JOIN lid_map lm ON c.jid = lm.lid || '@lid'
			WHERE true
			ON CONFLICT(jid) DO UPDATE SET
				last_message_preview = CASE WHEN excluded.last_message_at > chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
				last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
				name = CASE WHEN chats.name = '' THEN excluded.name ELSE chats.name END,
				updated_at = excluded.updated_at`},
		{"drop duplicate messages", `
			DELETE FROM messages
			WHERE chat_jid IN (SELECT lid || '@lid' FROM lid_map)
			AND EXISTS (
				SELECT 1 FROM messages p, lid_map lm
				WHERE messages.chat_jid = lm.lid || '@lid'
				AND p.chat_jid = lm.pn || '@s.whatsapp.net'
				AND p.msg_id = messages.msg_id)`},
		{"reassign messages", `
			UPDATE messages SET
				chat_jid = (SELECT lm.pn || '@s.whatsapp.net' FROM lid_map lm WHERE messages.chat_jid = lm.lid || '@lid'),
				sender_jid = COALESCE(
					(SELECT lm2.pn || '@s.whatsapp.net' FROM lid_map lm2 WHERE messages.sender_jid = lm2.lid || '@lid'),
					messages.sender_jid)
			WHERE chat_jid IN (SELECT lid || '@lid' FROM lid_map)`},
		{"reassign contacts", `
			INSERT INTO contacts (jid, name, push_name, updated_at)
			SELECT lm.pn || '@s.whatsapp.net', ct.name, ct.push_name, ct.updated_at
			FROM contacts ct
			JOIN lid_map lm ON ct.jid = lm.lid || '@lid'
			WHERE true
			ON CONFLICT(jid) DO UPDATE SET
				name = CASE WHEN contacts.name = '' AND excluded.name != '' THEN excluded.name ELSE contacts.name END,
				push_name = CASE WHEN contacts.push_name = '' AND excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END,
				updated_at = excluded.updated_at`},
		{"delete LID contacts", `DELETE FROM contacts WHERE jid IN (SELECT lid || '@lid' FROM lid_map)`},
	}
	for _, s := range steps {
		if _, err := tx.Exec(s.query); err != nil {
			return 0, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	result, err := tx.Exec(`DELETE FROM chats WHERE jid IN (SELECT lid || '@lid' FROM lid_map)`)
	if err != nil {
		return 0, fmt.Errorf("delete LID chats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return result.RowsAffected()
}

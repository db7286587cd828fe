package store

import (
	"strings"
)

// Search pages backward through a chat's messages matching query (full
// text over body and file name) and, when mediaTypes is non-empty, one of
// the given media types.
func (db *Mirror) Search(p Page, query string, mediaTypes []string) ([]Message, error) {
	where, args := p.where()
	if len(mediaTypes) > 0 {
		where += ` AND media_type IN (?` + strings.Repeat(`, ?`, len(mediaTypes)-1) + `)`
		for _, t := range mediaTypes {
			args = append(args, t)
		}
	}
	if match := MatchQuery(query); match != "" {
		where += ` AND id IN (SELECT docid FROM messages_fts WHERE messages_fts MATCH ?)`
		args = append(args, match)
	} else if strings.TrimSpace(query) != "" {
		// Nothing searchable survived sanitizing.
		return nil, nil
	}
	args = append(args, p.limit())
	return db.queryMessages(`SELECT `+messageCols+` FROM messages`+where+
		` ORDER BY timestamp DESC, id DESC LIMIT ?`, args...)
}

// MatchQuery turns free text into an FTS4 MATCH expression: every word
// becomes a quoted prefix term, and terms are ANDed.
func MatchQuery(query string) string {
	var terms []string
	for _, word := range strings.Fields(query) {
		word = strings.Map(func(r rune) rune {
			switch r {
			case '"', '*', '^', '(', ')':
				return -1
			}
			return r
		}, word)
		if word == "" {
			continue
		}
		terms = append(terms, `"`+word+`*"`)
	}
	return strings.Join(terms, " ")
}

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/store/migrations"
)

func testMirror(t *testing.T) *Mirror {
	t.Helper()
	db, err := OpenMirror(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "wpdl.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func mustUpsert(t *testing.T, db *Mirror, m *Message) int64 {
	t.Helper()
	id, err := db.UpsertMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func ids(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testMirror(t)

	result, err := db.Migrate(migrations.Mirror)
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + fts)", result.Version)
	}
}

func TestChatUpsertAndList(t *testing.T) {
	db := testMirror(t)

	chat := &Chat{JID: "123@s.whatsapp.net", Name: "Alice", LastMessageAt: 1000, LastMessagePreview: "hello"}
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}
	chat.Name = "Alice Updated"
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}
	// An older preview must not replace a newer one.
	if err := db.UpsertChat(&Chat{JID: chat.JID, LastMessageAt: 500, LastMessagePreview: "stale"}); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(chats))
	}
	if chats[0].Name != "Alice Updated" {
		t.Errorf("name = %q, want Alice Updated", chats[0].Name)
	}
	if chats[0].LastMessagePreview != "hello" || chats[0].LastMessageAt != 1000 {
		t.Errorf("preview = %q at %d, want hello at 1000", chats[0].LastMessagePreview, chats[0].LastMessageAt)
	}
}

func TestGetChat(t *testing.T) {
	db := testMirror(t)

	if err := db.UpsertChat(&Chat{JID: "a@s", Name: "A"}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetChat("a@s")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "A" {
		t.Errorf("got %v, want A", c)
	}

	c, err = db.GetChat("missing@s")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat")
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testMirror(t)

	msg := &Message{ChatJID: "chat@s", MsgID: "msg1", Body: "hello", Timestamp: 1000}
	first := mustUpsert(t, db, msg)
	msg.Body = "hello updated"
	second := mustUpsert(t, db, msg)
	if first != second {
		t.Fatalf("upsert changed id %d -> %d", first, second)
	}

	got, err := db.GetMessage(first)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Body != "hello updated" {
		t.Errorf("got %+v, want updated body", got)
	}
	count, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestHistoryPageKeyset(t *testing.T) {
	db := testMirror(t)

	// Inserted out of timestamp order so row ids disagree with time.
	c := mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "c", Timestamp: 3000})
	a := mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "a", Timestamp: 1000})
	b := mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "b", Timestamp: 2000})
	mustUpsert(t, db, &Message{ChatJID: "other@s", MsgID: "x", Timestamp: 2500})

	page, err := db.HistoryPage(Page{ChatJID: "chat@s", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{c, b}; !equalIDs(ids(page), want) {
		t.Fatalf("first page = %v, want %v", ids(page), want)
	}

	page, err = db.HistoryPage(Page{ChatJID: "chat@s", From: b, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{a}; !equalIDs(ids(page), want) {
		t.Errorf("exclusive page = %v, want %v", ids(page), want)
	}

	page, err = db.HistoryPage(Page{ChatJID: "chat@s", From: b, Inclusive: true, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{b, a}; !equalIDs(ids(page), want) {
		t.Errorf("inclusive page = %v, want %v", ids(page), want)
	}
}

func TestWindow(t *testing.T) {
	db := testMirror(t)

	var all []int64
	for i := range 5 {
		all = append(all, mustUpsert(t, db, &Message{
			ChatJID: "chat@s", MsgID: string(rune('a' + i)), Timestamp: int64(i+1) * 1000,
		}))
	}

	got, err := db.Window("chat@s", all[2], 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	if want := all[1:]; !equalIDs(ids(got), want) {
		t.Errorf("window = %v, want %v", ids(got), want)
	}

	if _, err := db.Window("other@s", all[2], 1, 1); err == nil {
		t.Error("expected error for message outside chat")
	}
}

func TestResolveAtOrBefore(t *testing.T) {
	db := testMirror(t)

	mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "a", Timestamp: 1000})
	b := mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "b", Timestamp: 2000})

	id, ok, err := db.ResolveAtOrBefore("chat@s", 2500)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || id != b {
		t.Errorf("resolve = %d,%v want %d,true", id, ok, b)
	}

	_, ok, err = db.ResolveAtOrBefore("chat@s", 999)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no message before the first one")
	}
}

func TestIngestBatch(t *testing.T) {
	db := testMirror(t)

	msgs := []*Message{
		{ChatJID: "chat@s", MsgID: "m1", Body: "first", Timestamp: 1000},
		{ChatJID: "chat@s", MsgID: "m2", Body: "second", Timestamp: 2000},
	}
	chat := func(m *Message) Chat {
		return Chat{JID: m.ChatJID, Name: "Team", Kind: 1, LastMessageAt: m.Timestamp, LastMessagePreview: m.Body}
	}
	if err := db.IngestBatch(msgs, chat); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat("chat@s")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.LastMessagePreview != "second" || c.LastMessageAt != 2000 || c.Kind != 1 || c.Name != "Team" {
		t.Errorf("chat = %+v, want Team (kind 1) with preview second at 2000", c)
	}
	count, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestSearch(t *testing.T) {
	db := testMirror(t)

	hello := mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "m1", Body: "hello world", Timestamp: 1000})
	mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "m2", Body: "goodbye world", Timestamp: 2000})
	report := mustUpsert(t, db, &Message{
		ChatJID: "chat@s", MsgID: "m3", MediaType: MediaDocument, FileName: "report.pdf", Timestamp: 3000,
	})
	photo := mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "m4", MediaType: MediaImage, Timestamp: 4000})

	tests := []struct {
		name  string
		query string
		types []string
		want  []int64
	}{
		{"body word", "hello", nil, []int64{hello}},
		{"prefix", "hel", nil, []int64{hello}},
		{"file name", "report", nil, []int64{report}},
		{"type only", "", []string{MediaImage}, []int64{photo}},
		{"type and query", "report", []string{MediaImage}, nil},
		{"operators stripped", `"(`, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Search(Page{ChatJID: "chat@s", Limit: 10}, tt.query, tt.types)
			if err != nil {
				t.Fatal(err)
			}
			if !equalIDs(ids(got), tt.want) {
				t.Errorf("got %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestMatchQuery(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"hello":         `"hello*"`,
		"hello  world":  `"hello*" "world*"`,
		`say "hi" (x)*`: `"say*" "hi*" "x*"`,
	}
	for in, want := range tests {
		if got := MatchQuery(in); got != want {
			t.Errorf("MatchQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetLocalPath(t *testing.T) {
	db := testMirror(t)

	id := mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "m1", MediaType: MediaVideo})
	if err := db.SetLocalPath(id, "/tmp/v.mp4"); err != nil {
		t.Fatal(err)
	}
	// A later upsert of the same message keeps the cached path.
	mustUpsert(t, db, &Message{ChatJID: "chat@s", MsgID: "m1", MediaType: MediaVideo, Body: "caption"})

	got, err := db.GetMessage(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.LocalPath != "/tmp/v.mp4" {
		t.Errorf("local path = %q", got.LocalPath)
	}
}

func TestContact(t *testing.T) {
	db := testMirror(t)

	if err := db.BulkUpsertContacts([]Contact{{JID: "j@s", Name: "John", PushName: "Johnny"}}); err != nil {
		t.Fatal(err)
	}
	// Empty fields do not erase known names.
	if err := db.BulkUpsertContacts([]Contact{{JID: "j@s"}}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetContact("j@s")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.PushName != "Johnny" || c.Name != "John" {
		t.Errorf("got %v, want John/Johnny", c)
	}
}

func TestReconcileLIDs(t *testing.T) {
	db := testMirror(t)

	if err := db.UpsertChat(&Chat{JID: "111@lid", Name: "Bob", LastMessageAt: 2000, LastMessagePreview: "newer"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertChat(&Chat{JID: "5511@s.whatsapp.net", LastMessageAt: 1000, LastMessagePreview: "older"}); err != nil {
		t.Fatal(err)
	}
	mustUpsert(t, db, &Message{ChatJID: "111@lid", MsgID: "dup", Timestamp: 1000})
	mustUpsert(t, db, &Message{ChatJID: "5511@s.whatsapp.net", MsgID: "dup", Timestamp: 1000})
	mustUpsert(t, db, &Message{ChatJID: "111@lid", MsgID: "only-lid", Timestamp: 2000})

	if err := db.SyncLIDMap([]LIDMapping{{LID: "111", PN: "5511"}}); err != nil {
		t.Fatal(err)
	}
	merged, err := db.ReconcileLIDs()
	if err != nil {
		t.Fatal(err)
	}
	if merged != 1 {
		t.Errorf("merged = %d, want 1", merged)
	}

	chats, err := db.ListChats(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].JID != "5511@s.whatsapp.net" {
		t.Fatalf("chats = %+v, want only the PN chat", chats)
	}
	if chats[0].Name != "Bob" || chats[0].LastMessagePreview != "newer" {
		t.Errorf("chat = %+v, want name Bob and newer preview", chats[0])
	}

	page, err := db.HistoryPage(Page{ChatJID: "5511@s.whatsapp.net", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Errorf("got %d messages after merge, want 2", len(page))
	}
}

func TestSyncState(t *testing.T) {
	db := testMirror(t)

	if _, ok, err := db.SyncState("history"); err != nil || ok {
		t.Fatalf("unset state = %v, %v", ok, err)
	}
	if err := db.SetSyncState("history", "a"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncState("history", "b"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.SyncState("history")
	if err != nil || !ok || v != "b" {
		t.Errorf("state = %q,%v,%v want b", v, ok, err)
	}
}

func TestRegistry(t *testing.T) {
	r := testRegistry(t)

	base := time.UnixMilli(1_700_000_000_000)
	if err := r.SaveSession(model.Session{ID: "work", FirstName: "Ana", Avatar: []byte{1}}, base); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveSession(model.Session{ID: "home", FirstName: "Ana"}, base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	list, err := r.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "home" {
		t.Fatalf("list = %+v, want home first", list)
	}

	if err := r.TouchSession("work", base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	// Saving without an avatar keeps the stored one.
	if err := r.SaveSession(model.Session{ID: "work", FirstName: "Ana B"}, base.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	s, err := r.GetSession("work")
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || s.FirstName != "Ana B" || len(s.Avatar) != 1 {
		t.Errorf("session = %+v", s)
	}
	if !s.LastActive.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("last active = %v", s.LastActive)
	}

	if err := r.DeleteSession("work"); err != nil {
		t.Fatal(err)
	}
	if s, err := r.GetSession("work"); err != nil || s != nil {
		t.Errorf("after delete got %v, %v", s, err)
	}
	if err := r.DeleteSession("unknown"); err != nil {
		t.Errorf("deleting unknown session: %v", err)
	}
}

func TestOpenPragmas(t *testing.T) {
	db := testMirror(t)

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

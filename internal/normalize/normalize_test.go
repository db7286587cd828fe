package normalize

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
)

var date = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC).Unix()

func never(string) bool  { return false }
func always(string) bool { return true }

func TestFileMapsEachContentKind(t *testing.T) {
	tests := []struct {
		name     string
		content  provider.Content
		wantType model.FileType
		wantName string
	}{
		{
			name:     "photo",
			content:  provider.Photo{File: provider.FileInfo{ID: 1, UniqueID: "u1", Size: 10}, Thumbnail: []byte{1}},
			wantType: model.FileImage,
			wantName: "image_20240102_150405_1.jpg",
		},
		{
			name:     "video named",
			content:  provider.Video{File: provider.FileInfo{ID: 2, UniqueID: "u2"}, FileName: "clip.mp4"},
			wantType: model.FileVideo,
			wantName: "clip.mp4",
		},
		{
			name:     "document unnamed",
			content:  provider.Document{File: provider.FileInfo{ID: 3, UniqueID: "u3"}, MimeType: "application/pdf"},
			wantType: model.FileDocument,
			wantName: "document_20240102_150405_3.pdf",
		},
		{
			name:     "audio with mime parameters",
			content:  provider.Audio{File: provider.FileInfo{ID: 4, UniqueID: "u4"}, MimeType: "audio/ogg; codecs=opus"},
			wantType: model.FileMusic,
			wantName: "music_20240102_150405_4.ogg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := provider.Message{ID: 100, ChatID: "c", Date: date, GroupID: 7, Text: "hi", Content: tt.content}
			fd, ok := File(msg, never)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, fd.Type)
			assert.Equal(t, tt.wantName, fd.Name)
			assert.Equal(t, int64(100), fd.MessageID)
			assert.Equal(t, int64(7), fd.GroupID)
			assert.Equal(t, "hi", fd.Caption)
			assert.Equal(t, "c", fd.ChatID)
			assert.Equal(t, model.NotDownloaded, fd.State)
		})
	}
}

func TestFileWithoutAttachment(t *testing.T) {
	for _, c := range []provider.Content{provider.Other{Kind: "text"}, nil, provider.Photo{}} {
		_, ok := File(provider.Message{ID: 1, Content: c}, never)
		assert.False(t, ok, "content %T", c)
	}
}

func TestFileLocalState(t *testing.T) {
	completed := provider.LocalFile{Path: "/cache/1", IsDownloadingCompleted: true}
	tests := []struct {
		name   string
		local  provider.LocalFile
		exists ExistsFunc
		want   model.LocalState
	}{
		{"completed and present", completed, always, model.Downloaded},
		{"completed but missing", completed, never, model.NotDownloaded},
		{"completed nil exists", completed, nil, model.NotDownloaded},
		{"active", provider.LocalFile{IsDownloadingActive: true, DownloadedSize: 5}, always, model.Downloading},
		{"idle", provider.LocalFile{}, always, model.NotDownloaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := provider.Message{ID: 1, Content: provider.Photo{File: provider.FileInfo{ID: 1, Local: tt.local}}}
			fd, ok := File(msg, tt.exists)
			require.True(t, ok)
			assert.Equal(t, tt.want, fd.State)
		})
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}

func TestFilesSkipsNonMedia(t *testing.T) {
	msgs := []provider.Message{
		{ID: 3, Content: provider.Photo{File: provider.FileInfo{ID: 30}}},
		{ID: 2, Content: provider.Other{Kind: "text"}},
		{ID: 1, Content: provider.Document{File: provider.FileInfo{ID: 10}, FileName: "a.txt"}},
	}
	got := Files(msgs, never)
	require.Len(t, got, 2)
	assert.Equal(t, int64(30), got[0].FileID)
	assert.Equal(t, int64(10), got[1].FileID)
	assert.Equal(t, "file-10", got[1].UniqueID)
}

func TestSynthesizedNamesAreUnique(t *testing.T) {
	a := SynthesizeName(model.FileImage, date, 1, "")
	b := SynthesizeName(model.FileImage, date, 2, "")
	assert.NotEqual(t, a, b)
}

func TestChat(t *testing.T) {
	tests := []struct {
		name string
		in   provider.Chat
		want model.Chat
	}{
		{
			name: "group with text",
			in: provider.Chat{ID: "g@g.us", Title: "Team", Kind: provider.ChatGroup, UnreadCount: 3,
				LastMessage: &provider.Message{Date: date, Text: "hello"}},
			want: model.Chat{ID: "g@g.us", Title: "Team", Type: model.ChatGroup, UnreadCount: 3, LastMessage: "hello", Date: date},
		},
		{
			name: "newsletter with media",
			in: provider.Chat{ID: "n@newsletter", Title: "News", Kind: provider.ChatNewsletter,
				LastMessage: &provider.Message{Date: date, Content: provider.Video{}}},
			want: model.Chat{ID: "n@newsletter", Title: "News", Type: model.ChatChannel, LastMessage: "Video", Date: date},
		},
		{
			name: "untitled private",
			in:   provider.Chat{ID: "551199@s.whatsapp.net"},
			want: model.Chat{ID: "551199@s.whatsapp.net", Title: "551199@s.whatsapp.net", Type: model.ChatPrivate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chat(tt.in))
		})
	}
}

// Package normalize maps provider-native records onto the canonical model.
// Mapping is pure: the only file system access goes through an injected
// ExistsFunc.
package normalize

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
)

// ExistsFunc reports whether path names an existing file.
type ExistsFunc func(path string) bool

// FileExists is the ExistsFunc backed by the real file system.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// File maps a message to a FileDescriptor. It returns false when the message
// carries no downloadable attachment.
func File(m provider.Message, exists ExistsFunc) (model.FileDescriptor, bool) {
	var (
		fd   model.FileDescriptor
		info provider.FileInfo
		name string
	)
	switch c := m.Content.(type) {
	case provider.Photo:
		info = c.File
		fd.Type = model.FileImage
		fd.Thumbnail = c.Thumbnail
		fd.PreviewFileID = c.PreviewFileID
		fd.MimeType = "image/jpeg"
	case provider.Video:
		info = c.File
		fd.Type = model.FileVideo
		fd.Thumbnail = c.Thumbnail
		fd.MimeType = c.MimeType
		name = c.FileName
	case provider.Document:
		info = c.File
		fd.Type = model.FileDocument
		fd.Thumbnail = c.Thumbnail
		fd.MimeType = c.MimeType
		name = c.FileName
	case provider.Audio:
		info = c.File
		fd.Type = model.FileMusic
		fd.MimeType = c.MimeType
		name = c.FileName
	default:
		return model.FileDescriptor{}, false
	}
	if info.ID == 0 {
		return model.FileDescriptor{}, false
	}

	fd.FileID = info.ID
	fd.UniqueID = info.UniqueID
	if fd.UniqueID == "" {
		fd.UniqueID = fmt.Sprintf("file-%d", info.ID)
	}
	fd.MessageID = m.ID
	fd.ChatID = m.ChatID
	fd.GroupID = m.GroupID
	fd.Caption = m.Text
	fd.Size = info.Size
	fd.Date = m.Date

	fd.Name = strings.TrimSpace(name)
	if fd.Name == "" {
		fd.Name = SynthesizeName(fd.Type, m.Date, info.ID, fd.MimeType)
	}

	fd.State, fd.LocalPath = localState(info.Local, exists)
	return fd, true
}

func localState(l provider.LocalFile, exists ExistsFunc) (model.LocalState, string) {
	if l.IsDownloadingCompleted && l.Path != "" && exists != nil && exists(l.Path) {
		return model.Downloaded, l.Path
	}
	if l.IsDownloadingActive {
		return model.Downloading, ""
	}
	return model.NotDownloaded, ""
}

// Files maps every message with an attachment, preserving order.
func Files(msgs []provider.Message, exists ExistsFunc) []model.FileDescriptor {
	out := make([]model.FileDescriptor, 0, len(msgs))
	for _, m := range msgs {
		if fd, ok := File(m, exists); ok {
			out = append(out, fd)
		}
	}
	return out
}

var mimeExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"audio/mp4":       ".m4a",
	"application/pdf": ".pdf",
	"application/zip": ".zip",
}

var typeExt = map[model.FileType]string{
	model.FileImage:    ".jpg",
	model.FileVideo:    ".mp4",
	model.FileMusic:    ".mp3",
	model.FileDocument: ".bin",
}

// SynthesizeName builds a unique display name for a nameless file from its
// type, timestamp and id, e.g. image_20240102_150405_42.jpg.
func SynthesizeName(t model.FileType, date, id int64, mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	ext, ok := mimeExt[strings.TrimSpace(base)]
	if !ok {
		ext = typeExt[t]
	}
	stamp := time.Unix(date, 0).UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%d%s", strings.ToLower(string(t)), stamp, id, ext)
}

// Chat maps a provider conversation to a Chat.
func Chat(c provider.Chat) model.Chat {
	out := model.Chat{
		ID:          c.ID,
		Title:       c.Title,
		UnreadCount: c.UnreadCount,
		Type:        chatType(c.Kind),
	}
	if out.Title == "" {
		out.Title = c.ID
	}
	if c.LastMessage != nil {
		out.LastMessage = summary(*c.LastMessage)
		out.Date = c.LastMessage.Date
	}
	return out
}

// Chats maps a slice of provider conversations.
func Chats(cs []provider.Chat) []model.Chat {
	out := make([]model.Chat, len(cs))
	for i, c := range cs {
		out[i] = Chat(c)
	}
	return out
}

func chatType(k provider.ChatKind) model.ChatType {
	switch k {
	case provider.ChatGroup, provider.ChatBroadcast:
		return model.ChatGroup
	case provider.ChatNewsletter:
		return model.ChatChannel
	}
	return model.ChatPrivate
}

func summary(m provider.Message) string {
	if m.Text != "" {
		return m.Text
	}
	switch m.Content.(type) {
	case provider.Photo:
		return "Photo"
	case provider.Video:
		return "Video"
	case provider.Document:
		return "Document"
	case provider.Audio:
		return "Audio"
	}
	return "Media message"
}

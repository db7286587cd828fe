package wa

import (
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/store"
)

// mediaTypesFor maps a file type filter to mirror media types. No filter
// means every downloadable kind.
func mediaTypesFor(t model.FileType) []string {
	switch t {
	case model.FileImage:
		return []string{store.MediaImage}
	case model.FileVideo:
		return []string{store.MediaVideo}
	case model.FileDocument:
		return []string{store.MediaDocument}
	case model.FileMusic:
		return []string{store.MediaAudio}
	}
	return []string{store.MediaImage, store.MediaVideo, store.MediaDocument, store.MediaAudio}
}

// uniqueID identifies file content across messages; forwarded media shares
// its hash.
func uniqueID(m *store.Message) string {
	if m.FileSHA256 != "" {
		return m.FileSHA256
	}
	return m.ChatJID + "/" + m.MsgID
}

func fileInfo(m *store.Message, active bool) provider.FileInfo {
	fi := provider.FileInfo{
		ID:       m.ID,
		UniqueID: uniqueID(m),
		Size:     m.FileSize,
		Local: provider.LocalFile{
			Path:                m.LocalPath,
			IsDownloadingActive: active,
		},
	}
	if m.LocalPath != "" && !active {
		fi.Local.IsDownloadingCompleted = true
		fi.Local.DownloadedSize = m.FileSize
	}
	return fi
}

func toProvider(m *store.Message, active bool) provider.Message {
	out := provider.Message{
		ID:      m.ID,
		ChatID:  m.ChatJID,
		Date:    m.Timestamp / 1000,
		GroupID: m.GroupID,
		Text:    m.Body,
	}
	file := fileInfo(m, active)
	switch m.MediaType {
	case store.MediaImage:
		out.Content = provider.Photo{File: file, Thumbnail: m.Thumbnail}
	case store.MediaVideo:
		out.Content = provider.Video{File: file, FileName: m.FileName, MimeType: m.MimeType, Thumbnail: m.Thumbnail}
	case store.MediaDocument:
		out.Content = provider.Document{File: file, FileName: m.FileName, MimeType: m.MimeType, Thumbnail: m.Thumbnail}
	case store.MediaAudio:
		out.Content = provider.Audio{File: file, FileName: m.FileName, MimeType: m.MimeType}
	case store.MediaNone:
		out.Content = provider.Other{Kind: "text"}
	default:
		out.Content = provider.Other{Kind: m.MediaType}
	}
	return out
}

func chatToProvider(c store.Chat) provider.Chat {
	out := provider.Chat{
		ID:          c.JID,
		Title:       c.Name,
		Kind:        provider.ChatKind(c.Kind),
		UnreadCount: c.UnreadCount,
	}
	if c.LastMessageAt > 0 {
		out.LastMessage = &provider.Message{
			ChatID:  c.JID,
			Date:    c.LastMessageAt / 1000,
			Text:    c.LastMessagePreview,
			Content: provider.Other{Kind: "text"},
		}
	}
	return out
}

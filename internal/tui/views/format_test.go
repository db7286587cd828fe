package views

import (
	"testing"
	"time"
)

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := humanBytes(tt.in); got != tt.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"today", time.Date(2024, 3, 10, 9, 5, 0, 0, time.UTC), "09:05"},
		{"this year", time.Date(2024, 1, 2, 9, 5, 0, 0, time.UTC), "Jan 02"},
		{"older", time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC), "2022-07-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDate(tt.at.Unix(), now); got != tt.want {
				t.Errorf("formatDate() = %q, want %q", got, tt.want)
			}
		})
	}
	if got := formatDate(0, now); got != "" {
		t.Errorf("formatDate(0) = %q, want empty", got)
	}
}

func TestSanitizeForTerminal(t *testing.T) {
	in := "ok\U0001F44D\U0001F3FB\u200d\ufe0f"
	if got := sanitizeForTerminal(in); got != "ok\U0001F44D" {
		t.Errorf("sanitizeForTerminal() = %q", got)
	}
}

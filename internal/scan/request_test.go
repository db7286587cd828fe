package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/matheus3301/wpdl/internal/model"
)

func TestRequestValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"minimal", Request{ChatID: "c"}, false},
		{"no chat", Request{}, true},
		{"start after end", Request{ChatID: "c", Start: now, End: now.Add(-time.Hour)}, true},
		{"same day", Request{ChatID: "c", Start: now, End: now}, false},
		{"negative cap", Request{ChatID: "c", Cap: intp(-1)}, true},
		{"zero cap", Request{ChatID: "c", Cap: intp(0)}, false},
		{"unknown type", Request{ChatID: "c", Type: "Sticker"}, true},
		{"known type", Request{ChatID: "c", Type: model.FileVideo}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEffectiveCap(t *testing.T) {
	p := Policy{DefaultCap: 100, UnlimitedWithFilters: true}
	now := time.Now()
	tests := []struct {
		name   string
		policy Policy
		req    Request
		want   int
	}{
		{"plain uses default", p, Request{ChatID: "c"}, 100},
		{"query unlimited", p, Request{ChatID: "c", Query: "x"}, 0},
		{"type unlimited", p, Request{ChatID: "c", Type: model.FileMusic}, 0},
		{"dates unlimited", p, Request{ChatID: "c", Start: now}, 0},
		{"explicit wins", p, Request{ChatID: "c", Query: "x", Cap: intp(7)}, 7},
		{"filters capped when policy off", Policy{DefaultCap: 20}, Request{ChatID: "c", Query: "x"}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.EffectiveCap(tt.req))
		})
	}
}

func TestAdmitsEndOfDay(t *testing.T) {
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Request{ChatID: "c", Start: end, End: end}
	assert.True(t, r.admits(end.Unix()))
	assert.True(t, r.admits(end.Add(24*time.Hour).Unix()))
	assert.False(t, r.admits(end.Add(24*time.Hour+time.Second).Unix()))
	assert.False(t, r.admits(end.Add(-time.Second).Unix()))
}

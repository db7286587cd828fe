package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wpdl/internal/model"
)

// ErrInvalidRequest is returned for scan requests rejected before any provider call.
var ErrInvalidRequest = errors.New("invalid scan request")

// day widens the end date so the whole end day is included.
const day = 24 * time.Hour

// Request is one logical "find files in chat X with filters Y" operation.
type Request struct {
	ChatID string
	Start  time.Time // inclusive; zero means unbounded
	End    time.Time // inclusive through End+24h; zero means unbounded
	Query  string
	Type   model.FileType // empty means all types
	// Cap bounds the number of files emitted; 0 is unlimited and nil defers to Policy.
	Cap *int
}

// Validate rejects malformed requests.
func (r Request) Validate() error {
	if r.ChatID == "" {
		return fmt.Errorf("%w: chat id is required", ErrInvalidRequest)
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.After(r.End) {
		return fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidRequest,
			r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}
	if r.Cap != nil && *r.Cap < 0 {
		return fmt.Errorf("%w: cap must not be negative", ErrInvalidRequest)
	}
	if _, ok := model.ParseFileType(string(r.Type)); !ok {
		return fmt.Errorf("%w: unknown type filter %q", ErrInvalidRequest, r.Type)
	}
	return nil
}

// Search reports whether the request uses server-side search instead of history paging.
func (r Request) Search() bool {
	return r.Query != "" || r.Type != ""
}

func (r Request) hasDates() bool {
	return !r.Start.IsZero() || !r.End.IsZero()
}

// endLimit returns the newest unix timestamp admitted by the end date.
func (r Request) endLimit() int64 {
	return r.End.Add(day).Unix()
}

// admits reports whether a message dated ts falls inside the date window.
func (r Request) admits(ts int64) bool {
	if !r.Start.IsZero() && ts < r.Start.Unix() {
		return false
	}
	if !r.End.IsZero() && ts > r.endLimit() {
		return false
	}
	return true
}

// Policy decides the cap of requests that do not set one.
type Policy struct {
	DefaultCap           int
	UnlimitedWithFilters bool
}

// EffectiveCap returns the cap applied to r; 0 means unlimited.
func (p Policy) EffectiveCap(r Request) int {
	if r.Cap != nil {
		return *r.Cap
	}
	if p.UnlimitedWithFilters && (r.Search() || r.hasDates()) {
		return 0
	}
	return p.DefaultCap
}

package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/provider/providertest"
)

const chat = "123@s.whatsapp.net"

var base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func photo(id int64, date time.Time, group int64, text string) provider.Message {
	return provider.Message{
		ID:      id,
		ChatID:  chat,
		Date:    date.Unix(),
		GroupID: group,
		Text:    text,
		Content: provider.Photo{File: provider.FileInfo{ID: id * 10, UniqueID: fmt.Sprintf("u%d", id), Size: 100}},
	}
}

func text(id int64, date time.Time, body string) provider.Message {
	return provider.Message{ID: id, ChatID: chat, Date: date.Unix(), Text: body, Content: provider.Other{Kind: "text"}}
}

func intp(n int) *int { return &n }

type harness struct {
	gw     *providertest.Gateway
	bus    *bus.Bus
	events <-chan bus.Envelope
	coord  *Coordinator
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gw := providertest.New()
	b := bus.New()
	events, unsub := b.Subscribe("scan.", 1024)
	t.Cleanup(unsub)
	coord := New(gw, bus.NewGate(b), func(string) bool { return false }, opts, nil)
	t.Cleanup(coord.Stop)
	return &harness{gw: gw, bus: b, events: events, coord: coord}
}

func (h *harness) drain() []bus.Event {
	var out []bus.Event
	for {
		select {
		case env := <-h.events:
			out = append(out, env.Event)
		default:
			return out
		}
	}
}

func (h *harness) run(t *testing.T, req Request) []bus.Event {
	t.Helper()
	_, err := h.coord.Start(req)
	require.NoError(t, err)
	h.coord.Wait()
	return h.drain()
}

func fileIDs(files []model.FileDescriptor) []int64 {
	ids := make([]int64, len(files))
	for i, f := range files {
		ids[i] = f.FileID
	}
	return ids
}

func TestHistoryScenario(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	for i := int64(2); i <= 5; i++ {
		h.gw.Add(photo(i, base.Add(time.Duration(i)*time.Minute), 0, ""))
	}

	events := h.run(t, Request{ChatID: chat, Cap: intp(0)})

	require.Len(t, events, 5)
	assert.Equal(t, 2, events[0].(bus.ScanProgress).Scanned)
	assert.Equal(t, []int64{50, 40}, fileIDs(events[1].(bus.ScanBatch).Files))
	assert.Equal(t, 4, events[2].(bus.ScanProgress).Scanned)
	assert.Equal(t, []int64{30, 20}, fileIDs(events[3].(bus.ScanBatch).Files))
	ended, ok := events[4].(bus.ScanEnded)
	require.True(t, ok)
	assert.Empty(t, ended.Error)
	assert.Len(t, h.gw.CallsOf("GetHistoryPage"), 3)
}

func TestCapTruncatesAndEndsImmediately(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	h.gw.Add(photo(1, base, 0, ""), photo(2, base, 0, ""), photo(3, base, 0, ""))

	events := h.run(t, Request{ChatID: chat, Cap: intp(1)})

	require.Len(t, events, 3)
	assert.IsType(t, bus.ScanProgress{}, events[0])
	batch := events[1].(bus.ScanBatch)
	assert.Len(t, batch.Files, 1)
	assert.IsType(t, bus.ScanEnded{}, events[2])
	assert.Len(t, h.gw.CallsOf("GetHistoryPage"), 1)
}

func TestCapExactAcrossBatches(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	for i := int64(1); i <= 9; i++ {
		h.gw.Add(photo(i, base, 0, ""))
	}

	events := h.run(t, Request{ChatID: chat, Cap: intp(5)})

	total := 0
	for i, evt := range events {
		if b, ok := evt.(bus.ScanBatch); ok {
			total += len(b.Files)
			if total == 5 {
				require.Len(t, events, i+2)
				assert.IsType(t, bus.ScanEnded{}, events[i+1])
			}
		}
	}
	assert.Equal(t, 5, total)
}

func TestDefaultCapPolicy(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2, Policy: Policy{DefaultCap: 3, UnlimitedWithFilters: true}})
	for i := int64(1); i <= 6; i++ {
		h.gw.Add(photo(i, base, 0, ""))
	}

	events := h.run(t, Request{ChatID: chat})

	total := 0
	for _, evt := range events {
		if b, ok := evt.(bus.ScanBatch); ok {
			total += len(b.Files)
		}
	}
	assert.Equal(t, 3, total)
}

func TestEmptyBatchIsNotEmitted(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	h.gw.Add(text(1, base, "a"), text(2, base, "b"))

	events := h.run(t, Request{ChatID: chat, Cap: intp(0)})

	require.Len(t, events, 2)
	p := events[0].(bus.ScanProgress)
	assert.Equal(t, 2, p.Scanned)
	assert.Equal(t, 0, p.Found)
	assert.IsType(t, bus.ScanEnded{}, events[1])
}

func TestDuplicateUniqueIDsEmittedOnce(t *testing.T) {
	h := newHarness(t, Options{PageSize: 1})
	a := photo(1, base, 0, "")
	b := photo(2, base, 0, "")
	b.Content = a.Content
	h.gw.Add(a, b)

	events := h.run(t, Request{ChatID: chat, Cap: intp(0)})

	var ids []int64
	for _, evt := range events {
		if batch, ok := evt.(bus.ScanBatch); ok {
			ids = append(ids, fileIDs(batch.Files)...)
		}
	}
	assert.Equal(t, []int64{10}, ids)
}

func TestEpochSupersession(t *testing.T) {
	h := newHarness(t, Options{PageSize: 1})
	for i := int64(1); i <= 6; i++ {
		h.gw.Add(photo(i, base, 0, ""))
	}

	var (
		once   sync.Once
		second uint64
		err2   error
	)
	h.gw.BeforePage = func(_ context.Context, n int) {
		if n == 1 {
			once.Do(func() { second, err2 = h.coord.Start(Request{ChatID: chat, Cap: intp(0)}) })
		}
	}

	first, err := h.coord.Start(Request{ChatID: chat, Cap: intp(0)})
	require.NoError(t, err)
	// The second scan starts from inside the first one's second page fetch,
	// before Wait can return.
	h.coord.Wait()
	require.NoError(t, err2)
	events := h.drain()

	require.Greater(t, second, first)
	epochOf := func(evt bus.Event) uint64 {
		switch e := evt.(type) {
		case bus.ScanProgress:
			return e.Epoch
		case bus.ScanBatch:
			return e.Epoch
		case bus.ScanEnded:
			return e.Epoch
		}
		t.Fatalf("unexpected event %T", evt)
		return 0
	}
	sawSecond := false
	endedFirst := false
	for _, evt := range events {
		e := epochOf(evt)
		if e == second {
			sawSecond = true
		}
		if e == first && sawSecond {
			t.Fatalf("epoch %d emitted %T after epoch %d began", first, evt, second)
		}
		if _, ok := evt.(bus.ScanEnded); ok && e == first {
			endedFirst = true
		}
	}
	assert.True(t, sawSecond)
	assert.False(t, endedFirst, "superseded scan emitted scanEnded")
	last, ok := events[len(events)-1].(bus.ScanEnded)
	require.True(t, ok)
	assert.Equal(t, second, last.Epoch)
}

func TestStopSilencesRunningScan(t *testing.T) {
	h := newHarness(t, Options{PageSize: 1, PageDelay: time.Hour})
	h.gw.Add(photo(1, base, 0, ""), photo(2, base, 0, ""))

	_, err := h.coord.Start(Request{ChatID: chat, Cap: intp(0)})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.gw.CallsOf("GetHistoryPage")) == 1 }, time.Second, time.Millisecond)
	h.coord.Stop()
	events := h.drain()

	for _, evt := range events {
		assert.NotEqual(t, bus.KindScanEnded, evt.Kind())
	}
	_, err = h.coord.Start(Request{ChatID: chat})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestHistoryDateWindow(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	d := func(days int) time.Time { return base.AddDate(0, 0, days) }
	h.gw.Add(
		photo(1, d(0), 0, ""),
		photo(2, d(1), 0, ""),
		photo(3, d(2), 0, ""),
		photo(4, d(3), 0, ""),
		photo(5, d(4), 0, ""),
		photo(6, d(5), 0, ""),
	)

	// End is the start of day 3, so anything up to a day later is admitted.
	events := h.run(t, Request{ChatID: chat, Start: d(1), End: d(3).Add(-time.Hour)})

	var ids []int64
	for _, evt := range events {
		if batch, ok := evt.(bus.ScanBatch); ok {
			ids = append(ids, fileIDs(batch.Files)...)
		}
	}
	assert.Equal(t, []int64{40, 30, 20}, ids)
	assert.Len(t, h.gw.CallsOf("ResolveMessageAtOrBeforeDate"), 1)
	// Anchored at 4, pages [4,3] and [2,1]; 1 is older than start, so paging stops.
	assert.Len(t, h.gw.CallsOf("GetHistoryPage"), 2)
}

func TestHistoryEndBeforeAnyMessage(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	h.gw.Add(photo(1, base, 0, ""))

	events := h.run(t, Request{ChatID: chat, End: base.AddDate(0, 0, -5)})

	require.Len(t, events, 1)
	assert.IsType(t, bus.ScanEnded{}, events[0])
	assert.Empty(t, h.gw.CallsOf("GetHistoryPage"))
}

func TestSearchGroupExpansion(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10, GroupWindow: 3})
	h.gw.Add(
		text(1, base, "hello"),
		photo(2, base.Add(1*time.Second), 9, ""),
		photo(3, base.Add(2*time.Second), 9, "sunset"),
		photo(4, base.Add(3*time.Second), 9, ""),
		text(5, base.Add(4*time.Second), "bye"),
	)

	events := h.run(t, Request{ChatID: chat, Query: "sunset"})

	require.Len(t, events, 3)
	batch := events[1].(bus.ScanBatch)
	assert.Equal(t, []int64{40, 30, 20}, fileIDs(batch.Files))
	for _, f := range batch.Files {
		assert.Equal(t, int64(9), f.GroupID)
	}
	assert.Len(t, h.gw.CallsOf("GetMessageWindow"), 1)
	assert.Len(t, h.gw.CallsOf("SearchMessages"), 1, "short page ends search")
}

func TestSearchGroupExpansionFailureKeepsHits(t *testing.T) {
	h := newHarness(t, Options{PageSize: 10})
	h.gw.WindowErr = errors.New("window unavailable")
	h.gw.Add(
		photo(2, base, 9, ""),
		photo(3, base.Add(time.Second), 9, "sunset"),
	)

	events := h.run(t, Request{ChatID: chat, Query: "sunset"})

	require.Len(t, events, 3)
	assert.Equal(t, []int64{30}, fileIDs(events[1].(bus.ScanBatch).Files))
	assert.Empty(t, events[2].(bus.ScanEnded).Error)
}

func TestSearchByTypePaginates(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	for i := int64(1); i <= 5; i++ {
		h.gw.Add(photo(i, base, 0, ""))
	}
	h.gw.Add(text(6, base, "x"))

	events := h.run(t, Request{ChatID: chat, Type: model.FileImage})

	total := 0
	for _, evt := range events {
		if b, ok := evt.(bus.ScanBatch); ok {
			total += len(b.Files)
		}
	}
	assert.Equal(t, 5, total)
	// Pages of 2, 2 and 1: the short page ends the scan.
	assert.Len(t, h.gw.CallsOf("SearchMessages"), 3)
}

func TestProviderErrorEndsScan(t *testing.T) {
	h := newHarness(t, Options{PageSize: 2})
	h.gw.HistoryErr = errors.New("flood wait")

	events := h.run(t, Request{ChatID: chat})

	require.Len(t, events, 1)
	ended := events[0].(bus.ScanEnded)
	assert.Contains(t, ended.Error, "flood wait")
	assert.Len(t, h.gw.CallsOf("GetHistoryPage"), 1, "no automatic retry")
}

func TestStartRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.coord.Start(Request{ChatID: chat, Start: base, End: base.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, h.gw.Calls())
	assert.Empty(t, h.drain())
}

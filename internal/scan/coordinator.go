// Package scan runs preemptible history scans against the provider and
// streams normalized file batches to the event bus.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/normalize"
	"github.com/matheus3301/wpdl/internal/provider"
)

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("scan coordinator stopped")

// Options tunes pagination.
type Options struct {
	PageSize    int
	PageDelay   time.Duration
	GroupWindow int
	Policy      Policy
}

// OptionsFrom builds Options from the [scan] config section.
func OptionsFrom(c config.Scan) Options {
	return Options{
		PageSize:    c.PageSize,
		PageDelay:   c.PageDelay(),
		GroupWindow: c.GroupWindow,
		Policy: Policy{
			DefaultCap:           c.DefaultCap,
			UnlimitedWithFilters: c.UnlimitedWithFilters,
		},
	}
}

// Coordinator runs at most one scan at a time. Starting a scan supersedes
// the running one: its epoch is invalidated and its context cancelled.
type Coordinator struct {
	history provider.History
	gate    *bus.Gate
	exists  normalize.ExistsFunc
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New creates a coordinator emitting through gate. exists may be nil, in
// which case the real file system is consulted.
func New(history provider.History, gate *bus.Gate, exists normalize.ExistsFunc, opts Options, logger *zap.Logger) *Coordinator {
	if exists == nil {
		exists = normalize.FileExists
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.GroupWindow <= 0 {
		opts.GroupWindow = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		history: history,
		gate:    gate,
		exists:  exists,
		opts:    opts,
		logger:  logger,
	}
}

// Start validates req, supersedes any running scan and runs req in the
// background. Results are delivered through the bus. Returns the new epoch.
func (c *Coordinator) Start(req Request) (uint64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return 0, ErrStopped
	}
	if c.cancel != nil {
		c.cancel()
	}
	stream := c.gate.Open()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(ctx, stream, req)
	}()
	return stream.Epoch(), nil
}

// Stop supersedes the running scan and waits for it to exit. Later Start
// calls fail with ErrStopped.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.gate.Close()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Wait blocks until no scan is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

type cursor struct {
	from      int64
	inclusive bool
}

func (c *Coordinator) run(ctx context.Context, stream *bus.Stream, req Request) {
	log := c.logger.With(zap.Uint64("epoch", stream.Epoch()), zap.String("chat", req.ChatID))
	search := req.Search()
	limit := c.opts.Policy.EffectiveCap(req)
	log.Debug("scan started", zap.Bool("search", search), zap.Int("cap", limit))

	fail := func(err error) {
		if ctx.Err() != nil || !stream.Active() {
			return
		}
		log.Warn("scan failed", zap.Error(err))
		stream.Emit(bus.ScanEnded{Epoch: stream.Epoch(), Error: err.Error()})
	}

	var cur cursor
	if !search && !req.End.IsZero() {
		id, ok, err := c.history.ResolveMessageAtOrBeforeDate(ctx, req.ChatID, time.Unix(req.endLimit(), 0))
		if err != nil {
			fail(err)
			return
		}
		if !ok {
			stream.Emit(bus.ScanEnded{Epoch: stream.Epoch()})
			return
		}
		cur = cursor{from: id, inclusive: true}
	}

	seen := make(map[string]struct{})
	scanned, found := 0, 0
	for page := 0; ; page++ {
		if page > 0 && !sleep(ctx, c.opts.PageDelay) {
			return
		}
		if !stream.Active() {
			return
		}

		msgs, err := c.fetch(ctx, req, cur, search)
		if err != nil {
			fail(err)
			return
		}
		if len(msgs) == 0 {
			break
		}
		raw := len(msgs)
		oldest := msgs[raw-1]
		cur = cursor{from: oldest.ID}
		scanned += raw

		if search {
			msgs = c.expandGroups(ctx, stream, req.ChatID, msgs)
		}

		batch := normalize.Files(filterDates(req, msgs), c.exists)
		batch = dedup(batch, seen)
		if limit > 0 && found+len(batch) > limit {
			batch = batch[:limit-found]
		}
		found += len(batch)

		if !stream.Emit(bus.ScanProgress{Epoch: stream.Epoch(), Scanned: scanned, Found: found, Active: true}) {
			return
		}
		if len(batch) > 0 && !stream.Emit(bus.ScanBatch{Epoch: stream.Epoch(), Files: batch}) {
			return
		}

		if limit > 0 && found >= limit {
			break
		}
		if !search && !req.Start.IsZero() && oldest.Date < req.Start.Unix() {
			break
		}
		if search && raw < c.opts.PageSize {
			break
		}
	}
	log.Debug("scan ended", zap.Int("scanned", scanned), zap.Int("found", found))
	stream.Emit(bus.ScanEnded{Epoch: stream.Epoch()})
}

func (c *Coordinator) fetch(ctx context.Context, req Request, cur cursor, search bool) ([]provider.Message, error) {
	if search {
		return c.history.SearchMessages(ctx, provider.SearchRequest{
			ChatID:        req.ChatID,
			Query:         req.Query,
			Type:          req.Type,
			FromMessageID: cur.from,
			Limit:         c.opts.PageSize,
		})
	}
	return c.history.GetHistoryPage(ctx, provider.HistoryRequest{
		ChatID:        req.ChatID,
		FromMessageID: cur.from,
		Inclusive:     cur.inclusive,
		Limit:         c.opts.PageSize,
	})
}

func filterDates(req Request, msgs []provider.Message) []provider.Message {
	if !req.hasDates() {
		return msgs
	}
	out := msgs[:0:0]
	for _, m := range msgs {
		if req.admits(m.Date) {
			out = append(out, m)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

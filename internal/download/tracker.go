// Package download tracks user-requested downloads, turning provider file
// pushes into pause/resume/cancel semantics with a sampled speed estimate.
package download

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
)

// interactivePriority favors user-initiated downloads over background fetches.
const interactivePriority = 32

var (
	// ErrUnknownTask is returned for operations on untracked file ids.
	ErrUnknownTask = errors.New("unknown download")
	// ErrDiscarded is returned after the tracker's session was torn down.
	ErrDiscarded = errors.New("download tracker discarded")
)

// Options configures a Tracker.
type Options struct {
	Dir            string
	SampleInterval time.Duration
	Now            func() time.Time
}

// Tracker owns the download tasks of one session.
type Tracker struct {
	transfers provider.Transfers
	pub       bus.Publisher
	logger    *zap.Logger
	now       func() time.Time
	interval  time.Duration

	mu        sync.Mutex
	dir       string
	tasks     map[int64]*task
	finished  []model.DownloadTask
	seq       int
	discarded bool
}

type task struct {
	model.DownloadTask
	seq         int
	userPaused  bool
	sampleBytes int64
}

// New creates a tracker issuing transfers through t and publishing to pub.
func New(t provider.Transfers, pub bus.Publisher, opts Options, logger *zap.Logger) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 800 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		transfers: t,
		pub:       pub,
		logger:    logger,
		now:       opts.Now,
		interval:  opts.SampleInterval,
		dir:       opts.Dir,
		tasks:     make(map[int64]*task),
	}
}

// SetDir changes the destination directory, creating it if absent.
func (t *Tracker) SetDir(dir string) error {
	if err := PrepareDir(dir); err != nil {
		return err
	}
	t.mu.Lock()
	t.dir = dir
	t.mu.Unlock()
	return nil
}

// Dir returns the destination directory.
func (t *Tracker) Dir() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir
}

// Start registers a pending task and asks the provider for the file.
// Starting a tracked paused task resumes it; starting an active one is a no-op.
func (t *Tracker) Start(ctx context.Context, fileID int64, name string, size int64) error {
	t.mu.Lock()
	if t.discarded {
		t.mu.Unlock()
		return ErrDiscarded
	}
	if existing, ok := t.tasks[fileID]; ok {
		paused := existing.State == model.DownloadPaused
		t.mu.Unlock()
		if paused {
			return t.Resume(ctx, fileID)
		}
		return nil
	}
	t.seq++
	tk := &task{
		DownloadTask: model.DownloadTask{
			FileID: fileID,
			Name:   name,
			Size:   size,
			State:  model.DownloadPending,
		},
		seq: t.seq,
	}
	t.tasks[fileID] = tk
	t.publishProgress(tk)
	t.mu.Unlock()

	if err := t.transfers.DownloadFile(ctx, fileID, interactivePriority); err != nil {
		t.logger.Warn("download start failed", zap.Int64("file_id", fileID), zap.Error(err))
		t.fail(fileID, err)
		return fmt.Errorf("start download %d: %w", fileID, err)
	}
	return nil
}

// Pause stops the transfer without deleting bytes. Pausing a paused task is a no-op.
func (t *Tracker) Pause(ctx context.Context, fileID int64) error {
	t.mu.Lock()
	tk, ok := t.tasks[fileID]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownTask
	}
	if tk.State == model.DownloadPaused {
		tk.userPaused = true
		t.mu.Unlock()
		return nil
	}
	tk.userPaused = true
	tk.State = model.DownloadPaused
	tk.Speed = 0
	t.publishProgress(tk)
	t.mu.Unlock()

	if err := t.transfers.CancelDownload(ctx, fileID); err != nil {
		t.logger.Warn("pause failed", zap.Int64("file_id", fileID), zap.Error(err))
		return fmt.Errorf("pause download %d: %w", fileID, err)
	}
	return nil
}

// Resume restarts a paused transfer. Resuming an active task is a no-op.
func (t *Tracker) Resume(ctx context.Context, fileID int64) error {
	t.mu.Lock()
	tk, ok := t.tasks[fileID]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownTask
	}
	if tk.State != model.DownloadPaused {
		t.mu.Unlock()
		return nil
	}
	tk.userPaused = false
	tk.State = model.DownloadActive
	tk.Speed = 0
	tk.LastSampleAt = time.Time{}
	t.publishProgress(tk)
	t.mu.Unlock()

	if err := t.transfers.DownloadFile(ctx, fileID, interactivePriority); err != nil {
		t.logger.Warn("resume failed", zap.Int64("file_id", fileID), zap.Error(err))
		t.mu.Lock()
		if tk, ok := t.tasks[fileID]; ok && tk.State == model.DownloadActive {
			tk.userPaused = true
			tk.State = model.DownloadPaused
			t.publishProgress(tk)
		}
		t.mu.Unlock()
		return fmt.Errorf("resume download %d: %w", fileID, err)
	}
	return nil
}

// Cancel stops the transfer, deletes partial bytes and forgets the task.
// The cancelled terminal event is emitted even if the delete fails.
func (t *Tracker) Cancel(ctx context.Context, fileID int64) error {
	t.mu.Lock()
	tk, ok := t.tasks[fileID]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownTask
	}
	delete(t.tasks, fileID)
	tk.State = model.DownloadCancelled
	tk.Speed = 0
	t.finished = append(t.finished, tk.DownloadTask)
	t.mu.Unlock()

	var cancelErr error
	if err := t.transfers.CancelDownload(ctx, fileID); err != nil {
		t.logger.Warn("cancel failed", zap.Int64("file_id", fileID), zap.Error(err))
		cancelErr = fmt.Errorf("cancel download %d: %w", fileID, err)
	}
	if err := t.transfers.DeleteLocalFile(ctx, fileID); err != nil {
		t.logger.Debug("delete partial file", zap.Int64("file_id", fileID), zap.Error(err))
	}

	t.mu.Lock()
	if !t.discarded {
		t.pub.Publish(bus.DownloadTerminal{FileID: fileID, Status: model.DownloadCancelled})
	}
	t.mu.Unlock()
	return cancelErr
}

// PauseAll pauses every pending or downloading task.
func (t *Tracker) PauseAll(ctx context.Context) error {
	return t.each(ctx, t.Pause, model.DownloadPending, model.DownloadActive)
}

// ResumeAll resumes every paused task.
func (t *Tracker) ResumeAll(ctx context.Context) error {
	return t.each(ctx, t.Resume, model.DownloadPaused)
}

// CancelAll cancels every tracked task.
func (t *Tracker) CancelAll(ctx context.Context) error {
	return t.each(ctx, t.Cancel, model.DownloadPending, model.DownloadActive, model.DownloadPaused)
}

// each applies op to tasks in one of states. Individual failures are
// collected, not fatal.
func (t *Tracker) each(ctx context.Context, op func(context.Context, int64) error, states ...model.DownloadState) error {
	var errs []error
	for _, tk := range t.snapshot() {
		if !slices.Contains(states, tk.State) {
			continue
		}
		if err := op(ctx, tk.FileID); err != nil && !errors.Is(err, ErrUnknownTask) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearCompleted drops finished entries from the visible queue and returns their ids.
func (t *Tracker) ClearCompleted() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int64, len(t.finished))
	for i, f := range t.finished {
		ids[i] = f.FileID
	}
	t.finished = nil
	if len(ids) > 0 {
		t.pub.Publish(bus.DownloadsCleared{FileIDs: ids})
	}
	return ids
}

// List returns active tasks in start order followed by finished entries.
func (t *Tracker) List() []model.DownloadTask {
	out := t.snapshot()
	t.mu.Lock()
	out = append(out, t.finished...)
	t.mu.Unlock()
	return out
}

// Active returns the number of tracked non-terminal tasks.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

func (t *Tracker) snapshot() []model.DownloadTask {
	t.mu.Lock()
	tasks := make([]*task, 0, len(t.tasks))
	for _, tk := range t.tasks {
		tasks = append(tasks, tk)
	}
	t.mu.Unlock()
	slices.SortFunc(tasks, func(a, b *task) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]model.DownloadTask, len(tasks))
	for i, tk := range tasks {
		out[i] = tk.DownloadTask
	}
	return out
}

// Discard forgets every task without contacting the provider. Later
// pushes and commands are ignored or rejected.
func (t *Tracker) Discard() {
	t.mu.Lock()
	t.discarded = true
	t.tasks = make(map[int64]*task)
	t.finished = nil
	t.mu.Unlock()
}

// HandleFileUpdate applies a provider file push. Pushes for untracked files
// are expected traffic and ignored.
func (t *Tracker) HandleFileUpdate(fi provider.FileInfo) {
	t.mu.Lock()
	tk, ok := t.tasks[fi.ID]
	if !ok {
		t.mu.Unlock()
		return
	}
	now := t.now()
	tk.Downloaded = max(tk.Downloaded, fi.Local.DownloadedSize)
	if fi.Size > 0 {
		tk.Size = fi.Size
	}

	switch {
	case fi.Local.IsDownloadingCompleted:
		delete(t.tasks, fi.ID)
		tk.Downloaded = max(tk.Downloaded, tk.Size)
		tk.Speed = 0
		dir := t.dir
		t.mu.Unlock()
		t.complete(tk, fi.Local.Path, dir, now)
		return
	case fi.Local.IsDownloadingActive:
		if !tk.userPaused {
			tk.State = model.DownloadActive
			tk.sample(now, t.interval)
		}
	default:
		if !tk.userPaused {
			tk.State = model.DownloadPaused
		}
		tk.Speed = 0
		tk.LastSampleAt = time.Time{}
	}
	t.publishProgress(tk)
	t.mu.Unlock()
}

// sample recomputes speed at most once per interval; in between the
// previous estimate is kept.
func (tk *task) sample(now time.Time, interval time.Duration) {
	if tk.LastSampleAt.IsZero() {
		tk.LastSampleAt = now
		tk.sampleBytes = tk.Downloaded
		return
	}
	elapsed := now.Sub(tk.LastSampleAt)
	if elapsed < interval {
		return
	}
	delta := max(tk.Downloaded-tk.sampleBytes, 0)
	tk.Speed = float64(delta) / elapsed.Seconds()
	tk.LastSampleAt = now
	tk.sampleBytes = tk.Downloaded
}

func (t *Tracker) complete(tk *task, src, dir string, now time.Time) {
	log := t.logger.With(zap.Int64("file_id", tk.FileID))
	path, err := Place(src, dir, tk.Name, now)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		log.Error("placing downloaded file failed", zap.Error(err))
		tk.State = model.DownloadError
		tk.Error = err.Error()
	} else {
		log.Info("download completed", zap.String("path", path))
		tk.State = model.DownloadCompleted
		tk.Path = path
	}
	if t.discarded {
		return
	}
	t.finished = append(t.finished, tk.DownloadTask)
	t.pub.Publish(bus.DownloadProgress{Task: tk.DownloadTask})
	t.pub.Publish(bus.DownloadTerminal{FileID: tk.FileID, Status: tk.State, Path: tk.Path, Error: tk.Error})
}

func (t *Tracker) fail(fileID int64, cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tk, ok := t.tasks[fileID]
	if !ok {
		return
	}
	delete(t.tasks, fileID)
	tk.State = model.DownloadError
	tk.Error = cause.Error()
	t.finished = append(t.finished, tk.DownloadTask)
	t.pub.Publish(bus.DownloadTerminal{FileID: fileID, Status: model.DownloadError, Error: tk.Error})
}

// publishProgress must be called with t.mu held so that no progress event
// can follow the task's terminal event.
func (t *Tracker) publishProgress(tk *task) {
	t.pub.Publish(bus.DownloadProgress{Task: tk.DownloadTask})
}

package scan

import (
	"cmp"
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
)

// expandGroups completes albums whose members were only partially matched by
// search. Each distinct group is looked up around one representative hit;
// window members override bare hits by message id. The result is sorted
// newest first. A failed lookup keeps the bare hits.
func (c *Coordinator) expandGroups(ctx context.Context, stream *bus.Stream, chatID string, msgs []provider.Message) []provider.Message {
	reps := make(map[int64]int64)
	var groups []int64
	for _, m := range msgs {
		if m.GroupID == 0 {
			continue
		}
		if _, ok := reps[m.GroupID]; !ok {
			reps[m.GroupID] = m.ID
			groups = append(groups, m.GroupID)
		}
	}
	if len(groups) == 0 {
		return msgs
	}

	byID := make(map[int64]provider.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	for _, g := range groups {
		if !stream.Active() {
			break
		}
		window, err := c.history.GetMessageWindow(ctx, chatID, reps[g], c.opts.GroupWindow, c.opts.GroupWindow)
		if err != nil {
			c.logger.Debug("group expansion failed", zap.Int64("group", g), zap.Error(err))
			continue
		}
		for _, m := range window {
			if m.GroupID == g {
				byID[m.ID] = m
			}
		}
	}

	out := make([]provider.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b provider.Message) int {
		if d := cmp.Compare(b.Date, a.Date); d != 0 {
			return d
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// dedup drops files already emitted in this scan and records the rest.
func dedup(files []model.FileDescriptor, seen map[string]struct{}) []model.FileDescriptor {
	out := files[:0:0]
	for _, f := range files {
		if _, ok := seen[f.UniqueID]; ok {
			continue
		}
		seen[f.UniqueID] = struct{}{}
		out = append(out, f)
	}
	return out
}

package domain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"runnel.dev/pkg/runnel/internal/domain/mirror"
	m "runnel.dev/pkg/runnel/internal/model"
)

// DefaultPollInterval is how often RunQueue collects finished processes.
const DefaultPollInterval = 200 * time.Millisecond

// Selection narrows the runnables of a snapshot for a run.
type Selection struct {
	// IDs selects leaves directly and every function below a non-leaf id.
	// Empty selects every function.
	IDs []m.ID
	// Kinds keeps only functions of these kinds. Empty keeps all.
	Kinds []m.FuncKind
	// ShardIndex and ShardCount split the selection round-robin. A count
	// of zero disables sharding.
	ShardIndex int
	ShardCount int
}

// Select resolves sel against snap in tree order. Doctests are only kept
// when named directly, so the executor can report them.
func Select(snap *mirror.Snapshot, sel Selection) []m.Runnable {
	wanted := make(map[m.ID]struct{}, len(sel.IDs))
	for _, id := range sel.IDs {
		wanted[id] = struct{}{}
	}

	var out []m.Runnable

	for _, r := range snap.Runnables() {
		if len(wanted) > 0 {
			if _, direct := wanted[r.ID]; !direct && (!r.IsFunction() || !hasAncestor(snap, r.ID, wanted)) {
				continue
			}
		} else if !r.IsFunction() {
			continue
		}

		if len(sel.Kinds) > 0 && r.IsFunction() && !slices.Contains(sel.Kinds, r.FuncKind) {
			continue
		}

		out = append(out, r)
	}

	if sel.ShardCount <= 0 {
		return out
	}

	slog.Debug("Sharding runnables", "shardIndex", sel.ShardIndex, "shardCount", sel.ShardCount, "total", len(out))

	var shard []m.Runnable

	for i, r := range out {
		if i%sel.ShardCount == sel.ShardIndex {
			shard = append(shard, r)
		}
	}

	return shard
}

// ResolveIDs maps user supplied ids to nodes of snap. Each arg is either a
// full id or a prefix matching exactly one node.
func ResolveIDs(snap *mirror.Snapshot, args []string) ([]m.ID, error) {
	out := make([]m.ID, 0, len(args))

	for _, arg := range args {
		if _, ok := snap.Lookup(m.ID(arg)); ok {
			out = append(out, m.ID(arg))
			continue
		}

		var matches []m.ID

		for _, id := range snap.IDs() {
			if strings.HasPrefix(string(id), arg) {
				matches = append(matches, id)
			}
		}

		switch len(matches) {
		case 0:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, arg)
		case 1:
			out = append(out, matches[0])
		default:
			return nil, fmt.Errorf("%w: %s matches %d nodes", ErrAmbiguousID, arg, len(matches))
		}
	}

	return out, nil
}

func hasAncestor(snap *mirror.Snapshot, id m.ID, set map[m.ID]struct{}) bool {
	for {
		e, ok := snap.Lookup(id)
		if !ok || e.Parent == "" {
			return false
		}

		if _, ok := set[e.Parent]; ok {
			return true
		}

		id = e.Parent
	}
}

// QueueOptions configure RunQueue.
type QueueOptions struct {
	// Parallel bounds the processes running at once. Zero or less starts
	// everything immediately.
	Parallel     int
	PollInterval time.Duration
	// OnStart is told about every id a process was started for.
	OnStart func(id m.ID)
}

// RunQueue starts ids on ex, at most opts.Parallel at a time, and polls
// until all of them have finished. Every terminal status is passed to
// onStatus. Canceling ctx aborts what is still running.
func RunQueue(ctx context.Context, ex Executor, ids []m.ID, opts QueueOptions, onStatus func(m.RunStatus)) error {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	queue := slices.Clone(ids)
	mine := make(map[m.ID]struct{}, len(ids))

	report := func(st m.RunStatus) {
		if _, ok := mine[st.ID]; ok && onStatus != nil {
			onStatus(st)
		}
	}

	for {
		for _, st := range ex.Poll() {
			report(st)
		}

		free := len(queue)
		if opts.Parallel > 0 {
			free = min(free, opts.Parallel-len(ex.Running()))
		}

		if free > 0 {
			batch := queue[:free]
			queue = queue[free:]

			for _, id := range batch {
				mine[id] = struct{}{}
			}

			started := ex.Run(ctx, batch)
			results := ex.Results()

			for _, id := range batch {
				if slices.Contains(started, id) {
					if opts.OnStart != nil {
						opts.OnStart(id)
					}

					continue
				}

				if st, ok := results[id]; ok {
					report(st)
				}
			}
		}

		if len(queue) == 0 && len(ex.Running()) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			running := ex.Running()
			slog.Info("Run canceled", "aborting", len(running), "queued", len(queue))
			ex.Abort(running)

			return ctx.Err()
		case <-ticker.C:
		}
	}
}

package pressure

import (
	"context"
	"fmt"

	"github.com/app-appplayer/flutter-mcp-sub003/lifecycle"
	"github.com/app-appplayer/flutter-mcp-sub003/observe"
)

// Cleanup capabilities discovered on registered resource values. A value may
// implement any subset.
type (
	// Expirer drops entries past their TTL.
	Expirer interface{ RemoveExpiredEntries() int }

	// Trimmer shrinks an idle list toward its floor.
	Trimmer interface{ Trim() int }

	// Shrinker keeps only the given fraction of its entries.
	Shrinker interface{ Shrink(fraction float64) int }

	// HistoryClearer drops accumulated history buffers.
	HistoryClearer interface{ ClearHistory() }

	// Clearer drops all entries.
	Clearer interface{ Clear() }

	// Resetter returns to its initial state.
	Resetter interface{ Reset() }
)

// Index lists the resources the controller may clean up.
// *lifecycle.Manager satisfies it.
type Index interface {
	Entries() []lifecycle.Entry
}

// Action records one cleanup step applied to one resource.
type Action struct {
	Step    string `json:"step"`
	Key     string `json:"key"`
	Removed int    `json:"removed"`
}

// step is one cleanup action applied across every capable resource.
// apply reports whether v supports the step and how many items went away.
type step struct {
	name     string
	severity Severity
	apply    func(v any, fraction float64) (bool, int)
}

// steps is ordered by tier. Running the prefix whose severity does not exceed
// the sample's tier gives each tier a superset of the tiers below it.
var steps = []step{
	{"expire", SeverityLow, func(v any, _ float64) (bool, int) {
		x, ok := v.(Expirer)
		if !ok {
			return false, 0
		}
		return true, x.RemoveExpiredEntries()
	}},
	{"trim", SeverityLow, func(v any, _ float64) (bool, int) {
		x, ok := v.(Trimmer)
		if !ok {
			return false, 0
		}
		return true, x.Trim()
	}},
	{"shrink", SeverityMedium, func(v any, fraction float64) (bool, int) {
		x, ok := v.(Shrinker)
		if !ok {
			return false, 0
		}
		return true, x.Shrink(fraction)
	}},
	{"clear_history", SeverityMedium, func(v any, _ float64) (bool, int) {
		x, ok := v.(HistoryClearer)
		if !ok {
			return false, 0
		}
		x.ClearHistory()
		return true, 0
	}},
	{"clear", SeverityCritical, func(v any, _ float64) (bool, int) {
		x, ok := v.(Clearer)
		if !ok {
			return false, 0
		}
		x.Clear()
		return true, 0
	}},
	{"reset", SeverityCritical, func(v any, _ float64) (bool, int) {
		x, ok := v.(Resetter)
		if !ok {
			return false, 0
		}
		x.Reset()
		return true, 0
	}},
}

// cleanup runs every step up to sev across entries. A panicking step is
// recorded and the remaining steps still run.
func (c *Controller) cleanup(ctx context.Context, sev Severity, entries []lifecycle.Entry) ([]Action, []error) {
	var (
		actions []Action
		errs    []error
	)
	for _, s := range steps {
		if s.severity > sev {
			break
		}
		for _, e := range entries {
			if e.Value == nil {
				continue
			}
			ok, removed, err := runStep(s, e.Value, c.cfg.ShrinkFraction)
			if err != nil {
				err = fmt.Errorf("%s %q: %w", s.name, e.Key, err)
				errs = append(errs, err)
				c.logger.Error(ctx, "cleanup step failed",
					observe.F("step", s.name),
					observe.F("key", e.Key),
					observe.F("type", e.Type),
					observe.Err(err))
				continue
			}
			if ok {
				actions = append(actions, Action{Step: s.name, Key: e.Key, Removed: removed})
			}
		}
	}
	return actions, errs
}

func runStep(s step, v any, fraction float64) (ok bool, removed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanic, r)
		}
	}()
	ok, removed = s.apply(v, fraction)
	return ok, removed, nil
}

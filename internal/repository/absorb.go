package repository

import (
	"context"
	"sort"

	"github.com/jjcore/jjcore/internal/types"
)

// AbsorbOptions configures the `absorb` operation.
type AbsorbOptions struct {
	Paths  []string // restrict absorption to these paths; empty means all
	DryRun bool
}

// AbsorbPlan reports, per path, which ancestor a change's content would be
// folded into.
type AbsorbPlan struct {
	Path   string
	Target string // ChangeId the content would be folded into
}

// Absorb folds the working copy's pending edits into the nearest
// ancestor that last touched each path, file by file (not line by line):
// for every changed path it walks the first-parent chain looking for the
// closest ancestor whose FileSnapshot already contains that path, and
// moves the new content there instead of leaving it in the working
// copy's own change. Paths with no such ancestor (new files) are left in
// place. DryRun reports the plan without mutating anything.
func (r *Repository) Absorb(ctx context.Context, opts AbsorbOptions) ([]AbsorbPlan, error) {
	if opts.DryRun {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return nil, err
		}
		return r.planAbsorb(cur, opts.Paths)
	}

	var result []AbsorbPlan
	err := r.withMutation(ctx, "absorb", func() error {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		plan, err := r.planAbsorb(cur, opts.Paths)
		if err != nil {
			return err
		}

		curChange, err := r.requireChange(cur)
		if err != nil {
			return err
		}
		curChange = curChange.Clone()

		targets := make(map[string]*types.Change)
		for _, step := range plan {
			target, ok := targets[step.Target]
			if !ok {
				target, err = r.requireChange(step.Target)
				if err != nil {
					return err
				}
				target = target.Clone()
				targets[step.Target] = target
			}
			target.FileSnapshot[step.Path] = curChange.FileSnapshot[step.Path]
			delete(curChange.FileSnapshot, step.Path)
		}

		ids := make([]string, 0, len(targets))
		for id := range targets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			target := targets[id]
			target.Committer = r.user.identity(r.clock())
			if err := r.synthesizeCommitIfNeeded(ctx, target); err != nil {
				return err
			}
			if err := r.graph.Update(target); err != nil {
				return err
			}
		}
		if len(targets) > 0 {
			curChange.Committer = r.user.identity(r.clock())
			if err := r.synthesizeCommitIfNeeded(ctx, curChange); err != nil {
				return err
			}
			if err := r.graph.Update(curChange); err != nil {
				return err
			}
		}
		result = plan
		return nil
	})
	return result, err
}

func (r *Repository) planAbsorb(changeID string, scope []string) ([]AbsorbPlan, error) {
	ch, err := r.requireChange(changeID)
	if err != nil {
		return nil, err
	}
	if len(ch.Parents) == 0 {
		return nil, nil
	}

	want := make(map[string]bool, len(scope))
	for _, p := range scope {
		want[p] = true
	}

	var plan []AbsorbPlan
	for path := range ch.FileSnapshot {
		if len(want) > 0 && !want[path] {
			continue
		}
		target := r.nearestOwner(ch.Parents[0], path)
		if target == "" {
			continue
		}
		plan = append(plan, AbsorbPlan{Path: path, Target: target})
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].Path < plan[j].Path })
	return plan, nil
}

// nearestOwner walks the first-parent chain starting at id looking for
// the closest ancestor whose FileSnapshot already contains path.
func (r *Repository) nearestOwner(id, path string) string {
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		seen[id] = true
		ch, err := r.graph.Get(id)
		if err != nil {
			return ""
		}
		if _, ok := ch.FileSnapshot[path]; ok {
			return id
		}
		if len(ch.Parents) == 0 {
			return ""
		}
		id = ch.Parents[0]
	}
	return ""
}

package repository

import (
	"sort"

	"github.com/jjcore/jjcore/internal/jjerrors"
)

// bisectState tracks an in-progress bisection: the sets of known-good and
// known-bad changes, narrowing until one candidate remains.
type bisectState struct {
	good map[string]bool
	bad  map[string]bool
}

// BisectStatus reports the current narrowing of an active bisection.
type BisectStatus struct {
	Candidates []string
	Next       string // suggested change to test, "" when done
	Found      string // the culprit, "" until the range narrows to one
}

// BisectStart begins a bisection between known-good and known-bad
// changes. Fails if a bisection is already active.
func (r *Repository) BisectStart(good, bad []string) (*BisectStatus, error) {
	if r.bisect != nil {
		return nil, jjerrors.New(jjerrors.CodeBisectAlreadyActive, "a bisection is already active")
	}
	if len(good) == 0 || len(bad) == 0 {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "bisect requires at least one good and one bad change")
	}
	st := &bisectState{good: make(map[string]bool), bad: make(map[string]bool)}
	for _, id := range good {
		if !r.graph.Exists(id) {
			return nil, jjerrors.Newf(jjerrors.CodeChangeNotFound, "change %s not found", id)
		}
		st.good[id] = true
	}
	for _, id := range bad {
		if !r.graph.Exists(id) {
			return nil, jjerrors.Newf(jjerrors.CodeChangeNotFound, "change %s not found", id)
		}
		st.bad[id] = true
	}
	r.bisect = st
	return r.bisectStatus()
}

// BisectMark records the test outcome for one change and re-narrows.
func (r *Repository) BisectMark(changeID string, good bool) (*BisectStatus, error) {
	if r.bisect == nil {
		return nil, jjerrors.New(jjerrors.CodeBisectNotActive, "no bisection is active")
	}
	if !r.graph.Exists(changeID) {
		return nil, jjerrors.Newf(jjerrors.CodeChangeNotFound, "change %s not found", changeID)
	}
	if good {
		r.bisect.good[changeID] = true
	} else {
		r.bisect.bad[changeID] = true
	}
	return r.bisectStatus()
}

// BisectReset abandons the active bisection.
func (r *Repository) BisectReset() error {
	if r.bisect == nil {
		return jjerrors.New(jjerrors.CodeBisectNotActive, "no bisection is active")
	}
	r.bisect = nil
	return nil
}

// bisectStatus computes the candidate set: ancestors of every bad change
// (inclusive) that are not ancestors of (or equal to) a good change.
func (r *Repository) bisectStatus() (*BisectStatus, error) {
	st := r.bisect

	excluded := make(map[string]bool)
	for id := range st.good {
		excluded[id] = true
		for _, a := range r.graph.Ancestors(id) {
			excluded[a] = true
		}
	}

	// The culprit is an ancestor of (or equal to) every bad change, so
	// intersect the bad changes' inclusive ancestor sets before removing
	// the good side.
	var candidates map[string]bool
	for id := range st.bad {
		reach := map[string]bool{id: true}
		for _, a := range r.graph.Ancestors(id) {
			reach[a] = true
		}
		if candidates == nil {
			candidates = reach
			continue
		}
		for c := range candidates {
			if !reach[c] {
				delete(candidates, c)
			}
		}
	}
	for c := range candidates {
		if excluded[c] {
			delete(candidates, c)
		}
	}

	out := make([]string, 0, len(candidates))
	for id := range candidates {
		out = append(out, id)
	}
	sort.Strings(out)

	status := &BisectStatus{Candidates: out}
	switch len(out) {
	case 0:
	case 1:
		status.Found = out[0]
		r.bisect = nil
	default:
		// Suggest the middle entry of the ChangeId-sorted candidate
		// list. The pick ignores graph topology, so one mark does not
		// necessarily halve the candidates.
		status.Next = out[len(out)/2]
	}
	return status, nil
}

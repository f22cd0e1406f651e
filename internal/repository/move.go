package repository

import (
	"context"
	"regexp"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/types"
)

var changeIDShape = regexp.MustCompile(`^[0-9a-f]{32}$`)

// MoveArgs is the polymorphic argument shape the original move(args)
// surface accepted. The detection rule in Repository.Move splits it
// back into RebaseChange or RenameFile, raising AmbiguousOperation rather
// than guessing when it cannot tell which was meant.
type MoveArgs struct {
	ChangeID  string
	NewParent string
	Paths     []string
	From      string
	To        string
}

// Move dispatches the polymorphic argument shape: the presence of
// ChangeID, NewParent, or Paths forces history (rebase) semantics;
// otherwise From/To is file-rename semantics. Two 32-hex arguments with
// none of those signals present is ambiguous and fails outright.
func (r *Repository) Move(ctx context.Context, args MoveArgs) (*types.Change, error) {
	historySignaled := args.ChangeID != "" || args.NewParent != "" || len(args.Paths) > 0
	if historySignaled {
		changeID := args.ChangeID
		newParent := args.NewParent
		if changeID == "" {
			changeID = args.From
		}
		if newParent == "" {
			newParent = args.To
		}
		return r.RebaseChange(ctx, changeID, newParent)
	}

	if args.From == "" && args.To == "" {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "move requires either changeId/newParent/paths or from/to")
	}
	if changeIDShape.MatchString(args.From) && changeIDShape.MatchString(args.To) {
		return nil, jjerrors.New(jjerrors.CodeAmbiguousOperation,
			"both arguments look like change ids; cannot tell a file rename from a rebase").
			WithSuggestion("pass changeId and newParent explicitly to rebase, or use distinct file paths to rename")
	}
	return nil, r.RenameFile(ctx, args.From, args.To)
}

// RebaseChange reparents changeID onto newParent, rejecting self-parenting
// and any edge that would close a cycle.
func (r *Repository) RebaseChange(ctx context.Context, changeID, newParent string) (*types.Change, error) {
	if changeID == "" || newParent == "" {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "rebase requires both changeId and newParent")
	}
	if changeID == newParent {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "a change cannot be rebased onto itself")
	}
	var result *types.Change
	err := r.withMutation(ctx, "rebase "+shortID(changeID)+" onto "+shortID(newParent), func() error {
		ch, err := r.requireChange(changeID)
		if err != nil {
			return err
		}
		if _, err := r.requireChange(newParent); err != nil {
			return err
		}
		for _, a := range r.graph.Ancestors(newParent) {
			if a == changeID {
				return jjerrors.Newf(jjerrors.CodeInvalidArgument, "rebasing %s onto %s would create a cycle", changeID, newParent)
			}
		}
		ch = ch.Clone()
		ch.Parents = []string{newParent}
		if err := r.graph.Update(ch); err != nil {
			return err
		}
		result = ch
		return nil
	})
	return result, err
}

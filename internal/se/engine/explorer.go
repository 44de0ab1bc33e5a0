package engine

import (
	"context"

	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/tree"
)

// BehaviorExplorer computes callee behaviors for a behavior.Cache by running
// the walker without checks.
type BehaviorExplorer struct {
	Options Options
}

var _ behavior.Explorer = (*BehaviorExplorer)(nil)

func (e *BehaviorExplorer) Explore(ctx context.Context, proc *tree.Procedure, cache *behavior.Cache) (*behavior.Behavior, error) {
	opts := e.Options
	opts.Checks = nil
	opts.Behaviors = cache
	res, err := New(opts).Explore(ctx, proc, nil)
	if err != nil {
		return nil, err
	}
	return res.Behavior, nil
}

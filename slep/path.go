package slep

import (
	"context"
	"runtime"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// PathOptions controls TrainPath.
type PathOptions struct {
	// Parallelism bounds concurrent runs; values below 1 mean GOMAXPROCS.
	Parallelism int
	Hooks       Hooks
}

// TrainPath trains one model per z in zs, running independent solves
// concurrently. prob and rel are shared read-only; every run gets its own
// Parameter copy. The first failure cancels runs that have not started yet
// and is returned; models[i] belongs to zs[i].
func TrainPath(ctx context.Context, prob *Problem, param *Parameter, rel Relation, zs []float64, opts PathOptions) ([]*Model, error) {
	for i, z := range zs {
		if err := checkZ(z); err != nil {
			return nil, errors.Wrapf(err, "zs[%d]", i)
		}
	}
	if err := prob.checkSorted(); err != nil {
		return nil, err
	}
	if rel != nil {
		numFeatures := prob.N
		if prob.Bias >= 0 {
			numFeatures--
		}
		if err := rel.Validate(numFeatures); err != nil {
			return nil, err
		}
	}

	limit := opts.Parallelism
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}
	models := make([]*Model, len(zs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, z := range zs {
		p := param.Copy()
		p.z = z
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			model, err := TrainWithHooks(prob, p, rel, opts.Hooks)
			if err != nil {
				return errors.Wrapf(err, "z=%g", z)
			}
			models[i] = model
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return models, nil
}

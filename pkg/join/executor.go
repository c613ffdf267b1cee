package join

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/util"
)

// BlockSource hands blocks to concurrent workers. Next returns nil when
// the source is exhausted.
type BlockSource interface {
	Next(ctx context.Context) (*chunk.Chunk, error)
}

type sliceSource struct {
	_mu     sync.Mutex
	_blocks []*chunk.Chunk
	_idx    int
}

func NewSliceSource(blocks []*chunk.Chunk) BlockSource {
	return &sliceSource{_blocks: blocks}
}

func (src *sliceSource) Next(ctx context.Context) (*chunk.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src._mu.Lock()
	defer src._mu.Unlock()
	if src._idx >= len(src._blocks) {
		return nil, nil
	}
	blk := src._blocks[src._idx]
	src._idx++
	return blk, nil
}

// Executor drives a finalized HashJoin through build, probe and scan with
// the configured worker counts.
type Executor struct {
	_hj     *HashJoin
	_pool   *ants.Pool
	_sinkMu sync.Mutex
	_sink   func(*chunk.Chunk) error
}

func NewExecutor(hj *HashJoin) (*Executor, error) {
	size := max(hj._settings.BuildConcurrency, hj._settings.ProbeConcurrency)
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, errors.Wrap(err, "create join worker pool")
	}
	return &Executor{_hj: hj, _pool: pool}, nil
}

func (e *Executor) Close() {
	e._pool.Release()
}

// Run joins probe against build and passes every result block to sink.
// Calls to sink are serialized.
func (e *Executor) Run(ctx context.Context, build, probe BlockSource, sink func(*chunk.Chunk) error) error {
	hj := e._hj
	e._sink = sink
	settings := hj._settings
	start := time.Now()

	hj.InitBuild()
	err := e.runWorkers(ctx, settings.BuildConcurrency, func(ctx context.Context, worker int) error {
		for {
			blk, err := build.Next(ctx)
			if err != nil {
				return err
			}
			if blk == nil {
				break
			}
			if err = hj.BuildRowFromBlock(blk, worker); err != nil {
				return err
			}
		}
		_, err := hj.FinishOneBuildRow(worker)
		return err
	})
	if err != nil {
		return err
	}

	err = e.runWorkers(ctx, settings.BuildConcurrency, func(ctx context.Context, worker int) error {
		for !hj.BuildPointerTable(worker) {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	util.Info("hash join build finished",
		zap.Int("rows", hj.BuildRowCount()),
		zap.Duration("elapsed", time.Since(start)))

	hj.InitProbe()
	err = e.runWorkers(ctx, settings.ProbeConcurrency, func(ctx context.Context, worker int) error {
		pctx := NewProbeContext()
		for {
			blk, err := probe.Next(ctx)
			if err != nil {
				return err
			}
			if blk == nil {
				break
			}
			pctx.ResetBlock(blk)
			for !pctx.IsAllFinished() {
				if err = ctx.Err(); err != nil {
					return err
				}
				res, err := hj.ProbeBlock(pctx, worker)
				if err != nil {
					return err
				}
				if err = e.emit(res); err != nil {
					return err
				}
			}
		}
		if err := e.emit(hj.ProbeLastResultBlock(worker)); err != nil {
			return err
		}
		_, err := hj.FinishOneProbe(worker)
		return err
	})
	if err != nil {
		return err
	}

	if hj.NeedScanAfterProbe() {
		err = e.runWorkers(ctx, settings.ProbeConcurrency, func(ctx context.Context, worker int) error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, done := hj.ScanAfterProbe(worker)
				if err := e.emit(res); err != nil {
					return err
				}
				if done {
					return nil
				}
			}
		})
		if err != nil {
			return err
		}
	}
	util.Info("hash join finished",
		zap.String("kind", hj._kind.String()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (e *Executor) emit(blk *chunk.Chunk) error {
	if blk.Card() == 0 || e._sink == nil {
		return nil
	}
	e._sinkMu.Lock()
	defer e._sinkMu.Unlock()
	return e._sink(blk)
}

// runWorkers runs fn for workers [0, n) on the pool and returns the first
// error. A failure cancels the context seen by the other workers.
func (e *Executor) runWorkers(ctx context.Context, n int, fn func(ctx context.Context, worker int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	setErr := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for w := 0; w < n; w++ {
		worker := w
		wg.Add(1)
		err := e._pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					setErr(util.ConvertPanicError(r))
				}
			}()
			if err := fn(ctx, worker); err != nil {
				util.Error("hash join worker failed",
					zap.Int("worker", worker),
					util.GoID(),
					zap.Error(err))
				setErr(err)
			}
		})
		if err != nil {
			wg.Done()
			setErr(errors.Wrap(err, "submit join worker"))
			break
		}
	}
	wg.Wait()
	return firstErr
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tidwall/btree"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/join"
	"github.com/daviszhen/hashjoin/pkg/source"
	"github.com/daviszhen/hashjoin/pkg/util"
)

type resultRow struct {
	line string
	seq  int
}

func resultLess(a, b resultRow) bool {
	if a.line != b.line {
		return a.line < b.line
	}
	return a.seq < b.seq
}

type runner struct {
	cfg      *util.Config
	settings *join.Settings
	out      io.Writer
}

func (run *runner) run(ctx context.Context, job *Job) error {
	start := time.Now()
	var leftBlocks, rightBlocks []*chunk.Chunk
	grp, _ := errgroup.WithContext(ctx)
	grp.Go(func() error {
		var err error
		leftBlocks, err = source.ReadAll(&job.Left, run.settings.MaxBlockSize)
		return err
	})
	grp.Go(func() error {
		var err error
		rightBlocks, err = source.ReadAll(&job.Right, run.settings.MaxBlockSize)
		return err
	})
	if err := grp.Wait(); err != nil {
		return err
	}
	if run.cfg.Debug.ShowRaw {
		for _, blk := range append(util.CopyTo(leftBlocks), rightBlocks...) {
			fmt.Fprint(run.out, blk.String())
		}
	}
	loadTime := time.Since(start)

	leftSchema, err := job.Left.Schema()
	if err != nil {
		return err
	}
	rightSchema, err := job.Right.Schema()
	if err != nil {
		return err
	}
	params, err := job.params(leftSchema, rightSchema, run.settings)
	if err != nil {
		return err
	}
	hj, err := join.NewHashJoin(params)
	if err != nil {
		return err
	}
	defer hj.Close()
	var required []string
	if len(job.Output) != 0 {
		required = job.Output
	}
	if err = hj.Finalize(required); err != nil {
		return err
	}

	exec, err := join.NewExecutor(hj)
	if err != nil {
		return err
	}
	defer exec.Close()

	sorted := btree.NewBTreeG[resultRow](resultLess)
	var unsorted []string
	total := 0
	err = exec.Run(ctx,
		join.NewSliceSource(rightBlocks),
		join.NewSliceSource(leftBlocks),
		func(blk *chunk.Chunk) error {
			for i := 0; i < blk.Card(); i++ {
				line := formatRow(blk.Row(i))
				if run.cfg.Debug.SortResult {
					sorted.Set(resultRow{line: line, seq: total})
				} else {
					unsorted = append(unsorted, line)
				}
				total++
			}
			return nil
		})
	if err != nil {
		return err
	}
	util.Info("join job finished",
		zap.Int("resultRows", total),
		zap.Duration("loadTime", loadTime),
		zap.Duration("totalTime", time.Since(start)))

	if run.cfg.Debug.PrintExplain {
		fmt.Fprintln(run.out, hj.Explain())
	}
	if !run.cfg.Debug.PrintResult {
		return nil
	}
	fmt.Fprintln(run.out, strings.Join(hj.OutputSchema().Names, "\t"))
	limit := run.cfg.Debug.MaxOutputRowCount
	printed := 0
	printLine := func(line string) bool {
		if limit > 0 && printed >= limit {
			return false
		}
		fmt.Fprintln(run.out, line)
		printed++
		return true
	}
	if run.cfg.Debug.SortResult {
		sorted.Scan(func(row resultRow) bool {
			return printLine(row.line)
		})
	} else {
		for _, line := range unsorted {
			if !printLine(line) {
				break
			}
		}
	}
	fmt.Fprintf(run.out, "(%d rows)\n", total)
	return nil
}

func formatRow(vals []*chunk.Value) string {
	strs := make([]string, len(vals))
	for i, val := range vals {
		strs[i] = val.String()
	}
	return strings.Join(strs, "\t")
}

package join

import (
	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/expression"
)

// semiProbeHelper decides one result per probe row, then emits the rows in
// a resumable pass. Without other condition a chain walk stops at the
// first equal key.
type semiProbeHelper struct {
	_hj *HashJoin
}

func (h *semiProbeHelper) probe(ctx *ProbeContext, wd *probeWorkerData) error {
	for {
		switch ctx._state {
		case probeStateFresh, probeStateMatching:
			if err := h.matchAll(ctx, wd); err != nil {
				return err
			}
			ctx._state = probeStateEmit
			ctx._emitRow = 0
		case probeStateEmit:
			if !h.emit(ctx, wd) {
				return nil
			}
			ctx._state = probeStateDone
		default:
			return nil
		}
	}
}

func (h *semiProbeHelper) matchAll(ctx *ProbeContext, wd *probeWorkerData) error {
	hj := h._hj
	ctx._semi = ctx._semi[:0]
	for i := 0; i < ctx._rows; i++ {
		ctx._semi = append(ctx._semi, semiFalse)
	}
	ctx._state = probeStateMatching
	if hj._otherCond == nil {
		for row := 0; row < ctx._rows; row++ {
			ctx._semi[row] = h.matchNoCondition(ctx, wd, row)
		}
		ctx._row = ctx._rows
		return nil
	}

	maxBatch := hj._settings.MaxBlockSize
	wd._candLeft = wd._candLeft[:0]
	wd._candRows = wd._candRows[:0]
	for row := 0; row < ctx._rows; row++ {
		if ctx.excluded(row) {
			continue
		}
		for ptr := hj.chainHead(ctx, row); ptr != 0; {
			buildRow := hj.rowAt(ptr)
			ptr = rowNext(buildRow)
			if !hj.matchRow(ctx, row, buildRow) {
				continue
			}
			wd._candLeft = append(wd._candLeft, row)
			wd._candRows = append(wd._candRows, buildRow)
			if len(wd._candLeft) < maxBatch {
				continue
			}
			if err := h.evalBatch(ctx, wd); err != nil {
				return err
			}
			if ctx._semi[row] == semiTrue {
				break
			}
		}
	}
	ctx._row = ctx._rows
	return h.evalBatch(ctx, wd)
}

func (h *semiProbeHelper) matchNoCondition(ctx *ProbeContext, wd *probeWorkerData, row int) semiResult {
	hj := h._hj
	if ctx._filtered[row] {
		return semiFalse
	}
	if ctx._keyNull[row] {
		if hj._na == nil {
			return semiFalse
		}
		return hj._na.nullKeyResult(h.probeKeyTuple(ctx, row), wd._colls)
	}
	for ptr := hj.chainHead(ctx, row); ptr != 0; {
		buildRow := hj.rowAt(ptr)
		if hj.matchRow(ctx, row, buildRow) {
			return semiTrue
		}
		ptr = rowNext(buildRow)
	}
	if hj._na != nil {
		return hj._na.noMatchResult(h.probeKeyTuple(ctx, row), wd._colls)
	}
	return semiFalse
}

func (h *semiProbeHelper) probeKeyTuple(ctx *ProbeContext, row int) []*chunk.Value {
	keyCols := make([]*chunk.Vector, len(h._hj._leftKeys))
	for i, name := range h._hj._leftKeys {
		keyCols[i] = ctx._block.Column(name)
	}
	return keyTuple(keyCols, row)
}

// evalBatch folds the other condition of the pending candidates into the
// row results: true wins, null beats false.
func (h *semiProbeHelper) evalBatch(ctx *ProbeContext, wd *probeWorkerData) error {
	if len(wd._candLeft) == 0 {
		return nil
	}
	hj := h._hj
	res, err := hj.evalOtherCondition(ctx, wd, len(hj._layout.OtherColumns))
	if err != nil {
		return err
	}
	for i, row := range wd._candLeft {
		switch {
		case ctx._semi[row] == semiTrue:
		case res.IsNull(i):
			ctx._semi[row] = semiNull
		case expression.IsTrue(res, i):
			ctx._semi[row] = semiTrue
		}
	}
	wd._candLeft = wd._candLeft[:0]
	wd._candRows = wd._candRows[:0]
	return nil
}

// emit writes the rows the kind keeps. It returns false when the result
// block filled up first.
func (h *semiProbeHelper) emit(ctx *ProbeContext, wd *probeWorkerData) bool {
	hj := h._hj
	room := hj._settings.MaxBlockSize - wd._result.Card()
	wd._selLeft = wd._selLeft[:0]
	for ctx._emitRow < ctx._rows && len(wd._selLeft) < room {
		row := ctx._emitRow
		ctx._emitRow++
		res := ctx._semi[row]
		keep := false
		switch hj._kind {
		case Semi:
			keep = res == semiTrue
		case Anti:
			keep = res != semiTrue
		case NullAwareAnti:
			keep = res == semiFalse
		default:
			keep = true
		}
		if keep {
			wd._selLeft = append(wd._selLeft, row)
		}
	}
	base := wd._result.Card()
	hj.emitPairs(ctx, wd, wd._selLeft, nil)
	if hj._helperPos >= 0 {
		helper := wd._result.Data[hj._helperPos]
		for i, row := range wd._selLeft {
			helper.SetValue(base+i, helperValue(hj._kind, ctx._semi[row]))
		}
	}
	return ctx._emitRow >= ctx._rows
}

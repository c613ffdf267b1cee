package join

import (
	"github.com/daviszhen/hashjoin/pkg/expression"
)

// generalProbeHelper serves inner, outer and right semi kinds. With late
// materialization the build columns only needed for output are decoded
// after the other condition pruned the candidates.
type generalProbeHelper struct {
	_hj *HashJoin
	_lm bool
}

func (h *generalProbeHelper) probe(ctx *ProbeContext, wd *probeWorkerData) error {
	hj := h._hj
	maxBlock := hj._settings.MaxBlockSize
	emits := outputHasLeft(hj._kind) && outputHasRight(hj._kind)
	for {
		switch ctx._state {
		case probeStateFresh, probeStateMatching:
			capacity := maxBlock
			if emits {
				capacity -= wd._result.Card()
			}
			if capacity <= 0 {
				return nil
			}
			h.collect(ctx, wd, capacity)
			if err := h.flush(ctx, wd); err != nil {
				return err
			}
			if ctx._row >= ctx._rows {
				ctx._state = probeStateEmit
				ctx._fillRow = 0
			}
		case probeStateEmit:
			if hj._otherCond == nil || !isLeftOuterJoin(hj._kind) {
				ctx._state = probeStateDone
				continue
			}
			//rows without surviving match
			wd._selLeft = wd._selLeft[:0]
			room := maxBlock - wd._result.Card()
			for ctx._fillRow < ctx._rows && len(wd._selLeft) < room {
				if !ctx._matched[ctx._fillRow] {
					wd._selLeft = append(wd._selLeft, ctx._fillRow)
				}
				ctx._fillRow++
			}
			hj.emitPairs(ctx, wd, wd._selLeft, nil)
			if ctx._fillRow < ctx._rows {
				return nil
			}
			ctx._state = probeStateDone
		default:
			return nil
		}
	}
}

// collect walks chains and gathers at most capacity candidates. Without
// other condition, unmatched rows of left outer kinds are gathered inline
// with a nil build row.
func (h *generalProbeHelper) collect(ctx *ProbeContext, wd *probeWorkerData, capacity int) {
	hj := h._hj
	inlineUnmatched := hj._otherCond == nil && isLeftOuterJoin(hj._kind)
	wd._candLeft = wd._candLeft[:0]
	wd._candRows = wd._candRows[:0]
	for ctx._row < ctx._rows && len(wd._candLeft) < capacity {
		row := ctx._row
		if ctx._state == probeStateFresh {
			if ctx.excluded(row) {
				if inlineUnmatched {
					wd._candLeft = append(wd._candLeft, row)
					wd._candRows = append(wd._candRows, nil)
				}
				ctx._row++
				continue
			}
			ctx._ptr = hj.chainHead(ctx, row)
			ctx._curMatched = false
			ctx._state = probeStateMatching
		}
		for ctx._ptr != 0 && len(wd._candLeft) < capacity {
			buildRow := hj.rowAt(ctx._ptr)
			ctx._ptr = rowNext(buildRow)
			if hj.matchRow(ctx, row, buildRow) {
				wd._candLeft = append(wd._candLeft, row)
				wd._candRows = append(wd._candRows, buildRow)
				ctx._curMatched = true
			}
		}
		if ctx._ptr != 0 {
			//resume this chain in the next round
			return
		}
		if inlineUnmatched && !ctx._curMatched {
			if len(wd._candLeft) >= capacity {
				return
			}
			wd._candLeft = append(wd._candLeft, row)
			wd._candRows = append(wd._candRows, nil)
		}
		ctx._row++
		ctx._state = probeStateFresh
	}
}

// flush applies the other condition to the candidates and emits survivors.
func (h *generalProbeHelper) flush(ctx *ProbeContext, wd *probeWorkerData) error {
	hj := h._hj
	n := len(wd._candLeft)
	if n == 0 {
		return nil
	}
	layout := hj._layout
	otherCnt := len(layout.OtherColumns)
	wd._sel = wd._sel[:0]
	if hj._otherCond != nil {
		decodeTo := otherCnt
		if h._lm {
			decodeTo = layout.OtherColumnCountForOtherCondition
		}
		res, err := hj.evalOtherCondition(ctx, wd, decodeTo)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if expression.IsTrue(res, i) {
				wd._sel = append(wd._sel, i)
			}
		}
		if h._lm && decodeTo < otherCnt {
			ctx._state = probeStateMaterializeOther
			for _, i := range wd._sel {
				layout.decodeOthers(wd._candRows[i], wd._rightTemp, i, decodeTo, otherCnt)
			}
			ctx._state = probeStateMatching
		}
	} else if !outputHasLeft(hj._kind) {
		for i := 0; i < n; i++ {
			wd._sel = append(wd._sel, i)
		}
	} else {
		rt := wd._rightTemp
		rt.Reset()
		rt.Reserve(n)
		for i, row := range wd._candRows {
			wd._sel = append(wd._sel, i)
			if row == nil {
				for pos := range rt.Data {
					rt.Data[pos].SetNull(i, true)
				}
				continue
			}
			layout.decodeRawKeys(row, rt, i)
			layout.decodeOthers(row, rt, i, 0, otherCnt)
		}
		rt.SetCard(n)
	}

	markRight := isRightOuterJoin(hj._kind) || isRightSemiFamily(hj._kind)
	wd._selLeft = wd._selLeft[:0]
	for _, i := range wd._sel {
		left := wd._candLeft[i]
		wd._selLeft = append(wd._selLeft, left)
		ctx._matched[left] = true
		if markRight && wd._candRows[i] != nil {
			markMatched(wd._candRows[i])
		}
	}
	if outputHasLeft(hj._kind) && outputHasRight(hj._kind) {
		hj.emitPairs(ctx, wd, wd._selLeft, wd._sel)
	}
	wd._candLeft = wd._candLeft[:0]
	wd._candRows = wd._candRows[:0]
	return nil
}

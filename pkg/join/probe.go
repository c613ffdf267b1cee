package join

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/collate"
	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/expression"
	"github.com/daviszhen/hashjoin/pkg/util"
)

type probeState int

const (
	probeStateFresh probeState = iota
	probeStateMatching
	probeStateMaterializeOther
	probeStateEmit
	probeStateDone
)

func (s probeState) String() string {
	switch s {
	case probeStateFresh:
		return "fresh"
	case probeStateMatching:
		return "matching"
	case probeStateMaterializeOther:
		return "materialize_other"
	case probeStateEmit:
		return "emit"
	case probeStateDone:
		return "done"
	}
	return "unknown"
}

// ProbeContext is the cursor of one probe worker over its current block.
type ProbeContext struct {
	_block    *chunk.Chunk
	_rows     int
	_state    probeState
	_prepared bool

	_keyNull  []bool
	_filtered []bool
	_keyBuf   []byte
	_keyOffs  []int
	_hashes   []uint64

	_heads      []rowPtr
	_headsBegin int
	_headsEnd   int

	//current row and the next chain row to visit
	_row        int
	_ptr        rowPtr
	_curMatched bool
	_matched    []bool
	_fillRow    int

	_semi    []semiResult
	_emitRow int
}

func NewProbeContext() *ProbeContext {
	return &ProbeContext{_state: probeStateDone}
}

// ResetBlock starts probing block. The previous block must be finished.
func (ctx *ProbeContext) ResetBlock(block *chunk.Chunk) {
	util.Assertf(ctx.IsAllFinished(), "reset probe context in state %s", ctx._state)
	ctx._block = block
	ctx._rows = block.Card()
	ctx._state = probeStateFresh
	ctx._prepared = false
	ctx._row = 0
	ctx._ptr = 0
	ctx._curMatched = false
	ctx._fillRow = 0
	ctx._emitRow = 0
	ctx._headsBegin = 0
	ctx._headsEnd = 0
}

func (ctx *ProbeContext) IsAllFinished() bool {
	return ctx._state == probeStateDone
}

func (ctx *ProbeContext) excluded(row int) bool {
	return ctx._keyNull[row] || ctx._filtered[row]
}

func (ctx *ProbeContext) key(row int) []byte {
	return ctx._keyBuf[ctx._keyOffs[row]:ctx._keyOffs[row+1]]
}

type probeWorkerData struct {
	_getter    KeyGetter
	_colls     []collate.Collator
	_condExec  *expression.ExprExec
	_result    *chunk.Chunk
	_rightTemp *chunk.Chunk
	_leftTemp  *chunk.Chunk
	_candLeft  []int
	_candRows  [][]byte
	_sel       []int
	_selLeft   []int

	_probeTime       time.Duration
	_probeHandleRows int
	_resultRows      int

	_scanContainer *RowContainer
	_scanRow       int
}

type probeHelper interface {
	// probe fills the worker's result until it is full or ctx is done.
	probe(ctx *ProbeContext, wd *probeWorkerData) error
}

func (hj *HashJoin) newResultBlock() *chunk.Chunk {
	return chunk.NewChunkWithSchema(hj._outputSchema, hj._settings.MaxBlockSize)
}

// InitProbe prepares the probe workers. The pointer table must be built.
func (hj *HashJoin) InitProbe() {
	util.Assertf(hj._pt != nil && hj._pt.built(), "InitProbe before the pointer table is built")
	util.Assertf(!hj._probeInited, "InitProbe called twice")
	conc := hj._settings.ProbeConcurrency
	maxBlock := hj._settings.MaxBlockSize
	var condLeft *chunk.Schema
	if hj._otherCond != nil {
		condLeft = hj._leftPruned.Filter(func(name string) bool {
			return hj._otherCondColumns[name]
		})
	}
	hj._probeWorkers = make([]*probeWorkerData, conc)
	for i := range hj._probeWorkers {
		colls := cloneCollators(hj._collators)
		wd := &probeWorkerData{
			_getter:    newKeyGetter(hj._method, hj._keyTypes, colls),
			_colls:     colls,
			_result:    hj.newResultBlock(),
			_rightTemp: chunk.NewChunkWithSchema(hj._rightPruned, maxBlock),
		}
		if hj._otherCond != nil {
			wd._condExec = expression.NewExprExec(hj._otherCond)
			wd._leftTemp = chunk.NewChunkWithSchema(condLeft, maxBlock)
		}
		hj._probeWorkers[i] = wd
	}
	hj._activeProbeWorkers.Store(int64(conc))
	hj._probeInited = true
}

func (hj *HashJoin) prepareProbe(ctx *ProbeContext, wd *probeWorkerData) {
	block := ctx._block
	n := ctx._rows
	keyCols := make([]*chunk.Vector, len(hj._leftKeys))
	for i, name := range hj._leftKeys {
		keyCols[i] = blockColumn(block, name, hj._keyTypes[i])
	}
	for i, name := range hj._leftPruned.Names {
		blockColumn(block, name, hj._leftPruned.Types[i])
	}
	var filter *chunk.Vector
	if hj._leftFilter != "" {
		filter = blockColumn(block, hj._leftFilter, common.BooleanType())
	}
	wd._getter.Reset(keyCols)
	ctx._keyNull = util.Grow(ctx._keyNull, n)
	ctx._filtered = util.Grow(ctx._filtered, n)
	ctx._keyOffs = util.Grow(ctx._keyOffs, n+1)
	ctx._hashes = util.Grow(ctx._hashes, n)
	ctx._matched = util.Grow(ctx._matched, n)
	clear(ctx._matched)
	ctx._keyBuf = ctx._keyBuf[:0]
	for i := 0; i < n; i++ {
		ctx._keyNull[i] = false
		for _, col := range keyCols {
			if col.IsNull(i) {
				ctx._keyNull[i] = true
				break
			}
		}
		ctx._filtered[i] = filter != nil && !expression.IsTrue(filter, i)
		ctx._keyOffs[i] = len(ctx._keyBuf)
		ctx._hashes[i] = 0
		if !ctx._keyNull[i] {
			key := wd._getter.Key(i)
			ctx._keyBuf = append(ctx._keyBuf, key...)
			ctx._hashes[i] = wd._getter.Hash(key)
		}
	}
	ctx._keyOffs[n] = len(ctx._keyBuf)
	ctx._prepared = true
}

// chainHead returns the first row of the bucket of row. With prefetch on,
// bucket heads are loaded for a window of rows at once.
func (hj *HashJoin) chainHead(ctx *ProbeContext, row int) rowPtr {
	if !hj._pt._prefetch {
		return hj._pt.head(ctx._hashes[row])
	}
	if row < ctx._headsBegin || row >= ctx._headsEnd {
		ctx._headsBegin = row
		ctx._headsEnd = min(ctx._rows, row+hj._settings.ProbePrefetchStep)
		ctx._heads = util.Grow(ctx._heads, ctx._headsEnd-ctx._headsBegin)
		for r := ctx._headsBegin; r < ctx._headsEnd; r++ {
			if ctx.excluded(r) {
				ctx._heads[r-ctx._headsBegin] = 0
				continue
			}
			ctx._heads[r-ctx._headsBegin] = hj._pt.head(ctx._hashes[r])
		}
	}
	return ctx._heads[row-ctx._headsBegin]
}

// matchRow reports whether the build row has the key of probe row.
func (hj *HashJoin) matchRow(ctx *ProbeContext, probeRow int, row []byte) bool {
	return rowHash(row) == ctx._hashes[probeRow] &&
		string(hj._layout.rowKey(row)) == string(ctx.key(probeRow))
}

// ProbeBlock probes the block of ctx. It returns a full result block, or
// nil when the rows produced so far are held for later calls.
func (hj *HashJoin) ProbeBlock(ctx *ProbeContext, worker int) (*chunk.Chunk, error) {
	util.Assertf(hj._probeInited, "ProbeBlock before InitProbe")
	if _, err := util.Inject(util.FAULTS_SCOPE_JOIN, failPointRandomProbe); err != nil {
		return nil, errors.Wrapf(err, "probe worker %d", worker)
	}
	wd := hj._probeWorkers[worker]
	if ctx.IsAllFinished() {
		return nil, nil
	}
	start := time.Now()
	defer func() {
		wd._probeTime += time.Since(start)
	}()
	if !ctx._prepared {
		hj.prepareProbe(ctx, wd)
	}
	if err := hj._helper.probe(ctx, wd); err != nil {
		return nil, err
	}
	if ctx.IsAllFinished() {
		wd._probeHandleRows += ctx._rows
	}
	if wd._result.Card() >= hj._settings.MaxBlockSize {
		return hj.takeResult(wd), nil
	}
	return nil, nil
}

func (hj *HashJoin) takeResult(wd *probeWorkerData) *chunk.Chunk {
	ret := wd._result
	wd._resultRows += ret.Card()
	wd._result = hj.newResultBlock()
	return ret
}

// ProbeLastResultBlock returns the rows still held by the worker, or nil.
func (hj *HashJoin) ProbeLastResultBlock(worker int) *chunk.Chunk {
	wd := hj._probeWorkers[worker]
	if wd._result.Card() == 0 {
		return nil
	}
	return hj.takeResult(wd)
}

// FinishOneProbe ends one probe worker. It returns true to the last one.
func (hj *HashJoin) FinishOneProbe(worker int) (bool, error) {
	wd := hj._probeWorkers[worker]
	util.Debug("hash join probe worker finished",
		zap.Int("worker", worker),
		zap.Int("probeHandleRows", wd._probeHandleRows),
		zap.Int("resultRows", wd._resultRows),
		zap.Duration("probeTime", wd._probeTime),
		util.GoID())
	if _, err := util.Inject(util.FAULTS_SCOPE_JOIN, failPointProbe); err != nil {
		return false, errors.Wrapf(err, "probe worker %d", worker)
	}
	if hj._activeProbeWorkers.Add(-1) != 0 {
		return false, nil
	}
	hj._probeFinished.Store(true)
	return true, nil
}

func (hj *HashJoin) IsProbeFinished() bool {
	return hj._probeFinished.Load()
}

// evalOtherCondition evaluates the other condition over the candidates in
// wd. The build columns of the candidates are decoded into wd._rightTemp
// up to OtherColumns[:decodeTo].
func (hj *HashJoin) evalOtherCondition(ctx *ProbeContext, wd *probeWorkerData, decodeTo int) (*chunk.Vector, error) {
	n := len(wd._candLeft)
	rt := wd._rightTemp
	rt.Reset()
	rt.Reserve(n)
	for i, row := range wd._candRows {
		hj._layout.decodeRawKeys(row, rt, i)
		hj._layout.decodeOthers(row, rt, i, 0, decodeTo)
	}
	rt.SetCard(n)

	lt := wd._leftTemp
	lt.Reset()
	lt.Reserve(n)
	for j, name := range lt.Names {
		chunk.Copy(ctx._block.Column(name), wd._candLeft, n, lt.Data[j], 0)
	}
	lt.SetCard(n)

	cond := &chunk.Chunk{Count: n}
	cond.Names = append(cond.Names, lt.Names...)
	cond.Data = append(cond.Data, lt.Data...)
	for _, col := range hj._condRight {
		cond.Names = append(cond.Names, col.Name)
		cond.Data = append(cond.Data, rt.Data[col.SrcPos])
	}
	res, err := wd._condExec.Execute(cond)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate other condition")
	}
	return res, nil
}

// emitPairs appends probe rows selLeft joined with rightTemp rows selRight.
// A nil selRight pads the build side with NULLs.
func (hj *HashJoin) emitPairs(ctx *ProbeContext, wd *probeWorkerData, selLeft, selRight []int) {
	cnt := len(selLeft)
	if cnt == 0 {
		return
	}
	result := wd._result
	base := result.Card()
	result.Reserve(base + cnt)
	for _, col := range hj._outLeft {
		chunk.Copy(ctx._block.Column(col.Name), selLeft, cnt, result.Data[col.OutPos], base)
	}
	for _, col := range hj._outRight {
		if selRight == nil {
			chunk.AppendNulls(result.Data[col.OutPos], base, cnt)
			continue
		}
		chunk.Copy(wd._rightTemp.Data[col.SrcPos], selRight, cnt, result.Data[col.OutPos], base)
	}
	result.SetCard(base + cnt)
}

func markMatched(row []byte) {
	flag := rowMatched(row)
	if flag.Load() == 0 {
		flag.Store(1)
	}
}

// ScanAfterProbe emits the build rows the kind asks for once every probe
// worker finished: unmatched rows for outer and anti kinds, matched rows
// for right semi. It returns true with the last rows.
func (hj *HashJoin) ScanAfterProbe(worker int) (*chunk.Chunk, bool) {
	util.Assertf(needScanAfterProbe(hj._kind), "%s join has no scan after probe", hj._kind)
	util.Assertf(hj._probeFinished.Load(), "ScanAfterProbe before all probe workers finished")
	wd := hj._probeWorkers[worker]
	maxBlock := hj._settings.MaxBlockSize
	wantMatched := hj._kind == RightSemi
	wd._candRows = wd._candRows[:0]
	done := false
	for len(wd._candRows) < maxBlock {
		rc := wd._scanContainer
		if rc == nil || wd._scanRow >= rc.RowCount() {
			rc = hj.claimScanContainer()
			wd._scanContainer = rc
			wd._scanRow = 0
			if rc == nil {
				done = true
				break
			}
			continue
		}
		row := rc.rowAt(int(rc._offsets[wd._scanRow]))
		wd._scanRow++
		if (rowMatched(row).Load() != 0) == wantMatched {
			wd._candRows = append(wd._candRows, row)
		}
	}

	n := len(wd._candRows)
	result := hj.newResultBlock()
	if n == 0 {
		return result, done
	}
	rt := wd._rightTemp
	rt.Reset()
	rt.Reserve(n)
	wd._sel = wd._sel[:0]
	for i, row := range wd._candRows {
		hj._layout.decodeRawKeys(row, rt, i)
		hj._layout.decodeOthers(row, rt, i, 0, len(hj._layout.OtherColumns))
		wd._sel = append(wd._sel, i)
	}
	rt.SetCard(n)
	result.Reserve(n)
	for _, col := range hj._outLeft {
		chunk.AppendNulls(result.Data[col.OutPos], 0, n)
	}
	for _, col := range hj._outRight {
		chunk.Copy(rt.Data[col.SrcPos], wd._sel, n, result.Data[col.OutPos], 0)
	}
	result.SetCard(n)
	wd._resultRows += n
	return result, done
}

func (hj *HashJoin) claimScanContainer() *RowContainer {
	hj._scanMu.Lock()
	defer hj._scanMu.Unlock()
	for hj._scanPartition < len(hj._partitions) {
		if rc := hj._partitions[hj._scanPartition].claimForScan(); rc != nil {
			return rc
		}
		hj._scanPartition++
	}
	return nil
}

func helperValue(kind JoinKind, res semiResult) *chunk.Value {
	typ := common.TinyintType()
	if res == semiNull {
		return chunk.NullValue(typ)
	}
	matched := res == semiTrue
	if isAntiKind(kind) {
		matched = !matched
	}
	val := &chunk.Value{Typ: typ}
	if matched {
		val.I64 = 1
	}
	return val
}

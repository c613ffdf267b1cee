// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package join

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring"
	treemap "github.com/liyue201/gostl/ds/map"
	"github.com/pkg/errors"
	"github.com/xlab/treeprint"
	"go.uber.org/zap"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/collate"
	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/expression"
	"github.com/daviszhen/hashjoin/pkg/util"
)

const (
	failPointBuild          = "exception_mpp_hash_build"
	failPointProbe          = "exception_mpp_hash_probe"
	failPointRandomProbe    = "random_join_prob_failpoint"
	failPointForceEnableLM  = "force_join_v2_probe_enable_lm"
	failPointForceDisableLM = "force_join_v2_probe_disable_lm"
)

// HashJoinParams describe one join. Left is the probe side, right the
// build side.
type HashJoinParams struct {
	Kind      JoinKind
	Left      *chunk.Schema
	Right     *chunk.Schema
	LeftKeys  []string
	RightKeys []string
	// per key collation name, empty means binary
	Collations []string
	// evaluated on candidate pairs after key equality
	OtherCondition *expression.Expr
	// boolean columns; rows where they are not true never match
	LeftFilterColumn  string
	RightFilterColumn string
	MatchHelperName   string
	Settings          *Settings
	Alloc             util.BytesAllocator
}

// outColumn maps an output position to its source column.
type outColumn struct {
	OutPos int
	// left column name or pruned right position
	Name   string
	SrcPos int
}

type buildWorkerData struct {
	_getter        KeyGetter
	_local         [JoinBuildPartitionCount + 1]*RowContainer
	_tagged        bool
	_rows          int
	_notInsertRows int
	_bytes         int
	_lmRowSize     int
	_lmRowCount    int
	_buildTime     time.Duration
	_ptDone        bool
}

type HashJoin struct {
	_kind           JoinKind
	_left           *chunk.Schema
	_right          *chunk.Schema
	_leftKeys       []string
	_rightKeys      []string
	_keyTypes       []common.LType
	_collators      []collate.Collator
	_otherCond      *expression.Expr
	_leftFilter     string
	_rightFilter    string
	_matchHelper    string
	_settings       *Settings
	_alloc          util.BytesAllocator
	_hasNullAwareEq bool

	//set by Finalize
	_finalized        bool
	_outputSchema     *chunk.Schema
	_requiredLeft     []string
	_requiredRight    []string
	_leftPruned       *chunk.Schema
	_rightPruned      *chunk.Schema
	_otherCondColumns map[string]bool
	_outLeft          []outColumn
	_outRight         []outColumn
	_helperPos        int
	_condLeft         []string
	_condRight        []outColumn

	//build
	_buildInited        bool
	_method             KeyMethod
	_keyFixedSize       int
	_layout             *RowLayout
	_partitions         []*MultipleRowContainer
	_buildWorkers       []*buildWorkerData
	_activeBuildWorkers atomic.Int64
	_buildFinished      atomic.Bool
	_totalRows          int
	_tagged             bool
	_lm                 bool
	_pt                 *PointerTable
	_helper             probeHelper
	_na                 *nullAwareChannel

	//probe
	_probeInited        bool
	_probeWorkers       []*probeWorkerData
	_activeProbeWorkers atomic.Int64
	_probeFinished      atomic.Bool
	_scanMu             sync.Mutex
	_scanPartition      int
}

func NewHashJoin(params *HashJoinParams) (*HashJoin, error) {
	if len(params.LeftKeys) != len(params.RightKeys) {
		return nil, errors.Errorf("left keys %v and right keys %v differ in count",
			params.LeftKeys, params.RightKeys)
	}
	if len(params.Collations) != 0 && len(params.Collations) != len(params.RightKeys) {
		return nil, errors.Errorf("%d collations for %d keys",
			len(params.Collations), len(params.RightKeys))
	}
	if isNullAwareSemiFamily(params.Kind) && params.OtherCondition != nil {
		return nil, errors.Errorf("%s join does not support other condition", params.Kind)
	}
	hj := &HashJoin{
		_kind:        params.Kind,
		_left:        params.Left.Clone(),
		_right:       params.Right.Clone(),
		_leftKeys:    util.CopyTo(params.LeftKeys),
		_rightKeys:   util.CopyTo(params.RightKeys),
		_otherCond:   params.OtherCondition.Copy(),
		_leftFilter:  params.LeftFilterColumn,
		_rightFilter: params.RightFilterColumn,
		_matchHelper: params.MatchHelperName,
		_alloc:       params.Alloc,
		_helperPos:   -1,
	}
	hj._hasNullAwareEq = isNullAwareSemiFamily(hj._kind)
	if hj._matchHelper == "" {
		hj._matchHelper = DefaultMatchHelperName
	}
	if hj._alloc == nil {
		hj._alloc = util.GAlloc
	}
	if params.Settings != nil {
		hj._settings = params.Settings.Clone()
	} else {
		hj._settings = DefaultSettings()
	}
	hj._settings.fillDefaults()

	for i := range hj._leftKeys {
		if !hj._left.Has(hj._leftKeys[i]) {
			return nil, errors.Errorf("no left key column %s", hj._leftKeys[i])
		}
		if !hj._right.Has(hj._rightKeys[i]) {
			return nil, errors.Errorf("no right key column %s", hj._rightKeys[i])
		}
		lt := hj._left.TypeOf(hj._leftKeys[i])
		rt := hj._right.TypeOf(hj._rightKeys[i])
		if !lt.Equal(rt) {
			return nil, errors.Errorf("key %s %s and %s %s differ in type",
				hj._leftKeys[i], lt, hj._rightKeys[i], rt)
		}
		hj._keyTypes = append(hj._keyTypes, rt)
		name := ""
		if len(params.Collations) != 0 {
			name = params.Collations[i]
		}
		coll, err := collate.New(name)
		if err != nil {
			return nil, errors.Wrapf(err, "key %s", hj._rightKeys[i])
		}
		hj._collators = append(hj._collators, coll)
	}
	for _, filter := range []struct {
		name   string
		schema *chunk.Schema
	}{{hj._leftFilter, hj._left}, {hj._rightFilter, hj._right}} {
		if filter.name == "" {
			continue
		}
		if !filter.schema.Has(filter.name) || filter.schema.TypeOf(filter.name).Id != common.LTID_BOOLEAN {
			return nil, errors.Errorf("filter column %s must be a boolean column", filter.name)
		}
	}
	if hj._otherCond != nil {
		for _, name := range hj._otherCond.Columns() {
			inLeft, inRight := hj._left.Has(name), hj._right.Has(name)
			if inLeft == inRight {
				return nil, errors.Errorf("other condition column %s must come from exactly one side", name)
			}
		}
	}
	joined := hj.joinedSchema()
	seen := make(map[string]bool)
	for _, name := range joined.Names {
		if seen[name] {
			return nil, errors.Errorf("duplicate output column %s", name)
		}
		seen[name] = true
	}
	return hj, nil
}

func (hj *HashJoin) joinedSchema() *chunk.Schema {
	ret := &chunk.Schema{}
	if outputHasLeft(hj._kind) {
		for i, name := range hj._left.Names {
			ret.Add(name, hj._left.Types[i])
		}
	}
	if outputHasRight(hj._kind) {
		for i, name := range hj._right.Names {
			ret.Add(name, hj._right.Types[i])
		}
	}
	if isLeftOuterSemiFamily(hj._kind) {
		ret.Add(hj._matchHelper, common.TinyintType())
	}
	return ret
}

// Finalize fixes the output columns from the consumer's demand. A nil
// required keeps every column. Later calls are no-ops.
func (hj *HashJoin) Finalize(required []string) error {
	if hj._finalized {
		return nil
	}
	joined := hj.joinedSchema()
	if required == nil {
		required = joined.Names
	}
	reqSet := make(map[string]bool)
	for _, name := range required {
		if !joined.Has(name) {
			return errors.Errorf("required column %s is not produced by the %s join", name, hj._kind)
		}
		reqSet[name] = true
	}
	hj._outputSchema = joined.Filter(func(name string) bool {
		return reqSet[name]
	})

	hj._otherCondColumns = make(map[string]bool)
	if hj._otherCond != nil {
		for _, name := range hj._otherCond.Columns() {
			hj._otherCondColumns[name] = true
		}
	}
	isLeftOut := func(name string) bool {
		return outputHasLeft(hj._kind) && reqSet[name]
	}
	isRightOut := func(name string) bool {
		return outputHasRight(hj._kind) && reqSet[name]
	}
	hj._leftPruned = hj._left.Filter(func(name string) bool {
		return isLeftOut(name) || hj._otherCondColumns[name]
	})
	hj._rightPruned = hj._right.Filter(func(name string) bool {
		return isRightOut(name) || (hj._otherCondColumns[name] && !hj._left.Has(name))
	})

	//input columns ordered by their position in left ++ right
	inputs := treemap.New[int, string](func(a, b int) int {
		return a - b
	})
	addLeft := func(name string) {
		if name != "" {
			inputs.Insert(hj._left.IndexOf(name), name)
		}
	}
	addRight := func(name string) {
		if name != "" {
			inputs.Insert(hj._left.Len()+hj._right.IndexOf(name), name)
		}
	}
	for _, name := range hj._leftPruned.Names {
		addLeft(name)
	}
	for _, name := range hj._rightPruned.Names {
		addRight(name)
	}
	for i := range hj._leftKeys {
		addLeft(hj._leftKeys[i])
		addRight(hj._rightKeys[i])
	}
	addLeft(hj._leftFilter)
	addRight(hj._rightFilter)
	hj._requiredLeft = hj._requiredLeft[:0]
	hj._requiredRight = hj._requiredRight[:0]
	for iter := inputs.Begin(); iter.IsValid(); iter.Next() {
		if iter.Key() < hj._left.Len() {
			hj._requiredLeft = append(hj._requiredLeft, iter.Value())
		} else {
			hj._requiredRight = append(hj._requiredRight, iter.Value())
		}
	}

	for outPos, name := range hj._outputSchema.Names {
		switch {
		case isLeftOuterSemiFamily(hj._kind) && name == hj._matchHelper:
			hj._helperPos = outPos
		case outputHasLeft(hj._kind) && hj._left.Has(name):
			hj._outLeft = append(hj._outLeft, outColumn{OutPos: outPos, Name: name})
		default:
			hj._outRight = append(hj._outRight, outColumn{OutPos: outPos, Name: name, SrcPos: hj._rightPruned.IndexOf(name)})
		}
	}
	for _, name := range hj._leftPruned.Names {
		if hj._otherCondColumns[name] {
			hj._condLeft = append(hj._condLeft, name)
		}
	}
	for pos, name := range hj._rightPruned.Names {
		if hj._otherCondColumns[name] {
			hj._condRight = append(hj._condRight, outColumn{Name: name, SrcPos: pos})
		}
	}
	hj._finalized = true
	return nil
}

func (hj *HashJoin) OutputSchema() *chunk.Schema {
	return hj._outputSchema
}

// RequiredLeftColumns are the probe columns every probe block must carry.
func (hj *HashJoin) RequiredLeftColumns() []string {
	return hj._requiredLeft
}

// RequiredRightColumns are the build columns every build block must carry.
func (hj *HashJoin) RequiredRightColumns() []string {
	return hj._requiredRight
}

func (hj *HashJoin) Settings() *Settings {
	return hj._settings
}

func (hj *HashJoin) Kind() JoinKind {
	return hj._kind
}

func (hj *HashJoin) KeyMethod() KeyMethod {
	return hj._method
}

func (hj *HashJoin) RowLayout() *RowLayout {
	return hj._layout
}

func (hj *HashJoin) LateMaterialization() bool {
	return hj._lm
}

func (hj *HashJoin) TaggedPointer() bool {
	return hj._tagged
}

func (hj *HashJoin) PointerTableSize() int {
	if hj._pt == nil {
		return 0
	}
	return hj._pt.Size()
}

func (hj *HashJoin) BuildRowCount() int {
	return hj._totalRows
}

func (hj *HashJoin) NeedScanAfterProbe() bool {
	return needScanAfterProbe(hj._kind)
}

// InitBuild prepares the containers and the build workers.
func (hj *HashJoin) InitBuild() {
	util.Assertf(hj._finalized, "InitBuild before Finalize")
	util.Assertf(!hj._buildInited, "InitBuild called twice")
	kinds := make([]collate.Kind, len(hj._collators))
	for i, c := range hj._collators {
		kinds[i] = c.Kind()
	}
	hj._method, hj._keyFixedSize = SelectKeyMethod(hj._keyTypes, kinds)
	hj._layout = planRowLayout(hj._method, hj._rightKeys, hj._keyTypes,
		hj._rightPruned, hj._otherCondColumns, hj._keyFixedSize)
	hj._partitions = make([]*MultipleRowContainer, JoinBuildPartitionCount+1)
	for i := range hj._partitions {
		hj._partitions[i] = &MultipleRowContainer{}
	}
	conc := hj._settings.BuildConcurrency
	hj._buildWorkers = make([]*buildWorkerData, conc)
	for i := range hj._buildWorkers {
		hj._buildWorkers[i] = &buildWorkerData{
			_getter: newKeyGetter(hj._method, hj._keyTypes, cloneCollators(hj._collators)),
			_tagged: true,
		}
	}
	hj._activeBuildWorkers.Store(int64(conc))
	hj._pt = &PointerTable{}
	if hj._hasNullAwareEq {
		hj._na = newNullAwareChannel(len(hj._keyTypes))
	}
	hj._buildInited = true
	util.Info("hash join init build",
		zap.String("kind", hj._kind.String()),
		zap.String("method", hj._method.String()),
		zap.Int("rawKeyColumns", len(hj._layout.RawKeyColumns)),
		zap.Int("otherColumns", len(hj._layout.OtherColumns)),
		zap.Int("buildConcurrency", conc))
}

func (hj *HashJoin) worker(wd *buildWorkerData, partition int) *RowContainer {
	rc := wd._local[partition]
	if rc != nil && !rc.full() {
		return rc
	}
	rc = newRowContainer(hj._alloc)
	idx := hj._partitions[partition].register(rc)
	util.Assertf(idx+1 < 1<<untaggedContainerBits, "too many row containers in partition %d", partition)
	if idx+1 >= maxTaggedContainers {
		wd._tagged = false
	}
	wd._local[partition] = rc
	return rc
}

// BuildRowFromBlock serializes the rows of a build block into the
// worker's containers.
func (hj *HashJoin) BuildRowFromBlock(block *chunk.Chunk, worker int) error {
	util.Assertf(hj._buildInited, "BuildRowFromBlock before InitBuild")
	util.Assertf(!hj._buildFinished.Load(), "BuildRowFromBlock after build finished")
	wd := hj._buildWorkers[worker]
	start := time.Now()
	defer func() {
		wd._buildTime += time.Since(start)
	}()
	count := block.Card()
	if count == 0 {
		return nil
	}
	keyCols := make([]*chunk.Vector, len(hj._rightKeys))
	for i, name := range hj._rightKeys {
		keyCols[i] = blockColumn(block, name, hj._keyTypes[i])
	}
	cols := make([]*chunk.Vector, hj._rightPruned.Len())
	for i, name := range hj._rightPruned.Names {
		cols[i] = blockColumn(block, name, hj._rightPruned.Types[i])
	}

	nullKeys := roaring.New()
	filtered := roaring.New()
	var filter *chunk.Vector
	if hj._rightFilter != "" {
		filter = blockColumn(block, hj._rightFilter, common.BooleanType())
	}
	for i := 0; i < count; i++ {
		for _, col := range keyCols {
			if col.IsNull(i) {
				nullKeys.Add(uint32(i))
				break
			}
		}
		if filter != nil && !expression.IsTrue(filter, i) {
			filtered.Add(uint32(i))
		}
	}
	if hj._na != nil {
		hj._na.addBlock(keyCols, count, nullKeys, filtered)
	}
	excluded := roaring.Or(nullKeys, filtered)
	recordNotInsert := needRecordNotInsertRows(hj._kind)

	wd._getter.Reset(keyCols)
	for i := 0; i < count; i++ {
		isExcluded := excluded.Contains(uint32(i))
		if isExcluded && !recordNotInsert {
			continue
		}
		key := wd._getter.Key(i)
		partition := notInsertPartition
		var hash uint64
		if !isExcluded {
			hash = wd._getter.Hash(key)
			partition = int(hash % JoinBuildPartitionCount)
		}
		sz, lmSize := hj._layout.rowSize(key, cols, i)
		rc := hj.worker(wd, partition)
		dst, err := rc.allocRow(sz)
		if err != nil {
			util.Error("hash join build row failed",
				zap.Int("worker", worker),
				zap.Int("rowSize", sz),
				util.GoID(),
				zap.Error(err))
			return err
		}
		hj._layout.encodeRow(dst, hash, key, cols, i)
		wd._bytes += sz
		if partition == notInsertPartition {
			wd._notInsertRows++
			continue
		}
		wd._rows++
		wd._lmRowSize += lmSize
		wd._lmRowCount++
	}
	return nil
}

// blockColumn returns the named column of a runtime block, which must
// have the type fixed by Finalize.
func blockColumn(block *chunk.Chunk, name string, typ common.LType) *chunk.Vector {
	col := block.Column(name)
	util.Assertf(col.Typ().Equal(typ), "column %s is %s in block, expect %s", name, col.Typ(), typ)
	return col
}

// FinishOneBuildRow ends the row phase of one build worker. It returns
// true to exactly one caller, the last one, after the pointer table is
// set up.
func (hj *HashJoin) FinishOneBuildRow(worker int) (bool, error) {
	wd := hj._buildWorkers[worker]
	util.Debug("hash join build worker finished",
		zap.Int("worker", worker),
		zap.Int("rows", wd._rows),
		zap.Int("notInsertRows", wd._notInsertRows),
		zap.Int("bytes", wd._bytes),
		zap.Duration("buildTime", wd._buildTime),
		util.GoID())
	if _, err := util.Inject(util.FAULTS_SCOPE_JOIN, failPointBuild); err != nil {
		return false, errors.Wrapf(err, "build worker %d", worker)
	}
	if hj._activeBuildWorkers.Add(-1) != 0 {
		return false, nil
	}
	hj.workAfterBuildRowFinish()
	return true, nil
}

func (hj *HashJoin) workAfterBuildRowFinish() {
	tagged := hj._settings.EnableTaggedPointer
	lmSize, lmCount := 0, 0
	for _, wd := range hj._buildWorkers {
		hj._totalRows += wd._rows
		tagged = tagged && wd._tagged
		lmSize += wd._lmRowSize
		lmCount += wd._lmRowCount
	}
	hj._tagged = tagged
	hj._pt.init(hj._method, hj._totalRows, hj._settings, tagged, hj._partitions, len(hj._buildWorkers))

	hasCond := hj._otherCond != nil
	layout := hj._layout
	if hasCond && lmCount > 0 &&
		layout.OtherColumnCountForOtherCondition < len(layout.OtherColumns) &&
		lmSize/lmCount >= hj._settings.LateMaterializationThreshold {
		hj._lm = true
	}
	if hit, _ := util.Inject(util.FAULTS_SCOPE_JOIN, failPointForceEnableLM); hit {
		hj._lm = hasCond
	}
	if hit, _ := util.Inject(util.FAULTS_SCOPE_JOIN, failPointForceDisableLM); hit {
		hj._lm = false
	}

	//semi kinds keep one result per probe row even with other condition
	if isSemiFamily(hj._kind) {
		hj._helper = &semiProbeHelper{_hj: hj}
	} else {
		hj._helper = &generalProbeHelper{_hj: hj, _lm: hj._lm}
	}
	hj._buildFinished.Store(true)
	rowBytes := 0
	for _, mrc := range hj._partitions {
		rowBytes += mrc.bytes()
	}
	util.Info("hash join build rows finished",
		zap.Int("rows", hj._totalRows),
		zap.Int("rowBytes", rowBytes),
		zap.Int("pointerTableSize", hj._pt.Size()),
		zap.Bool("taggedPointer", hj._tagged),
		zap.Bool("lateMaterialization", hj._lm))
}

// BuildPointerTable links a slice of rows into the pointer table. Call it
// until it returns true.
func (hj *HashJoin) BuildPointerTable(worker int) bool {
	util.Assertf(hj._buildFinished.Load(), "BuildPointerTable before build rows finished")
	wd := hj._buildWorkers[worker]
	if wd._ptDone {
		return true
	}
	if !hj._pt.build(hj._settings.PointerTableBuildRowsPerCall) {
		return false
	}
	wd._ptDone = true
	if hj._pt.finishBuilder() {
		util.Debug("hash join pointer table built",
			zap.Int("size", hj._pt.Size()),
			util.GoID())
	}
	return true
}

func (hj *HashJoin) IsPointerTableBuilt() bool {
	return hj._pt != nil && hj._pt.built()
}

func (hj *HashJoin) rowAt(ptr rowPtr) []byte {
	p, c, off := splitRowPtr(ptr, hj._tagged)
	return hj._partitions[p]._containers[c].rowAt(off)
}

// Close returns the row arenas to the allocator.
func (hj *HashJoin) Close() {
	for _, mrc := range hj._partitions {
		for _, rc := range mrc._containers {
			rc.free()
		}
	}
}

func (hj *HashJoin) Explain() string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("HashJoin(%s)", hj._kind))
	keys := tree.AddBranch("keys")
	for i := range hj._leftKeys {
		keys.AddNode(fmt.Sprintf("%s = %s (%s)", hj._leftKeys[i], hj._rightKeys[i], hj._collators[i].Name()))
	}
	if hj._otherCond != nil {
		hj._otherCond.Format(tree.AddBranch("other condition"))
	}
	if hj._leftFilter != "" {
		tree.AddNode("left filter: " + hj._leftFilter)
	}
	if hj._rightFilter != "" {
		tree.AddNode("right filter: " + hj._rightFilter)
	}
	if hj._finalized {
		tree.AddNode(fmt.Sprintf("output: %v", hj._outputSchema.Names))
		tree.AddNode(fmt.Sprintf("required left: %v", hj._requiredLeft))
		tree.AddNode(fmt.Sprintf("required right: %v", hj._requiredRight))
	}
	if hj._buildInited {
		build := tree.AddBranch("build")
		build.AddNode("method: " + hj._method.String())
		build.AddNode(fmt.Sprintf("raw key columns: %d, other columns: %d (%d for other condition)",
			len(hj._layout.RawKeyColumns), len(hj._layout.OtherColumns),
			hj._layout.OtherColumnCountForOtherCondition))
		if hj._buildFinished.Load() {
			build.AddNode(fmt.Sprintf("rows: %d", hj._totalRows))
			build.AddNode(fmt.Sprintf("pointer table size: %d", hj._pt.Size()))
			build.AddNode(fmt.Sprintf("tagged pointer: %v", hj._tagged))
			build.AddNode(fmt.Sprintf("late materialization: %v", hj._lm))
		}
	}
	return tree.String()
}

package join

import (
	"context"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/expression"
	"github.com/daviszhen/hashjoin/pkg/util"
)

var (
	intT  = common.IntegerType()
	strT  = common.VarcharType()
	boolT = common.BooleanType()
)

func intVal(v int64) *chunk.Value {
	return &chunk.Value{Typ: intT, I64: v}
}

func strVal(s string) *chunk.Value {
	return &chunk.Value{Typ: strT, Str: s}
}

func boolVal(b bool) *chunk.Value {
	return &chunk.Value{Typ: boolT, Bool: b}
}

type table struct {
	schema *chunk.Schema
	rows   [][]*chunk.Value
}

func (tbl *table) value(row int, name string) *chunk.Value {
	return tbl.rows[row][tbl.schema.IndexOf(name)]
}

func (tbl *table) blocks(size int) []*chunk.Chunk {
	var ret []*chunk.Chunk
	for begin := 0; begin < len(tbl.rows); begin += size {
		blk := chunk.NewChunkWithSchema(tbl.schema, size)
		for _, row := range tbl.rows[begin:min(begin+size, len(tbl.rows))] {
			blk.AppendRow(row...)
		}
		ret = append(ret, blk)
	}
	return ret
}

func rowString(vals []*chunk.Value) string {
	strs := make([]string, len(vals))
	for i, val := range vals {
		strs[i] = val.String()
	}
	return strings.Join(strs, "|")
}

func collectRows(blocks []*chunk.Chunk) []string {
	var ret []string
	for _, blk := range blocks {
		for i := 0; i < blk.Card(); i++ {
			ret = append(ret, rowString(blk.Row(i)))
		}
	}
	sort.Strings(ret)
	return ret
}

// runJoin runs a finalized join through the executor and returns the
// sorted result rows.
func runJoin(t *testing.T, hj *HashJoin, left, right *table) ([]string, error) {
	exec, err := NewExecutor(hj)
	require.NoError(t, err)
	defer exec.Close()
	var results []*chunk.Chunk
	err = exec.Run(context.Background(),
		NewSliceSource(right.blocks(13)),
		NewSliceSource(left.blocks(16)),
		func(blk *chunk.Chunk) error {
			assert.LessOrEqual(t, blk.Card(), hj.Settings().MaxBlockSize)
			results = append(results, blk)
			return nil
		})
	return collectRows(results), err
}

func scenarioTables() (*table, *table) {
	left := &table{schema: chunk.NewSchema([]string{"l_k"}, []common.LType{intT})}
	left.rows = [][]*chunk.Value{{intVal(1)}, {intVal(3)}}
	right := &table{schema: chunk.NewSchema([]string{"r_k", "r_s"}, []common.LType{intT, strT})}
	right.rows = [][]*chunk.Value{
		{intVal(1), strVal("a")},
		{intVal(2), strVal("b")},
		{intVal(1), strVal("c")},
	}
	return left, right
}

func scenarioJoin(t *testing.T, kind JoinKind, required []string) []string {
	left, right := scenarioTables()
	hj, err := NewHashJoin(&HashJoinParams{
		Kind:      kind,
		Left:      left.schema,
		Right:     right.schema,
		LeftKeys:  []string{"l_k"},
		RightKeys: []string{"r_k"},
	})
	require.NoError(t, err)
	require.NoError(t, hj.Finalize(required))
	defer hj.Close()
	rows, err := runJoin(t, hj, left, right)
	require.NoError(t, err)
	return rows
}

func TestScenarioInner(t *testing.T) {
	rows := scenarioJoin(t, Inner, []string{"l_k", "r_s"})
	assert.Equal(t, []string{"1|a", "1|c"}, rows)
}

func TestScenarioLeftOuter(t *testing.T) {
	rows := scenarioJoin(t, LeftOuter, []string{"l_k", "r_s"})
	assert.Equal(t, []string{"1|a", "1|c", "3|NULL"}, rows)
}

func TestScenarioSemi(t *testing.T) {
	rows := scenarioJoin(t, Semi, nil)
	assert.Equal(t, []string{"1"}, rows)
}

func TestScenarioRightKinds(t *testing.T) {
	assert.Equal(t, []string{"1|1|a", "1|1|c", "NULL|2|b"}, scenarioJoin(t, RightOuter, nil))
	assert.Equal(t, []string{"1|a", "1|c"}, scenarioJoin(t, RightSemi, nil))
	assert.Equal(t, []string{"2|b"}, scenarioJoin(t, RightAnti, nil))
	assert.Equal(t, []string{"3"}, scenarioJoin(t, Anti, nil))
	assert.Equal(t, []string{"1|1", "3|0"}, scenarioJoin(t, LeftOuterSemi, nil))
	assert.Equal(t, []string{"1|0", "3|1"}, scenarioJoin(t, LeftOuterAnti, nil))
}

func TestNewHashJoinErrors(t *testing.T) {
	left := chunk.NewSchema([]string{"a", "s", "f", "x"}, []common.LType{intT, strT, boolT, intT})
	right := chunk.NewSchema([]string{"b", "t", "g", "x"}, []common.LType{intT, strT, intT, intT})
	base := func() *HashJoinParams {
		return &HashJoinParams{
			Kind:      Semi,
			Left:      left,
			Right:     right,
			LeftKeys:  []string{"a"},
			RightKeys: []string{"b"},
		}
	}
	_, err := NewHashJoin(base())
	require.NoError(t, err)

	cases := []struct {
		name   string
		modify func(p *HashJoinParams)
	}{
		{"key count", func(p *HashJoinParams) { p.RightKeys = []string{"b", "t"} }},
		{"missing key", func(p *HashJoinParams) { p.LeftKeys = []string{"zz"} }},
		{"key type", func(p *HashJoinParams) { p.RightKeys = []string{"t"} }},
		{"collation count", func(p *HashJoinParams) { p.Collations = []string{"", ""} }},
		{"unknown collation", func(p *HashJoinParams) { p.Collations = []string{"no_such_ci_at_all"} }},
		{"null aware with condition", func(p *HashJoinParams) {
			p.Kind = NullAwareAnti
			p.OtherCondition = expression.Func(expression.ET_Less, expression.Column("a", intT), expression.Column("b", intT))
		}},
		{"ambiguous condition column", func(p *HashJoinParams) {
			p.OtherCondition = expression.Func(expression.ET_Less, expression.Column("a", intT), expression.Column("x", intT))
		}},
		{"unknown condition column", func(p *HashJoinParams) {
			p.OtherCondition = expression.Func(expression.ET_Less, expression.Column("a", intT), expression.Column("nope", intT))
		}},
		{"filter type", func(p *HashJoinParams) { p.RightFilterColumn = "g" }},
		{"missing filter", func(p *HashJoinParams) { p.LeftFilterColumn = "nope" }},
		{"duplicate output", func(p *HashJoinParams) { p.Kind = Inner }},
	}
	for _, c := range cases {
		p := base()
		c.modify(p)
		_, err = NewHashJoin(p)
		assert.Error(t, err, c.name)
	}

	p := base()
	p.LeftFilterColumn = "f"
	_, err = NewHashJoin(p)
	assert.NoError(t, err)
}

func TestFinalize(t *testing.T) {
	left := chunk.NewSchema([]string{"l_a", "l_k", "l_v", "l_f"}, []common.LType{intT, intT, intT, boolT})
	right := chunk.NewSchema([]string{"r_k", "r_s", "r_v", "r_x"}, []common.LType{intT, strT, intT, intT})
	hj, err := NewHashJoin(&HashJoinParams{
		Kind:             LeftOuterSemi,
		Left:             left,
		Right:            right,
		LeftKeys:         []string{"l_k"},
		RightKeys:        []string{"r_k"},
		OtherCondition:   expression.Func(expression.ET_Less, expression.Column("l_v", intT), expression.Column("r_v", intT)),
		LeftFilterColumn: "l_f",
		MatchHelperName:  "m",
	})
	require.NoError(t, err)

	err = hj.Finalize([]string{"r_s"})
	require.Error(t, err)

	require.NoError(t, hj.Finalize([]string{"m", "l_a"}))
	//output keeps the joined order, not the requested one
	assert.Equal(t, []string{"l_a", "m"}, hj.OutputSchema().Names)
	assert.Equal(t, tinyint(), hj.OutputSchema().Types[1])
	assert.Equal(t, []string{"l_a", "l_k", "l_v", "l_f"}, hj.RequiredLeftColumns())
	assert.Equal(t, []string{"r_k", "r_v"}, hj.RequiredRightColumns())

	schema := hj.OutputSchema().Clone()
	reqLeft := util.CopyTo(hj.RequiredLeftColumns())
	reqRight := util.CopyTo(hj.RequiredRightColumns())
	require.NoError(t, hj.Finalize(nil))
	assert.Equal(t, schema, hj.OutputSchema())
	assert.Equal(t, reqLeft, hj.RequiredLeftColumns())
	assert.Equal(t, reqRight, hj.RequiredRightColumns())

	explain := hj.Explain()
	assert.Contains(t, explain, "HashJoin(left_outer_semi)")
	assert.Contains(t, explain, "l_k = r_k (binary)")
	assert.Contains(t, explain, "l_f")
}

func tinyint() common.LType {
	return common.TinyintType()
}

func TestCallOrder(t *testing.T) {
	left, right := scenarioTables()
	hj, err := NewHashJoin(&HashJoinParams{
		Kind:      Inner,
		Left:      left.schema,
		Right:     right.schema,
		LeftKeys:  []string{"l_k"},
		RightKeys: []string{"r_k"},
	})
	require.NoError(t, err)
	assert.Panics(t, func() { hj.InitBuild() })
	require.NoError(t, hj.Finalize(nil))
	hj.InitBuild()
	assert.Panics(t, func() { hj.InitBuild() })
	assert.Panics(t, func() { hj.InitProbe() })
	assert.Panics(t, func() { hj.BuildPointerTable(0) })
	assert.Panics(t, func() { hj.ScanAfterProbe(0) })
}

func TestParseJoinKind(t *testing.T) {
	for kind := Inner; kind <= NullAwareLeftOuterAnti; kind++ {
		got, err := ParseJoinKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}
	got, err := ParseJoinKind("Left")
	require.NoError(t, err)
	assert.Equal(t, LeftOuter, got)
	got, err = ParseJoinKind("full outer")
	require.NoError(t, err)
	assert.Equal(t, Full, got)
	_, err = ParseJoinKind("sideways")
	assert.Error(t, err)
}

func TestSettingsClone(t *testing.T) {
	s := DefaultSettings()
	c := s.Clone()
	c.MaxBlockSize = 3
	assert.Equal(t, 8192, s.MaxBlockSize)

	s = &Settings{MaxBlockSize: -1, PointerTableLoadFactor: 2}
	s.fillDefaults()
	assert.Equal(t, 8192, s.MaxBlockSize)
	assert.Equal(t, 0.5, s.PointerTableLoadFactor)
	assert.Equal(t, 1, s.BuildConcurrency)
}

func TestFloatKeyKeepsBuildValue(t *testing.T) {
	dblT := common.DoubleType()
	negZero := math.Copysign(0, -1)
	left := &table{schema: chunk.NewSchema([]string{"l_k"}, []common.LType{dblT})}
	left.rows = [][]*chunk.Value{{{Typ: dblT, F64: 0}}}
	right := &table{schema: chunk.NewSchema([]string{"r_k", "r_s"}, []common.LType{dblT, strT})}
	right.rows = [][]*chunk.Value{{{Typ: dblT, F64: negZero}, strVal("neg")}}

	hj, err := NewHashJoin(&HashJoinParams{
		Kind:      Inner,
		Left:      left.schema,
		Right:     right.schema,
		LeftKeys:  []string{"l_k"},
		RightKeys: []string{"r_k"},
	})
	require.NoError(t, err)
	defer hj.Close()
	require.NoError(t, hj.Finalize(nil))

	exec, err := NewExecutor(hj)
	require.NoError(t, err)
	defer exec.Close()
	var results []*chunk.Chunk
	err = exec.Run(context.Background(),
		NewSliceSource(right.blocks(4)),
		NewSliceSource(left.blocks(4)),
		func(blk *chunk.Chunk) error {
			results = append(results, blk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, OneKey64, hj.KeyMethod())
	assert.Empty(t, hj.RowLayout().RawKeyColumns)

	require.Len(t, results, 1)
	res := results[0]
	require.Equal(t, 1, res.Card())
	assert.False(t, math.Signbit(res.Column("l_k").GetValue(0).F64))
	assert.True(t, math.Signbit(res.Column("r_k").GetValue(0).F64))
	assert.Equal(t, "neg", res.Column("r_s").GetValue(0).Str)
}

func TestBlockSchemaMismatch(t *testing.T) {
	left, right := scenarioTables()
	hj, err := NewHashJoin(&HashJoinParams{
		Kind:      Inner,
		Left:      left.schema,
		Right:     right.schema,
		LeftKeys:  []string{"l_k"},
		RightKeys: []string{"r_k"},
	})
	require.NoError(t, err)
	defer hj.Close()
	require.NoError(t, hj.Finalize(nil))
	hj.InitBuild()

	bigT := common.BigintType()
	badRight := chunk.NewChunk([]string{"r_k", "r_s"}, []common.LType{intT, bigT}, 1)
	badRight.AppendRow(intVal(1), &chunk.Value{Typ: bigT, I64: 1})
	assert.Panics(t, func() { _ = hj.BuildRowFromBlock(badRight, 0) })
	badKey := chunk.NewChunk([]string{"r_k", "r_s"}, []common.LType{bigT, strT}, 1)
	badKey.AppendRow(&chunk.Value{Typ: bigT, I64: 1}, strVal("a"))
	assert.Panics(t, func() { _ = hj.BuildRowFromBlock(badKey, 0) })

	for _, blk := range right.blocks(4) {
		require.NoError(t, hj.BuildRowFromBlock(blk, 0))
	}
	last, err := hj.FinishOneBuildRow(0)
	require.NoError(t, err)
	require.True(t, last)
	for !hj.BuildPointerTable(0) {
	}
	hj.InitProbe()

	badLeft := chunk.NewChunk([]string{"l_k"}, []common.LType{bigT}, 1)
	badLeft.AppendRow(&chunk.Value{Typ: bigT, I64: 1})
	ctx := NewProbeContext()
	ctx.ResetBlock(badLeft)
	assert.Panics(t, func() { _, _ = hj.ProbeBlock(ctx, 0) })
}

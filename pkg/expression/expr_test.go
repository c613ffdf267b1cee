package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xlab/treeprint"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/common"
)

func testBlock() *chunk.Chunk {
	intT := common.IntegerType()
	strT := common.VarcharType()
	blk := chunk.NewChunk([]string{"a", "b", "s"}, []common.LType{intT, intT, strT}, 4)
	blk.AppendRow(&chunk.Value{Typ: intT, I64: 1}, &chunk.Value{Typ: intT, I64: 2}, &chunk.Value{Typ: strT, Str: "x"})
	blk.AppendRow(&chunk.Value{Typ: intT, I64: 5}, &chunk.Value{Typ: intT, I64: 2}, &chunk.Value{Typ: strT, Str: "y"})
	blk.AppendRow(chunk.NullValue(intT), &chunk.Value{Typ: intT, I64: 2}, chunk.NullValue(strT))
	return blk
}

func TestCompare(t *testing.T) {
	blk := testBlock()
	intT := common.IntegerType()
	e := Func(ET_Less, Column("a", intT), Column("b", intT))
	res, err := NewExprExec(e).Execute(blk)
	require.NoError(t, err)
	assert.True(t, IsTrue(res, 0))
	assert.False(t, IsTrue(res, 1))
	assert.True(t, res.IsNull(2))
	assert.Equal(t, []string{"a", "b"}, e.Columns())
	assert.Equal(t, "(a < b)", e.String())
}

func TestThreeValuedLogic(t *testing.T) {
	blk := testBlock()
	intT := common.IntegerType()
	lt := Func(ET_Less, Column("a", intT), Column("b", intT))
	falseConst := Const(&chunk.Value{Typ: common.BooleanType(), Bool: false})
	trueConst := Const(&chunk.Value{Typ: common.BooleanType(), Bool: true})

	res, err := NewExprExec(And(lt, falseConst)).Execute(blk)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.False(t, res.IsNull(i))
		assert.False(t, IsTrue(res, i))
	}

	res, err = NewExprExec(Func(ET_Or, lt, trueConst)).Execute(blk)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.True(t, IsTrue(res, i))
	}

	res, err = NewExprExec(And(lt, trueConst)).Execute(blk)
	require.NoError(t, err)
	assert.True(t, res.IsNull(2))

	res, err = NewExprExec(Func(ET_IsNull, Column("s", common.VarcharType()))).Execute(blk)
	require.NoError(t, err)
	assert.False(t, IsTrue(res, 0))
	assert.True(t, IsTrue(res, 2))
}

func TestArithmeticAndSelect(t *testing.T) {
	blk := testBlock()
	intT := common.IntegerType()
	sum := Func(ET_Add, Column("a", intT), Const(&chunk.Value{Typ: intT, I64: 1}))
	e := Func(ET_Greater, sum, Column("b", intT))
	sel := chunk.NewSelectVector(4)
	require.NoError(t, NewExprExec(e).ExecuteSelect(blk, sel))
	assert.Equal(t, []int{1}, sel.SelVec)

	_, err := NewExprExec(Column("zz", intT)).Execute(blk)
	assert.Error(t, err)

	_, err = NewExprExec(Func(ET_Equal, Column("a", intT), Column("s", common.VarcharType()))).Execute(blk)
	assert.Error(t, err)
}

func TestCopyAndFormat(t *testing.T) {
	intT := common.IntegerType()
	e := And(Func(ET_Less, Column("a", intT), Column("b", intT)), Func(ET_IsNotNull, Column("a", intT)))
	cp := e.Copy()
	cp.Children[0].Children[0].Name = "c"
	assert.Equal(t, "a", e.Children[0].Children[0].Name)

	tree := treeprint.New()
	e.Format(tree)
	assert.Contains(t, tree.String(), "a is not null")

	op, err := ParseOp("<=")
	require.NoError(t, err)
	assert.Equal(t, ET_LessEqual, op)
	_, err = ParseOp("~")
	assert.Error(t, err)
}

package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/hashjoin/pkg/common"
)

func mustParse(t *testing.T, field string, typ common.LType) *Value {
	val, err := ParseValue(field, typ)
	require.NoError(t, err)
	return val
}

func TestVectorValues(t *testing.T) {
	typs := []common.LType{
		common.IntegerType(),
		common.BigintType(),
		common.VarcharType(),
		common.DecimalType(10, 2),
		common.DecimalType(30, 3),
		common.DecimalType(60, 1),
		common.DoubleType(),
		common.DateType(),
		common.BooleanType(),
	}
	fields := []string{"-7", "1234567890123", "abc", "-12.50", "123456789012345678901.125", "-1234567890123456789012345678901234567890.5", "2.5", "1998-12-01", "true"}
	for i, typ := range typs {
		vec := NewFlatVector(typ, 4)
		vec.SetValue(0, mustParse(t, fields[i], typ))
		vec.SetValue(1, NullValue(typ))
		assert.Equal(t, fields[i], vec.GetValue(0).String(), typ.String())
		assert.True(t, vec.IsNull(1))
		assert.False(t, vec.IsNull(0))
	}
}

func TestConstVector(t *testing.T) {
	vec := NewConstVector(&Value{Typ: common.IntegerType(), I64: 5})
	assert.True(t, vec.PhyFormat().IsConst())
	assert.Equal(t, int64(5), vec.GetValue(100).I64)
	vec.Flatten(3)
	assert.True(t, vec.PhyFormat().IsFlat())
	assert.Equal(t, int64(5), vec.GetValue(2).I64)
}

func TestChunkAppend(t *testing.T) {
	names := []string{"k", "v"}
	typs := []common.LType{common.IntegerType(), common.VarcharType()}
	a := NewChunk(names, typs, 2)
	a.AppendRow(&Value{Typ: typs[0], I64: 1}, &Value{Typ: typs[1], Str: "a"})
	a.AppendRow(NullValue(typs[0]), &Value{Typ: typs[1], Str: "b"})
	a.AppendRow(&Value{Typ: typs[0], I64: 3}, NullValue(typs[1]))
	assert.Equal(t, 3, a.Card())

	b := NewChunk(names, typs, 1)
	b.Append(a)
	b.Append(a)
	assert.Equal(t, 6, b.Card())
	assert.True(t, b.Data[0].IsNull(4))
	assert.True(t, b.Data[1].IsNull(5))
	assert.Equal(t, "a", b.Column("v").GetString(3))
	assert.Equal(t, 1, b.ColumnIndex("v"))
	assert.Equal(t, -1, b.ColumnIndex("x"))

	p := b.Project([]string{"v"})
	assert.Equal(t, 6, p.Card())
	assert.Equal(t, "k\tv\n1\ta\nNULL\tb\n3\tNULL\n", a.String())
}

func TestCopyWithSelection(t *testing.T) {
	src := NewFlatVector(common.BigintType(), 4)
	for i := 0; i < 4; i++ {
		src.SetValue(i, &Value{Typ: src.Typ(), I64: int64(i * 10)})
	}
	src.SetNull(2, true)
	dst := NewFlatVector(common.BigintType(), 1)
	Copy(src, []int{3, 2, 0}, 3, dst, 0)
	assert.Equal(t, int64(30), dst.GetValue(0).I64)
	assert.True(t, dst.IsNull(1))
	assert.Equal(t, int64(0), dst.GetValue(2).I64)
}

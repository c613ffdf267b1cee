package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/collate"
	"github.com/daviszhen/hashjoin/pkg/common"
)

func TestSelectKeyMethod(t *testing.T) {
	intT := common.IntegerType()
	bigT := common.BigintType()
	strT := common.VarcharType()
	cases := []struct {
		name  string
		types []common.LType
		colls []collate.Kind
		want  KeyMethod
		size  int
	}{
		{"cross", nil, nil, Cross, 0},
		{"tinyint", []common.LType{common.TinyintType()}, nil, OneKey8, 1},
		{"smallint", []common.LType{common.SmallintType()}, nil, OneKey16, 2},
		{"int", []common.LType{intT}, nil, OneKey32, 4},
		{"bigint", []common.LType{bigT}, nil, OneKey64, 8},
		{"hugeint", []common.LType{common.HugeintType()}, nil, OneKey128, 16},
		{"decimal128", []common.LType{common.DecimalType(30, 2)}, nil, OneKey128, 16},
		{"two tinyint", []common.LType{common.TinyintType(), common.TinyintType()}, nil, KeysFixed32, 2},
		{"int int", []common.LType{intT, intT}, nil, KeysFixed64, 8},
		{"int bigint", []common.LType{intT, bigT}, nil, KeysFixed128, 12},
		{"three bigint", []common.LType{bigT, bigT, bigT}, nil, KeysFixed256, 24},
		{"five bigint", []common.LType{bigT, bigT, bigT, bigT, bigT}, nil, KeysFixedOther, 40},
		{"string", []common.LType{strT}, nil, OneKeyStringBin, 0},
		{"string padding", []common.LType{strT}, []collate.Kind{collate.KindBinaryPadding}, OneKeyStringBinPadding, 0},
		{"string ci", []common.LType{strT}, []collate.Kind{collate.KindGeneral}, OneKeyString, 0},
		{"int string", []common.LType{intT, strT}, nil, KeySerialized, 0},
		{"wide decimal", []common.LType{common.DecimalType(60, 2)}, nil, KeySerialized, 0},
		{"int wide decimal", []common.LType{common.TinyintType(), common.DecimalType(76, 0)}, nil, KeySerialized, 0},
	}
	for _, c := range cases {
		method, size := SelectKeyMethod(c.types, c.colls)
		assert.Equal(t, c.want, method, c.name)
		assert.Equal(t, c.size, size, c.name)
		//same input, same answer
		again, _ := SelectKeyMethod(c.types, c.colls)
		assert.Equal(t, method, again, c.name)
	}
}

func TestSelectKeyMethodWideDecimal(t *testing.T) {
	wide := common.DecimalType(70, 4)
	others := []common.LType{
		common.TinyintType(),
		common.IntegerType(),
		common.BigintType(),
		common.DecimalType(20, 2),
		common.VarcharType(),
	}
	for _, other := range others {
		method, _ := SelectKeyMethod([]common.LType{other, wide}, nil)
		assert.Equal(t, KeySerialized, method, other.String())
		method, _ = SelectKeyMethod([]common.LType{wide, other}, nil)
		assert.Equal(t, KeySerialized, method, other.String())
	}
}

func TestRowPtr(t *testing.T) {
	for _, tagged := range []bool{false, true} {
		ptr := makeRowPtr(notInsertPartition, 7, 1<<20+8, tagged)
		p, c, off := splitRowPtr(ptr, tagged)
		assert.Equal(t, notInsertPartition, p)
		assert.Equal(t, 7, c)
		assert.Equal(t, 1<<20+8, off)
		if tagged {
			assert.Zero(t, ptr&^taggedPointerMask)
		}
	}
	ptr := makeRowPtr(3, maxTaggedContainers-2, 64, true)
	p, c, off := splitRowPtr(ptr, true)
	assert.Equal(t, []int{3, maxTaggedContainers - 2, 64}, []int{p, c, off})
	assert.NotZero(t, makeRowPtr(0, 0, 0, false))
}

func TestPointerTableSize(t *testing.T) {
	assert.Equal(t, 1, pointerTableSize(Cross, 100000, 0.5))
	assert.Equal(t, MinPointerTableSize, pointerTableSize(OneKey32, 10, 0.5))
	assert.Equal(t, 1<<12, pointerTableSize(OneKey32, 2000, 0.5))
	assert.Equal(t, 1<<11, pointerTableSize(OneKey32, 2000, 1))
}

func TestKeyGetterCollation(t *testing.T) {
	strT := common.VarcharType()
	vec := chunk.NewFlatVector(strT, 4)
	vec.SetString(0, "abc")
	vec.SetString(1, "ABC  ")
	vec.SetString(2, "abd")

	key := func(g KeyGetter, row int) string {
		return string(g.Key(row))
	}
	bin := newKeyGetter(OneKeyStringBin, []common.LType{strT}, []collate.Collator{collate.MustNew("")})
	bin.Reset([]*chunk.Vector{vec})
	assert.NotEqual(t, key(bin, 0), key(bin, 1))

	ci := newKeyGetter(OneKeyString, []common.LType{strT}, []collate.Collator{collate.MustNew("utf8mb4_general_ci")})
	ci.Reset([]*chunk.Vector{vec})
	k0, k1, k2 := key(ci, 0), key(ci, 1), key(ci, 2)
	assert.Equal(t, k0, k1)
	assert.NotEqual(t, k0, k2)
	assert.Equal(t, ci.Hash([]byte(k0)), ci.Hash([]byte(k1)))

	intT := common.IntegerType()
	ivec := chunk.NewFlatVector(intT, 2)
	ivec.SetValue(0, &chunk.Value{Typ: intT, I64: 7})
	ser := newKeyGetter(KeySerialized, []common.LType{intT, strT}, []collate.Collator{collate.MustNew(""), collate.MustNew("utf8mb4_bin")})
	svec := chunk.NewFlatVector(strT, 2)
	svec.SetString(0, "x ")
	ser.Reset([]*chunk.Vector{ivec, svec})
	first := key(ser, 0)
	svec.SetString(0, "x")
	assert.Equal(t, first, key(ser, 0))
	assert.Equal(t, -1, ser.FixedKeySize())
}

func TestKeyGetterUnknownMethod(t *testing.T) {
	require.Panics(t, func() {
		newKeyGetter(KeyMethod(100), nil, nil)
	})
}

package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLType(t *testing.T) {
	for _, name := range []string{"int", "bigint", "varchar", "double", "date", "decimal(10,2)", "decimal(50,4)"} {
		typ, err := ParseLType(name)
		require.NoError(t, err)
		assert.Equal(t, name, typ.String())
	}
	_, err := ParseLType("decimal(100,1)")
	assert.Error(t, err)
	_, err = ParseLType("blob")
	assert.Error(t, err)
}

func TestDecimalPhyType(t *testing.T) {
	assert.Equal(t, INT64, DecimalType(18, 2).PTyp)
	assert.Equal(t, INT128, DecimalType(19, 2).PTyp)
	assert.Equal(t, INT128, DecimalType(38, 2).PTyp)
	assert.Equal(t, INT256, DecimalType(39, 2).PTyp)
	assert.True(t, DecimalType(65, 2).IsWideDecimal())
	assert.False(t, DecimalType(38, 2).IsWideDecimal())
	assert.Equal(t, 32, DecimalType(65, 2).FixedSize())
	assert.True(t, DecimalType(65, 2).IsFixedWidth())
	assert.False(t, VarcharType().IsFixedWidth())
}

func TestWideIntegers(t *testing.T) {
	for _, s := range []string{"0", "-1", "170141183460469231731687303715884105727", "-98765432109876543210"} {
		v, ok := new(big.Int).SetString(s, 10)
		require.True(t, ok)
		h, err := HugeintFromBig(v)
		require.NoError(t, err)
		assert.Equal(t, s, h.String())

		d, err := Decimal256FromBig(v)
		require.NoError(t, err)
		assert.Equal(t, 0, d.Big().Cmp(v))
	}
	assert.Equal(t, -1, HugeintFromInt64(-5).Compare(HugeintFromInt64(3)))

	v, err := ParseScaled("-12.345", 2)
	require.NoError(t, err)
	assert.Equal(t, "-1234", v.String())
	assert.Equal(t, "-12.34", FormatScaled(v, 2))
	assert.Equal(t, "0.05", FormatScaled(big.NewInt(5), 2))
}

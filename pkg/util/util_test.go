package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmap(t *testing.T) {
	mask := &Bitmap{}
	assert.True(t, mask.AllValid())
	assert.True(t, mask.RowIsValid(10))
	mask.Set(0, true)
	assert.True(t, mask.AllValid())

	mask.Set(3, false)
	assert.False(t, mask.RowIsValid(3))
	assert.True(t, mask.RowIsValid(2))
	assert.Equal(t, 1, mask.NullCount(10))

	mask.Set(DefaultVectorSize+5, false)
	assert.False(t, mask.RowIsValid(DefaultVectorSize+5))
	assert.True(t, mask.RowIsValid(DefaultVectorSize+4))
	mask.Set(3, true)
	assert.True(t, mask.RowIsValid(3))

	other := &Bitmap{}
	other.CopyFrom(mask, DefaultVectorSize+8)
	assert.False(t, other.RowIsValid(DefaultVectorSize+5))
}

func TestHash(t *testing.T) {
	a := HashBytes([]byte("hello world"))
	b := HashBytes([]byte("hello world"))
	c := HashBytes([]byte("hello worle"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, HashBytes(nil), HashBytes([]byte{0}))
	assert.NotEqual(t, HashUint64(1), HashUint64(2))
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, uint64(1), NextPowerOfTwo(0))
	assert.Equal(t, uint64(1), NextPowerOfTwo(1))
	assert.Equal(t, uint64(1024), NextPowerOfTwo(1000))
	assert.Equal(t, uint64(1024), NextPowerOfTwo(1024))
	assert.Equal(t, uint(10), Log2(1024))
	assert.Equal(t, uint(0), Log2(1))
}

func TestFaultInject(t *testing.T) {
	const name = "test_fault"
	hit, err := Inject(FAULTS_SCOPE_JOIN, name)
	assert.False(t, hit)
	assert.NoError(t, err)

	Open(FAULTS_SCOPE_JOIN)
	defer Close(FAULTS_SCOPE_JOIN)
	boom := errors.New("boom")
	Register(FAULTS_SCOPE_JOIN, name, nil, func([]string) error {
		return boom
	})
	hit, err = Inject(FAULTS_SCOPE_JOIN, name)
	assert.True(t, hit)
	assert.ErrorIs(t, err, boom)

	Unregister(FAULTS_SCOPE_JOIN, name)
	hit, _ = Inject(FAULTS_SCOPE_JOIN, name)
	assert.False(t, hit)
}

func TestLimitAllocator(t *testing.T) {
	alloc := NewLimitAllocator(100)
	buf, err := alloc.Alloc(60)
	require.NoError(t, err)
	_, err = alloc.Alloc(60)
	assert.ErrorIs(t, err, ErrAllocFailed)
	alloc.Free(buf)
	assert.Equal(t, int64(0), alloc.Used())
	_, err = alloc.Alloc(60)
	assert.NoError(t, err)
}

package join

import (
	"encoding/binary"
	"math"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/collate"
	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/util"
)

// KeyGetter encodes the join key of a row. Two keys are equal under the
// join's collators exactly when their encodings are equal. Each worker
// owns its own getter.
type KeyGetter interface {
	// Reset binds the key columns of the next block.
	Reset(keyCols []*chunk.Vector)
	// Key returns the encoding of row. It is valid until the next call.
	Key(row int) []byte
	Hash(key []byte) uint64
	// FixedKeySize is the encoding width, or -1 when it varies.
	FixedKeySize() int
}

func newKeyGetter(method KeyMethod, keyTypes []common.LType, collators []collate.Collator) KeyGetter {
	switch {
	case method == Cross:
		return &crossKeyGetter{}
	case method.isFixed():
		size := 0
		for _, typ := range keyTypes {
			size += typ.FixedSize()
		}
		return &fixedKeyGetter{
			_types: keyTypes,
			_size:  size,
			_buf:   make([]byte, size),
		}
	case method.isString():
		return &stringKeyGetter{_coll: collators[0]}
	case method == KeySerialized:
		return &serializedKeyGetter{
			_types: keyTypes,
			_colls: collators,
		}
	}
	panic("usp key method")
}

func cloneCollators(colls []collate.Collator) []collate.Collator {
	ret := make([]collate.Collator, len(colls))
	for i, c := range colls {
		ret[i] = c.Clone()
	}
	return ret
}

type crossKeyGetter struct{}

func (g *crossKeyGetter) Reset([]*chunk.Vector) {}

func (g *crossKeyGetter) Key(int) []byte {
	return nil
}

func (g *crossKeyGetter) Hash([]byte) uint64 {
	return 0
}

func (g *crossKeyGetter) FixedKeySize() int {
	return 0
}

// fixedKeyGetter packs the keys little endian one after another.
type fixedKeyGetter struct {
	_types []common.LType
	_size  int
	_cols  []*chunk.Vector
	_buf   []byte
}

func (g *fixedKeyGetter) Reset(keyCols []*chunk.Vector) {
	g._cols = keyCols
}

func (g *fixedKeyGetter) Key(row int) []byte {
	off := 0
	for i, col := range g._cols {
		off += putFixed(g._buf[off:], g._types[i], col.RawBytes(row))
	}
	return g._buf
}

func (g *fixedKeyGetter) Hash(key []byte) uint64 {
	return util.HashBytes(key)
}

func (g *fixedKeyGetter) FixedKeySize() int {
	return g._size
}

// putFixed copies one fixed width value, normalizing floats.
func putFixed(dst []byte, typ common.LType, src []byte) int {
	switch typ.PTyp {
	case common.FLOAT:
		f := chunk.NormalizeFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(src))))
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f)))
	case common.DOUBLE:
		f := chunk.NormalizeFloat(math.Float64frombits(binary.LittleEndian.Uint64(src)))
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
	default:
		copy(dst, src)
	}
	return len(src)
}

// stringKeyGetter encodes one string key as its collation sort key.
type stringKeyGetter struct {
	_coll collate.Collator
	_col  *chunk.Vector
	_buf  []byte
}

func (g *stringKeyGetter) Reset(keyCols []*chunk.Vector) {
	g._col = keyCols[0]
}

func (g *stringKeyGetter) Key(row int) []byte {
	g._buf = g._coll.SortKey(g._buf[:0], g._col.GetString(row))
	return g._buf
}

func (g *stringKeyGetter) Hash(key []byte) uint64 {
	return util.HashBytes(key)
}

func (g *stringKeyGetter) FixedKeySize() int {
	return -1
}

// serializedKeyGetter concatenates the encodings of all keys. Strings are
// length prefixed sort keys.
type serializedKeyGetter struct {
	_types []common.LType
	_colls []collate.Collator
	_cols  []*chunk.Vector
	_buf   []byte
	_tmp   []byte
}

func (g *serializedKeyGetter) Reset(keyCols []*chunk.Vector) {
	g._cols = keyCols
}

func (g *serializedKeyGetter) Key(row int) []byte {
	g._buf = g._buf[:0]
	for i, col := range g._cols {
		typ := g._types[i]
		if typ.IsVarchar() {
			g._tmp = g._colls[i].SortKey(g._tmp[:0], col.GetString(row))
			g._buf = binary.LittleEndian.AppendUint32(g._buf, uint32(len(g._tmp)))
			g._buf = append(g._buf, g._tmp...)
			continue
		}
		var fixed [32]byte
		n := putFixed(fixed[:], typ, col.RawBytes(row))
		g._buf = append(g._buf, fixed[:n]...)
	}
	return g._buf
}

func (g *serializedKeyGetter) Hash(key []byte) uint64 {
	return util.HashBytes(key)
}

func (g *serializedKeyGetter) FixedKeySize() int {
	return -1
}

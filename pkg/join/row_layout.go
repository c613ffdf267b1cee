package join

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/util"
)

// Row format in a container arena. Rows start 8 byte aligned.
//
//	[next u64][hash u64][matched u32][pad u32]
//	[validity bitmap of raw key + other columns]
//	[key: fixed bytes | u32 len + bytes]
//	[other columns in layout order: fixed bytes | u32 len + bytes]
const (
	rowNextOffset    = 0
	rowHashOffset    = 8
	rowMatchedOffset = 16
	rowHeaderSize    = 24
)

type rawKeyColumn struct {
	// position in the pruned build schema
	ColPos int
	KeyIdx int
	// byte offset inside a fixed key
	KeyOffset int
}

// RowLayout describes how build rows are serialized. Raw key columns are
// read back from the key bytes instead of being stored twice.
type RowLayout struct {
	Types         []common.LType
	RawKeyColumns []rawKeyColumn
	OtherColumns  []int
	// OtherColumns[:OtherColumnCountForOtherCondition] feed the other condition.
	OtherColumnCountForOtherCondition int
	// 0 for cross, -1 for variable keys
	KeyFixedSize int

	_bitmapBytes int
	_keyOffset   int
}

func planRowLayout(
	method KeyMethod,
	keyNames []string,
	keyTypes []common.LType,
	right *chunk.Schema,
	otherCondColumns map[string]bool,
	keyFixedSize int,
) *RowLayout {
	layout := &RowLayout{
		Types: util.CopyTo(right.Types),
	}
	switch {
	case method == Cross:
		layout.KeyFixedSize = 0
	case method.isFixed():
		layout.KeyFixedSize = keyFixedSize
	default:
		layout.KeyFixedSize = -1
	}

	isRaw := make([]bool, right.Len())
	if method != KeySerialized {
		keyOffset := 0
		for i, name := range keyNames {
			eligible := method.isFixed() || method == OneKeyStringBin
			//float keys are normalized, -0 and NaN payloads would not survive
			if keyTypes[i].PTyp == common.FLOAT || keyTypes[i].PTyp == common.DOUBLE {
				eligible = false
			}
			pos := right.IndexOf(name)
			if eligible && pos >= 0 && !isRaw[pos] {
				isRaw[pos] = true
				layout.RawKeyColumns = append(layout.RawKeyColumns, rawKeyColumn{
					ColPos:    pos,
					KeyIdx:    i,
					KeyOffset: keyOffset,
				})
			}
			if method.isFixed() {
				keyOffset += keyTypes[i].FixedSize()
			}
		}
	}

	var condFixed, condVar, restFixed, restVar []int
	for pos, name := range right.Names {
		if isRaw[pos] {
			continue
		}
		fixed := right.Types[pos].IsFixedWidth()
		switch {
		case otherCondColumns[name] && fixed:
			condFixed = append(condFixed, pos)
		case otherCondColumns[name]:
			condVar = append(condVar, pos)
		case fixed:
			restFixed = append(restFixed, pos)
		default:
			restVar = append(restVar, pos)
		}
	}
	layout.OtherColumns = append(layout.OtherColumns, condFixed...)
	layout.OtherColumns = append(layout.OtherColumns, condVar...)
	layout.OtherColumnCountForOtherCondition = len(layout.OtherColumns)
	layout.OtherColumns = append(layout.OtherColumns, restFixed...)
	layout.OtherColumns = append(layout.OtherColumns, restVar...)

	util.Assertf(len(layout.RawKeyColumns)+len(layout.OtherColumns) == right.Len(),
		"row layout: raw %d + other %d != %d", len(layout.RawKeyColumns), len(layout.OtherColumns), right.Len())

	layout._bitmapBytes = util.EntryCount(right.Len())
	layout._keyOffset = rowHeaderSize + layout._bitmapBytes
	return layout
}

func (layout *RowLayout) keySize(key []byte) int {
	if layout.KeyFixedSize >= 0 {
		return layout.KeyFixedSize
	}
	return 4 + len(key)
}

func columnSize(vec *chunk.Vector, row int) int {
	if vec.Typ().IsVarchar() {
		if vec.IsNull(row) {
			return 4
		}
		return 4 + len(vec.GetString(row))
	}
	return vec.Typ().FixedSize()
}

// rowSize returns the aligned size of the row and the bytes of the
// columns that late materialization may skip.
func (layout *RowLayout) rowSize(key []byte, cols []*chunk.Vector, row int) (int, int) {
	sz := layout._keyOffset + layout.keySize(key)
	lmSize := 0
	for i, pos := range layout.OtherColumns {
		csz := columnSize(cols[pos], row)
		sz += csz
		if i >= layout.OtherColumnCountForOtherCondition {
			lmSize += csz
		}
	}
	return util.AlignValue8(sz), lmSize
}

// encodeRow writes row into dst, which holds exactly rowSize bytes.
func (layout *RowLayout) encodeRow(dst []byte, hash uint64, key []byte, cols []*chunk.Vector, row int) {
	binary.LittleEndian.PutUint64(dst[rowNextOffset:], 0)
	binary.LittleEndian.PutUint64(dst[rowHashOffset:], hash)
	binary.LittleEndian.PutUint64(dst[rowMatchedOffset:], 0)
	bitmap := dst[rowHeaderSize:layout._keyOffset]
	clear(bitmap)
	for i, raw := range layout.RawKeyColumns {
		if !cols[raw.ColPos].IsNull(row) {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	off := layout._keyOffset
	if layout.KeyFixedSize >= 0 {
		copy(dst[off:off+layout.KeyFixedSize], key)
		off += layout.KeyFixedSize
	} else {
		binary.LittleEndian.PutUint32(dst[off:], uint32(len(key)))
		off += 4
		off += copy(dst[off:], key)
	}
	rawCnt := len(layout.RawKeyColumns)
	for i, pos := range layout.OtherColumns {
		vec := cols[pos]
		null := vec.IsNull(row)
		if !null {
			bit := rawCnt + i
			bitmap[bit/8] |= 1 << (bit % 8)
		}
		if vec.Typ().IsVarchar() {
			if null {
				binary.LittleEndian.PutUint32(dst[off:], 0)
				off += 4
				continue
			}
			s := vec.GetString(row)
			binary.LittleEndian.PutUint32(dst[off:], uint32(len(s)))
			off += 4
			off += copy(dst[off:], s)
			continue
		}
		sz := vec.Typ().FixedSize()
		if null {
			clear(dst[off : off+sz])
		} else {
			copy(dst[off:off+sz], vec.RawBytes(row))
		}
		off += sz
	}
	clear(dst[off:])
}

func rowNext(row []byte) uint64 {
	return binary.LittleEndian.Uint64(row[rowNextOffset:])
}

func setRowNext(row []byte, next uint64) {
	binary.LittleEndian.PutUint64(row[rowNextOffset:], next)
}

func rowHash(row []byte) uint64 {
	return binary.LittleEndian.Uint64(row[rowHashOffset:])
}

func rowMatched(row []byte) *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&row[rowMatchedOffset]))
}

func (layout *RowLayout) rowKey(row []byte) []byte {
	off := layout._keyOffset
	if layout.KeyFixedSize >= 0 {
		return row[off : off+layout.KeyFixedSize]
	}
	l := int(binary.LittleEndian.Uint32(row[off:]))
	return row[off+4 : off+4+l]
}

func (layout *RowLayout) otherOffset(row []byte) int {
	off := layout._keyOffset
	if layout.KeyFixedSize >= 0 {
		return off + layout.KeyFixedSize
	}
	return off + 4 + int(binary.LittleEndian.Uint32(row[off:]))
}

func rowBitIsValid(row []byte, bit int) bool {
	return row[rowHeaderSize+bit/8]&(1<<(bit%8)) != 0
}

// decodeRawKeys fills the raw key columns of dst row idx.
func (layout *RowLayout) decodeRawKeys(row []byte, dst *chunk.Chunk, idx int) {
	if len(layout.RawKeyColumns) == 0 {
		return
	}
	key := layout.rowKey(row)
	for i, raw := range layout.RawKeyColumns {
		vec := dst.Data[raw.ColPos]
		if !rowBitIsValid(row, i) {
			vec.SetNull(idx, true)
			continue
		}
		if vec.Typ().IsVarchar() {
			vec.SetString(idx, string(key))
			continue
		}
		sz := vec.Typ().FixedSize()
		vec.SetRawBytes(idx, key[raw.KeyOffset:raw.KeyOffset+sz])
	}
}

// decodeOthers fills OtherColumns[from:to) of dst row idx.
func (layout *RowLayout) decodeOthers(row []byte, dst *chunk.Chunk, idx int, from, to int) {
	off := layout.otherOffset(row)
	rawCnt := len(layout.RawKeyColumns)
	for i := 0; i < to; i++ {
		pos := layout.OtherColumns[i]
		typ := layout.Types[pos]
		var field []byte
		if typ.IsVarchar() {
			l := int(binary.LittleEndian.Uint32(row[off:]))
			field = row[off+4 : off+4+l]
			off += 4 + l
		} else {
			sz := typ.FixedSize()
			field = row[off : off+sz]
			off += sz
		}
		if i < from {
			continue
		}
		vec := dst.Data[pos]
		if !rowBitIsValid(row, rawCnt+i) {
			vec.SetNull(idx, true)
		} else if typ.IsVarchar() {
			vec.SetString(idx, string(field))
		} else {
			vec.SetRawBytes(idx, field)
		}
	}
}

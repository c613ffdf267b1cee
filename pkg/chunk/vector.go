package chunk

import (
	"math"

	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/util"
)

// Vector is one column of a Chunk. Fixed width values live in Data,
// varchar values in Strs.
type Vector struct {
	_PhyFormat PhyFormat
	_Typ       common.LType
	_Cap       int
	Data       []byte
	Strs       []string
	Mask       *util.Bitmap
}

func NewFlatVector(typ common.LType, cap int) *Vector {
	vec := &Vector{
		_PhyFormat: PF_FLAT,
		_Typ:       typ,
		Mask:       &util.Bitmap{},
	}
	vec.Init(cap)
	return vec
}

func NewConstVector(val *Value) *Vector {
	vec := NewFlatVector(val.Typ, 1)
	vec.SetValue(0, val)
	vec._PhyFormat = PF_CONST
	return vec
}

func (vec *Vector) Init(cap int) {
	vec._Cap = cap
	vec.Mask.Reset()
	if vec._Typ.IsVarchar() {
		vec.Strs = make([]string, cap)
		vec.Data = nil
		return
	}
	sz := vec._Typ.FixedSize()
	if sz > 0 {
		vec.Data = make([]byte, sz*cap)
	}
}

func (vec *Vector) Typ() common.LType {
	return vec._Typ
}

func (vec *Vector) PhyFormat() PhyFormat {
	return vec._PhyFormat
}

func (vec *Vector) Cap() int {
	return vec._Cap
}

// Reserve grows the vector to hold at least cap rows, keeping the content.
func (vec *Vector) Reserve(cap int) {
	if cap <= vec._Cap {
		return
	}
	util.AssertFunc(vec._PhyFormat.IsFlat())
	ncap := max(cap, 2*vec._Cap)
	if vec._Typ.IsVarchar() {
		strs := make([]string, ncap)
		copy(strs, vec.Strs)
		vec.Strs = strs
	} else if sz := vec._Typ.FixedSize(); sz > 0 {
		data := make([]byte, sz*ncap)
		copy(data, vec.Data)
		vec.Data = data
	}
	vec._Cap = ncap
}

// Reset clears validity so the vector can be refilled from row 0.
func (vec *Vector) Reset() {
	vec.Mask.Reset()
}

func GetSliceInPhyFormatFlat[T any](vec *Vector) []T {
	return util.ToSlice[T](vec.Data, vec._Typ.FixedSize())
}

func (vec *Vector) physicalIdx(idx int) int {
	if vec._PhyFormat.IsConst() {
		return 0
	}
	return idx
}

func (vec *Vector) IsNull(idx int) bool {
	return !vec.Mask.RowIsValid(uint64(vec.physicalIdx(idx)))
}

func (vec *Vector) SetNull(idx int, null bool) {
	vec.Mask.Set(uint64(idx), !null)
}

func (vec *Vector) GetString(idx int) string {
	return vec.Strs[vec.physicalIdx(idx)]
}

func (vec *Vector) SetString(idx int, s string) {
	vec.Strs[idx] = s
	vec.Mask.SetValid(uint64(idx))
}

// RawBytes returns the fixed width storage of row idx.
func (vec *Vector) RawBytes(idx int) []byte {
	sz := vec._Typ.FixedSize()
	pIdx := vec.physicalIdx(idx)
	return vec.Data[pIdx*sz : (pIdx+1)*sz]
}

// SetRawBytes stores the fixed width encoding b at row idx and marks it valid.
func (vec *Vector) SetRawBytes(idx int, b []byte) {
	sz := vec._Typ.FixedSize()
	copy(vec.Data[idx*sz:(idx+1)*sz], b)
	vec.Mask.SetValid(uint64(idx))
}

func (vec *Vector) GetValue(idx int) *Value {
	if vec.IsNull(idx) {
		return NullValue(vec._Typ)
	}
	pIdx := vec.physicalIdx(idx)
	val := &Value{Typ: vec._Typ}
	switch vec._Typ.PTyp {
	case common.BOOL:
		val.Bool = GetSliceInPhyFormatFlat[bool](vec)[pIdx]
	case common.INT8:
		val.I64 = int64(GetSliceInPhyFormatFlat[int8](vec)[pIdx])
	case common.INT16:
		val.I64 = int64(GetSliceInPhyFormatFlat[int16](vec)[pIdx])
	case common.INT32:
		val.I64 = int64(GetSliceInPhyFormatFlat[int32](vec)[pIdx])
	case common.INT64:
		val.I64 = GetSliceInPhyFormatFlat[int64](vec)[pIdx]
	case common.INT128:
		val.Huge = GetSliceInPhyFormatFlat[common.Hugeint](vec)[pIdx]
	case common.INT256:
		val.Dec256 = GetSliceInPhyFormatFlat[common.Decimal256](vec)[pIdx]
	case common.FLOAT:
		val.F64 = float64(GetSliceInPhyFormatFlat[float32](vec)[pIdx])
	case common.DOUBLE:
		val.F64 = GetSliceInPhyFormatFlat[float64](vec)[pIdx]
	case common.VARCHAR:
		val.Str = vec.Strs[pIdx]
	default:
		panic("usp")
	}
	return val
}

func (vec *Vector) SetValue(idx int, val *Value) {
	util.AssertFunc(vec._PhyFormat.IsFlat())
	if val.IsNull {
		vec.SetNull(idx, true)
		return
	}
	vec.Mask.SetValid(uint64(idx))
	switch vec._Typ.PTyp {
	case common.BOOL:
		GetSliceInPhyFormatFlat[bool](vec)[idx] = val.Bool
	case common.INT8:
		GetSliceInPhyFormatFlat[int8](vec)[idx] = int8(val.I64)
	case common.INT16:
		GetSliceInPhyFormatFlat[int16](vec)[idx] = int16(val.I64)
	case common.INT32:
		GetSliceInPhyFormatFlat[int32](vec)[idx] = int32(val.I64)
	case common.INT64:
		GetSliceInPhyFormatFlat[int64](vec)[idx] = val.I64
	case common.INT128:
		GetSliceInPhyFormatFlat[common.Hugeint](vec)[idx] = val.Huge
	case common.INT256:
		GetSliceInPhyFormatFlat[common.Decimal256](vec)[idx] = val.Dec256
	case common.FLOAT:
		GetSliceInPhyFormatFlat[float32](vec)[idx] = float32(val.F64)
	case common.DOUBLE:
		GetSliceInPhyFormatFlat[float64](vec)[idx] = val.F64
	case common.VARCHAR:
		vec.Strs[idx] = val.Str
	default:
		panic("usp")
	}
}

// Flatten turns a constant vector into a flat one of count rows.
func (vec *Vector) Flatten(count int) {
	if vec._PhyFormat.IsFlat() {
		return
	}
	val := vec.GetValue(0)
	vec._PhyFormat = PF_FLAT
	vec.Init(count)
	for i := 0; i < count; i++ {
		vec.SetValue(i, val)
	}
}

// Copy appends src rows sel[0:count) at dst rows [dstOffset, dstOffset+count).
// A nil sel means rows [0, count).
func Copy(src *Vector, sel []int, count int, dst *Vector, dstOffset int) {
	util.AssertFunc(src._Typ.PTyp == dst._Typ.PTyp)
	dst.Reserve(dstOffset + count)
	srcIdx := func(i int) int {
		if sel != nil {
			i = sel[i]
		}
		return src.physicalIdx(i)
	}
	if src._Typ.IsVarchar() {
		for i := 0; i < count; i++ {
			sIdx := srcIdx(i)
			if !src.Mask.RowIsValid(uint64(sIdx)) {
				dst.SetNull(dstOffset+i, true)
				continue
			}
			dst.SetString(dstOffset+i, src.Strs[sIdx])
		}
		return
	}
	sz := src._Typ.FixedSize()
	for i := 0; i < count; i++ {
		sIdx := srcIdx(i)
		dIdx := dstOffset + i
		if !src.Mask.RowIsValid(uint64(sIdx)) {
			dst.SetNull(dIdx, true)
			continue
		}
		dst.Mask.SetValid(uint64(dIdx))
		copy(dst.Data[dIdx*sz:(dIdx+1)*sz], src.Data[sIdx*sz:(sIdx+1)*sz])
	}
}

// AppendNulls sets rows [offset, offset+count) to NULL.
func AppendNulls(vec *Vector, offset, count int) {
	vec.Reserve(offset + count)
	for i := 0; i < count; i++ {
		vec.SetNull(offset+i, true)
	}
}

// NormalizeFloat maps -0 to +0 so equal floats share one bit pattern.
func NormalizeFloat(f float64) float64 {
	if f == 0 {
		return 0
	}
	if math.IsNaN(f) {
		return math.NaN()
	}
	return f
}

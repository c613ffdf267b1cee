package join

import (
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/collate"
)

type semiResult int8

const (
	semiFalse semiResult = iota
	semiTrue
	semiNull
)

// nullAwareChannel answers NOT IN style questions the hash chains can not:
// whether a build row with null key parts may equal a probe row.
type nullAwareChannel struct {
	_mu       sync.Mutex
	_keyCount int
	_rowCount int
	// key tuples of build rows with a null key part
	_nullKeyRows [][]*chunk.Value
	// all key tuples; only kept for multi key joins
	_allKeyRows [][]*chunk.Value
}

func newNullAwareChannel(keyCount int) *nullAwareChannel {
	return &nullAwareChannel{_keyCount: keyCount}
}

func keyTuple(keyCols []*chunk.Vector, row int) []*chunk.Value {
	vals := make([]*chunk.Value, len(keyCols))
	for i, col := range keyCols {
		vals[i] = col.GetValue(row)
	}
	return vals
}

// addBlock records the build rows that pass the build filter.
func (na *nullAwareChannel) addBlock(keyCols []*chunk.Vector, count int, nullKeys, filtered *roaring.Bitmap) {
	var nullRows, allRows [][]*chunk.Value
	rows := 0
	for i := 0; i < count; i++ {
		if filtered.Contains(uint32(i)) {
			continue
		}
		rows++
		hasNull := nullKeys.Contains(uint32(i))
		if !hasNull && na._keyCount == 1 {
			continue
		}
		tuple := keyTuple(keyCols, i)
		if hasNull {
			nullRows = append(nullRows, tuple)
		}
		if na._keyCount > 1 {
			allRows = append(allRows, tuple)
		}
	}
	na._mu.Lock()
	defer na._mu.Unlock()
	na._rowCount += rows
	na._nullKeyRows = append(na._nullKeyRows, nullRows...)
	na._allKeyRows = append(na._allKeyRows, allRows...)
}

// possiblyEqual is false when some pair of non-null parts differs.
func possiblyEqual(a, b []*chunk.Value, colls []collate.Collator) bool {
	for i := range a {
		if a[i].IsNull || b[i].IsNull {
			continue
		}
		if a[i].Typ.IsVarchar() {
			if colls[i].Compare(a[i].Str, b[i].Str) != 0 {
				return false
			}
			continue
		}
		if a[i].Compare(b[i]) != 0 {
			return false
		}
	}
	return true
}

// nullKeyResult is the IN result of a probe row with a null key part.
func (na *nullAwareChannel) nullKeyResult(probe []*chunk.Value, colls []collate.Collator) semiResult {
	if na._rowCount == 0 {
		return semiFalse
	}
	if na._keyCount == 1 {
		return semiNull
	}
	for _, build := range na._allKeyRows {
		if possiblyEqual(probe, build, colls) {
			return semiNull
		}
	}
	return semiFalse
}

// noMatchResult is the IN result of a non-null probe key without an equal
// build key.
func (na *nullAwareChannel) noMatchResult(probe []*chunk.Value, colls []collate.Collator) semiResult {
	for _, build := range na._nullKeyRows {
		if possiblyEqual(probe, build, colls) {
			return semiNull
		}
	}
	return semiFalse
}

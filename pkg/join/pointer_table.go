package join

import (
	"sync"
	"sync/atomic"

	"github.com/daviszhen/hashjoin/pkg/util"
)

// PointerTable is the hash index over the row containers. Each slot heads
// a chain of rows linked through their next field.
type PointerTable struct {
	_slots    []atomic.Uint64
	_degree   uint
	_tagged   bool
	_prefetch bool

	_mu sync.Mutex
	// containers of the insertable partitions, claimed front to back
	_todo      []ptBuildTask
	_todoIdx   int
	_todoRow   int
	_activeCnt atomic.Int64
	_built     atomic.Bool
}

type ptBuildTask struct {
	partition    int
	containerIdx int
	container    *RowContainer
}

// ptBuildRange is a claimed slice of rows in one container.
type ptBuildRange struct {
	ptBuildTask
	begin, end int
}

func pointerTableSize(method KeyMethod, rowCount int, loadFactor float64) int {
	if method == Cross {
		return 1
	}
	want := uint64(float64(rowCount) / loadFactor)
	return max(MinPointerTableSize, int(util.NextPowerOfTwo(want)))
}

func (pt *PointerTable) init(
	method KeyMethod,
	rowCount int,
	settings *Settings,
	tagged bool,
	partitions []*MultipleRowContainer,
	builders int,
) {
	size := pointerTableSize(method, rowCount, settings.PointerTableLoadFactor)
	pt._slots = make([]atomic.Uint64, size)
	pt._degree = util.Log2(uint64(size))
	pt._tagged = tagged
	pt._prefetch = size > settings.ProbeEnablePrefetchThreshold
	for p := 0; p < JoinBuildPartitionCount; p++ {
		for i, rc := range partitions[p]._containers {
			if rc.RowCount() == 0 {
				continue
			}
			pt._todo = append(pt._todo, ptBuildTask{
				partition:    p,
				containerIdx: i,
				container:    rc,
			})
		}
	}
	pt._activeCnt.Store(int64(builders))
}

func (pt *PointerTable) Size() int {
	return len(pt._slots)
}

func (pt *PointerTable) bucket(hash uint64) uint64 {
	return hash >> (64 - pt._degree)
}

func tagBit(hash uint64) uint64 {
	return 1 << ((hash >> 32) & 15)
}

// claim hands out the next range of at most maxRows rows.
func (pt *PointerTable) claim(maxRows int) (ptBuildRange, bool) {
	pt._mu.Lock()
	defer pt._mu.Unlock()
	for pt._todoIdx < len(pt._todo) {
		task := pt._todo[pt._todoIdx]
		rows := task.container.RowCount()
		if pt._todoRow >= rows {
			pt._todoIdx++
			pt._todoRow = 0
			continue
		}
		r := ptBuildRange{
			ptBuildTask: task,
			begin:       pt._todoRow,
			end:         min(rows, pt._todoRow+maxRows),
		}
		pt._todoRow = r.end
		return r, true
	}
	return ptBuildRange{}, false
}

// build links one claimed range into the table. It returns true once
// nothing is left to claim.
func (pt *PointerTable) build(maxRows int) bool {
	r, ok := pt.claim(maxRows)
	if !ok {
		return true
	}
	for i := r.begin; i < r.end; i++ {
		off := int(r.container._offsets[i])
		row := r.container.rowAt(off)
		hash := rowHash(row)
		ptr := makeRowPtr(r.partition, r.containerIdx, off, pt._tagged)
		slot := &pt._slots[pt.bucket(hash)]
		for {
			old := slot.Load()
			nval := ptr
			if pt._tagged {
				setRowNext(row, old&taggedPointerMask)
				nval |= (old &^ taggedPointerMask) | tagBit(hash)<<taggedPointerBits
			} else {
				setRowNext(row, old)
			}
			if slot.CompareAndSwap(old, nval) {
				break
			}
		}
	}
	return false
}

// finishBuilder reports whether the caller was the last active builder.
func (pt *PointerTable) finishBuilder() bool {
	if pt._activeCnt.Add(-1) == 0 {
		pt._built.Store(true)
		return true
	}
	return false
}

func (pt *PointerTable) built() bool {
	return pt._built.Load()
}

// head returns the first row of the bucket of hash, or 0 when the tag
// filter proves there is no row with this hash.
func (pt *PointerTable) head(hash uint64) rowPtr {
	val := pt._slots[pt.bucket(hash)].Load()
	if !pt._tagged {
		return val
	}
	if (val>>taggedPointerBits)&tagBit(hash) == 0 {
		return 0
	}
	return val & taggedPointerMask
}

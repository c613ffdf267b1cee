package join

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/daviszhen/hashjoin/pkg/util"
)

// rowPtr addresses a row: partition, container index + 1 and byte offset.
// Tagged pointers leave the top 16 bits free for the tag filter.
type rowPtr = uint64

const (
	rowPtrOffsetBits          = 32
	untaggedContainerBits     = 27
	taggedContainerBits       = 11
	taggedPointerBits         = 48
	taggedPointerMask  uint64 = 1<<taggedPointerBits - 1
	maxTaggedContainers       = 1 << taggedContainerBits
)

var rowContainerMaxBytes = 1 << 30

func makeRowPtr(partition, containerIdx, offset int, tagged bool) rowPtr {
	cb := untaggedContainerBits
	if tagged {
		cb = taggedContainerBits
	}
	return uint64(partition)<<(rowPtrOffsetBits+cb) |
		uint64(containerIdx+1)<<rowPtrOffsetBits |
		uint64(offset)
}

func splitRowPtr(ptr rowPtr, tagged bool) (partition, containerIdx, offset int) {
	cb := untaggedContainerBits
	if tagged {
		cb = taggedContainerBits
	}
	partition = int(ptr >> (rowPtrOffsetBits + cb))
	containerIdx = int((ptr>>rowPtrOffsetBits)&(1<<cb-1)) - 1
	offset = int(ptr & (1<<rowPtrOffsetBits - 1))
	return
}

// RowContainer is an append only arena of serialized rows. Only the
// worker that created it appends.
type RowContainer struct {
	_alloc   util.BytesAllocator
	_data    []byte
	_size    int
	_offsets []uint32
}

func newRowContainer(alloc util.BytesAllocator) *RowContainer {
	return &RowContainer{_alloc: alloc}
}

func (rc *RowContainer) RowCount() int {
	return len(rc._offsets)
}

func (rc *RowContainer) Bytes() int {
	return rc._size
}

func (rc *RowContainer) full() bool {
	return rc._size >= rowContainerMaxBytes
}

// allocRow reserves sz bytes and returns them.
func (rc *RowContainer) allocRow(sz int) ([]byte, error) {
	if rc._size+sz > len(rc._data) {
		ncap := max(4096, 2*len(rc._data), rc._size+sz)
		data, err := rc._alloc.Alloc(ncap)
		if err != nil {
			return nil, errors.Wrapf(err, "grow row container to %d bytes", ncap)
		}
		copy(data, rc._data[:rc._size])
		if rc._data != nil {
			rc._alloc.Free(rc._data)
		}
		rc._data = data
	}
	off := rc._size
	rc._size += sz
	rc._offsets = append(rc._offsets, uint32(off))
	return rc._data[off:rc._size], nil
}

func (rc *RowContainer) rowAt(offset int) []byte {
	return rc._data[offset:rc._size]
}

func (rc *RowContainer) free() {
	if rc._data != nil {
		rc._alloc.Free(rc._data)
	}
	rc._data = nil
	rc._offsets = nil
	rc._size = 0
}

// MultipleRowContainer collects the containers of one partition from all
// build workers.
type MultipleRowContainer struct {
	_mu         sync.Mutex
	_containers []*RowContainer
	// next container to scan after probe
	_scanCursor int
}

// register appends rc and returns its index.
func (mrc *MultipleRowContainer) register(rc *RowContainer) int {
	mrc._mu.Lock()
	defer mrc._mu.Unlock()
	mrc._containers = append(mrc._containers, rc)
	return len(mrc._containers) - 1
}

func (mrc *MultipleRowContainer) rowCount() int {
	cnt := 0
	for _, rc := range mrc._containers {
		cnt += rc.RowCount()
	}
	return cnt
}

func (mrc *MultipleRowContainer) bytes() int {
	sz := 0
	for _, rc := range mrc._containers {
		sz += rc.Bytes()
	}
	return sz
}

// claimForScan hands out each container once.
func (mrc *MultipleRowContainer) claimForScan() *RowContainer {
	mrc._mu.Lock()
	defer mrc._mu.Unlock()
	if mrc._scanCursor >= len(mrc._containers) {
		return nil
	}
	rc := mrc._containers[mrc._scanCursor]
	mrc._scanCursor++
	return rc
}

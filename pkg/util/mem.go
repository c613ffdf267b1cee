package util

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

var ErrAllocFailed = errors.New("memory allocation failed")

type BytesAllocator interface {
	Alloc(sz int) ([]byte, error)
	Free([]byte)
}

type DefaultAllocator struct {
}

func (alloc *DefaultAllocator) Alloc(sz int) ([]byte, error) {
	return make([]byte, sz), nil
}

func (alloc *DefaultAllocator) Free(bytes []byte) {
}

var GAlloc BytesAllocator = &DefaultAllocator{}

// LimitAllocator fails once the bytes in use would exceed the limit.
type LimitAllocator struct {
	_limit int64
	_used  atomic.Int64
}

func NewLimitAllocator(limit int64) *LimitAllocator {
	return &LimitAllocator{_limit: limit}
}

func (alloc *LimitAllocator) Alloc(sz int) ([]byte, error) {
	if alloc._used.Add(int64(sz)) > alloc._limit {
		alloc._used.Add(-int64(sz))
		return nil, ErrAllocFailed
	}
	return make([]byte, sz), nil
}

func (alloc *LimitAllocator) Free(bytes []byte) {
	alloc._used.Add(-int64(cap(bytes)))
}

func (alloc *LimitAllocator) Used() int64 {
	return alloc._used.Load()
}

package util

import (
	"unsafe"
)

// ToSlice views data as a slice of T. pSize is the size of T.
func ToSlice[T any](data []byte, pSize int) []T {
	if len(data) == 0 {
		return nil
	}
	slen := len(data) / pSize
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), slen)
}

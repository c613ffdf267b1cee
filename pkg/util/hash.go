package util

import (
	"encoding/binary"
)

const (
	M    uint64 = 0xc6a4a7935bd1e995
	SEED uint64 = 0xe17a1465
	R    uint64 = 47

	NullHash uint64 = 0xbf58476d1ce4e5b9
)

// HashBytes is murmurhash64A over data.
func HashBytes(data []byte) uint64 {
	l := uint64(len(data))
	h := SEED ^ (l * M)

	nBlocks := l / 8
	for i := uint64(0); i < nBlocks; i++ {
		k := binary.LittleEndian.Uint64(data[i*8:])
		k *= M
		k ^= k >> R
		k *= M

		h ^= k
		h *= M
	}
	tail := data[nBlocks*8:]
	switch l & 7 {
	case 7:
		h ^= uint64(tail[6]) << 48
		fallthrough
	case 6:
		h ^= uint64(tail[5]) << 40
		fallthrough
	case 5:
		h ^= uint64(tail[4]) << 32
		fallthrough
	case 4:
		h ^= uint64(tail[3]) << 24
		fallthrough
	case 3:
		h ^= uint64(tail[2]) << 16
		fallthrough
	case 2:
		h ^= uint64(tail[1]) << 8
		fallthrough
	case 1:
		h ^= uint64(tail[0])
		h *= M
	}
	h ^= h >> R
	h *= M
	h ^= h >> R
	return h
}

// HashUint64 is the murmur 64-bit finalizer.
func HashUint64(x uint64) uint64 {
	x ^= x >> 32
	x *= 0xd6e8feb86659fd93
	x ^= x >> 32
	x *= 0xd6e8feb86659fd93
	x ^= x >> 32
	return x
}


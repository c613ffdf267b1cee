package join

import (
	"fmt"

	"github.com/daviszhen/hashjoin/pkg/collate"
	"github.com/daviszhen/hashjoin/pkg/common"
)

// KeyMethod is the physical encoding of the join key.
type KeyMethod int

const (
	Cross KeyMethod = iota
	OneKey8
	OneKey16
	OneKey32
	OneKey64
	OneKey128
	KeysFixed32
	KeysFixed64
	KeysFixed128
	KeysFixed256
	KeysFixedOther
	OneKeyStringBin
	OneKeyStringBinPadding
	OneKeyString
	KeySerialized
)

var keyMethodNames = []string{
	Cross:                  "cross",
	OneKey8:                "one_key_8",
	OneKey16:               "one_key_16",
	OneKey32:               "one_key_32",
	OneKey64:               "one_key_64",
	OneKey128:              "one_key_128",
	KeysFixed32:            "keys_fixed_32",
	KeysFixed64:            "keys_fixed_64",
	KeysFixed128:           "keys_fixed_128",
	KeysFixed256:           "keys_fixed_256",
	KeysFixedOther:         "keys_fixed_other",
	OneKeyStringBin:        "one_key_string_bin",
	OneKeyStringBinPadding: "one_key_string_bin_padding",
	OneKeyString:           "one_key_string",
	KeySerialized:          "key_serialized",
}

func (method KeyMethod) String() string {
	if int(method) < 0 || int(method) >= len(keyMethodNames) {
		panic(fmt.Sprintf("usp key method %d", method))
	}
	return keyMethodNames[method]
}

func (method KeyMethod) isFixed() bool {
	return method >= OneKey8 && method <= KeysFixedOther
}

func (method KeyMethod) isString() bool {
	return method >= OneKeyStringBin && method <= OneKeyString
}

// SelectKeyMethod picks the key encoding. It only depends on its arguments.
// The second result is the summed byte width of fixed keys, 0 otherwise.
func SelectKeyMethod(keyTypes []common.LType, collators []collate.Kind) (KeyMethod, int) {
	if len(keyTypes) == 0 {
		return Cross, 0
	}
	for _, typ := range keyTypes {
		if typ.IsWideDecimal() {
			return KeySerialized, 0
		}
	}
	allFixed := true
	keySize := 0
	for _, typ := range keyTypes {
		if !typ.IsFixedWidth() {
			allFixed = false
			break
		}
		keySize += typ.FixedSize()
	}
	if allFixed {
		return findFixedSizeKeyMethod(len(keyTypes), keySize), keySize
	}
	if len(keyTypes) == 1 && keyTypes[0].IsVarchar() {
		kind := collate.KindBinary
		if len(collators) > 0 {
			kind = collators[0]
		}
		switch kind {
		case collate.KindBinary:
			return OneKeyStringBin, 0
		case collate.KindBinaryPadding:
			return OneKeyStringBinPadding, 0
		default:
			return OneKeyString, 0
		}
	}
	return KeySerialized, 0
}

func findFixedSizeKeyMethod(keyCount int, keySize int) KeyMethod {
	if keyCount == 1 {
		switch keySize {
		case 1:
			return OneKey8
		case 2:
			return OneKey16
		case 4:
			return OneKey32
		case 8:
			return OneKey64
		case 16:
			return OneKey128
		}
	}
	switch {
	case keySize <= 4:
		return KeysFixed32
	case keySize <= 8:
		return KeysFixed64
	case keySize <= 16:
		return KeysFixed128
	case keySize <= 32:
		return KeysFixed256
	}
	return KeysFixedOther
}

package common

import (
	"fmt"
	"math/big"
)

type Hugeint struct {
	Lower uint64
	Upper int64
}

func (h Hugeint) String() string {
	return h.Big().String()
}

func (h *Hugeint) Equal(o *Hugeint) bool {
	return h.Lower == o.Lower && h.Upper == o.Upper
}

func (h Hugeint) Big() *big.Int {
	ret := new(big.Int).SetInt64(h.Upper)
	ret.Lsh(ret, 64)
	return ret.Or(ret, new(big.Int).SetUint64(h.Lower))
}

func HugeintFromBig(v *big.Int) (Hugeint, error) {
	if v.BitLen() > 127 {
		return Hugeint{}, fmt.Errorf("%s out of hugeint range", v)
	}
	lower := new(big.Int).And(v, maxUint64Big)
	upper := new(big.Int).Rsh(v, 64)
	return Hugeint{Lower: lower.Uint64(), Upper: upper.Int64()}, nil
}

func HugeintFromInt64(v int64) Hugeint {
	h := Hugeint{Lower: uint64(v)}
	if v < 0 {
		h.Upper = -1
	}
	return h
}

func (h Hugeint) Compare(o Hugeint) int {
	if h.Upper != o.Upper {
		if h.Upper < o.Upper {
			return -1
		}
		return 1
	}
	if h.Lower != o.Lower {
		if h.Lower < o.Lower {
			return -1
		}
		return 1
	}
	return 0
}

var maxUint64Big = new(big.Int).SetUint64(^uint64(0))

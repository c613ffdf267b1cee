package common

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	DecimalMaxWidthInt64  = 18
	DecimalMaxWidthInt128 = 38
	DecimalMaxWidth       = 76
)

// Decimal256 is a 256-bit two's complement integer, least significant limb first.
// It backs DECIMAL columns wider than 38 digits.
type Decimal256 struct {
	Limbs [4]uint64
}

func Decimal256FromBig(v *big.Int) (Decimal256, error) {
	var ret Decimal256
	if v.BitLen() > 255 {
		return ret, fmt.Errorf("%s out of decimal256 range", v)
	}
	tmp := new(big.Int).Set(v)
	if v.Sign() < 0 {
		tmp.Add(tmp, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	for i := 0; i < 4; i++ {
		ret.Limbs[i] = new(big.Int).And(tmp, maxUint64Big).Uint64()
		tmp.Rsh(tmp, 64)
	}
	return ret, nil
}

func (d Decimal256) Big() *big.Int {
	ret := new(big.Int)
	for i := 3; i >= 0; i-- {
		ret.Lsh(ret, 64)
		ret.Or(ret, new(big.Int).SetUint64(d.Limbs[i]))
	}
	if d.Limbs[3]>>63 == 1 {
		ret.Sub(ret, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return ret
}

func (d Decimal256) Compare(o Decimal256) int {
	return d.Big().Cmp(o.Big())
}

// FormatScaled renders the unscaled integer v with scale digits after the point.
func FormatScaled(v *big.Int, scale int) string {
	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()
	if scale > 0 {
		if len(digits) <= scale {
			digits = strings.Repeat("0", scale-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// ParseScaled parses a decimal literal into an unscaled integer with the given scale.
// Extra fractional digits are truncated.
func ParseScaled(s string, scale int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if len(fracPart) > scale {
		fracPart = fracPart[:scale]
	}
	fracPart += strings.Repeat("0", scale-len(fracPart))
	ret, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	if neg {
		ret.Neg(ret)
	}
	return ret, nil
}

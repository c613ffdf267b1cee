package chunk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/decimal"

	"github.com/daviszhen/hashjoin/pkg/common"
)

type Value struct {
	Typ    common.LType
	IsNull bool
	//value
	Bool   bool
	I64    int64
	F64    float64
	Str    string
	Huge   common.Hugeint
	Dec256 common.Decimal256
}

func NullValue(typ common.LType) *Value {
	return &Value{Typ: typ, IsNull: true}
}

func (val Value) String() string {
	if val.IsNull {
		return "NULL"
	}
	switch val.Typ.Id {
	case common.LTID_BOOLEAN:
		return fmt.Sprintf("%v", val.Bool)
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT:
		return fmt.Sprintf("%d", val.I64)
	case common.LTID_HUGEINT:
		return val.Huge.String()
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		return strconv.FormatFloat(val.F64, 'g', -1, 64)
	case common.LTID_VARCHAR:
		return val.Str
	case common.LTID_DATE:
		return time.Unix(val.I64*86400, 0).UTC().Format(time.DateOnly)
	case common.LTID_DECIMAL:
		switch val.Typ.PTyp {
		case common.INT64:
			d, err := decimal.New(val.I64, val.Typ.Scale)
			if err != nil {
				panic(err)
			}
			return d.String()
		case common.INT128:
			return common.FormatScaled(val.Huge.Big(), val.Typ.Scale)
		default:
			return common.FormatScaled(val.Dec256.Big(), val.Typ.Scale)
		}
	default:
		panic("usp")
	}
}

// Compare orders two non-null values of the same type.
func (val *Value) Compare(o *Value) int {
	switch val.Typ.Id {
	case common.LTID_BOOLEAN:
		return compareOrdered(boolToInt(val.Bool), boolToInt(o.Bool))
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT, common.LTID_DATE:
		return compareOrdered(val.I64, o.I64)
	case common.LTID_HUGEINT:
		return val.Huge.Compare(o.Huge)
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		return compareOrdered(val.F64, o.F64)
	case common.LTID_VARCHAR:
		return strings.Compare(val.Str, o.Str)
	case common.LTID_DECIMAL:
		switch val.Typ.PTyp {
		case common.INT64:
			return compareOrdered(val.I64, o.I64)
		case common.INT128:
			return val.Huge.Compare(o.Huge)
		default:
			return val.Dec256.Compare(o.Dec256)
		}
	default:
		panic("usp")
	}
}

// Float64 converts a numeric value for cross type comparisons.
func (val *Value) Float64() float64 {
	switch val.Typ.Id {
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT, common.LTID_DATE:
		return float64(val.I64)
	case common.LTID_HUGEINT:
		f, _ := val.Huge.Big().Float64()
		return f
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		return val.F64
	case common.LTID_BOOLEAN:
		return float64(boolToInt(val.Bool))
	case common.LTID_DECIMAL:
		var f float64
		switch val.Typ.PTyp {
		case common.INT64:
			f = float64(val.I64)
		case common.INT128:
			f, _ = val.Huge.Big().Float64()
		default:
			f, _ = val.Dec256.Big().Float64()
		}
		return f / math.Pow10(val.Typ.Scale)
	default:
		panic("usp")
	}
}

// ParseValue converts a text field into a value of typ.
// The literal "NULL" and the empty string of non-varchar types become NULL.
func ParseValue(field string, typ common.LType) (*Value, error) {
	val := &Value{Typ: typ}
	if field == "NULL" || (field == "" && !typ.IsVarchar()) {
		val.IsNull = true
		return val, nil
	}
	var err error
	switch typ.Id {
	case common.LTID_BOOLEAN:
		val.Bool, err = strconv.ParseBool(field)
	case common.LTID_TINYINT:
		val.I64, err = strconv.ParseInt(field, 10, 8)
	case common.LTID_SMALLINT:
		val.I64, err = strconv.ParseInt(field, 10, 16)
	case common.LTID_INTEGER:
		val.I64, err = strconv.ParseInt(field, 10, 32)
	case common.LTID_BIGINT:
		val.I64, err = strconv.ParseInt(field, 10, 64)
	case common.LTID_HUGEINT:
		v, perr := common.ParseScaled(field, 0)
		if perr != nil {
			return nil, perr
		}
		val.Huge, err = common.HugeintFromBig(v)
	case common.LTID_FLOAT:
		val.F64, err = strconv.ParseFloat(field, 32)
	case common.LTID_DOUBLE:
		val.F64, err = strconv.ParseFloat(field, 64)
	case common.LTID_DATE:
		d, perr := time.Parse(time.DateOnly, field)
		if perr != nil {
			return nil, perr
		}
		val.I64 = d.Unix() / 86400
	case common.LTID_VARCHAR:
		val.Str = field
	case common.LTID_DECIMAL:
		err = parseDecimal(field, val)
	default:
		panic("usp")
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func parseDecimal(field string, val *Value) error {
	scale := val.Typ.Scale
	if val.Typ.PTyp == common.INT64 {
		d, err := decimal.ParseExact(field, scale)
		if err != nil {
			return err
		}
		whole, frac, ok := d.Int64(scale)
		if !ok {
			return fmt.Errorf("decimal %s overflow", field)
		}
		val.I64 = whole*int64(math.Pow10(scale)) + frac
		return nil
	}
	v, err := common.ParseScaled(field, scale)
	if err != nil {
		return err
	}
	if val.Typ.PTyp == common.INT128 {
		val.Huge, err = common.HugeintFromBig(v)
	} else {
		val.Dec256, err = common.Decimal256FromBig(v)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareOrdered[T int | int64 | float64](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

package common

import (
	"fmt"
	"strconv"
	"strings"
)

type LType struct {
	Id    LTypeId
	PTyp  PhyType
	Width int
	Scale int
}

func MakeLType(id LTypeId) LType {
	ret := LType{Id: id}
	ret.PTyp = ret.GetInternalType()
	return ret
}

func DecimalType(width, scale int) LType {
	ret := LType{Id: LTID_DECIMAL, Width: width, Scale: scale}
	ret.PTyp = ret.GetInternalType()
	return ret
}

func BooleanType() LType {
	return MakeLType(LTID_BOOLEAN)
}

func TinyintType() LType {
	return MakeLType(LTID_TINYINT)
}

func SmallintType() LType {
	return MakeLType(LTID_SMALLINT)
}

func IntegerType() LType {
	return MakeLType(LTID_INTEGER)
}

func BigintType() LType {
	return MakeLType(LTID_BIGINT)
}

func HugeintType() LType {
	return MakeLType(LTID_HUGEINT)
}

func FloatType() LType {
	return MakeLType(LTID_FLOAT)
}

func DoubleType() LType {
	return MakeLType(LTID_DOUBLE)
}

func DateType() LType {
	return MakeLType(LTID_DATE)
}

func VarcharType() LType {
	return MakeLType(LTID_VARCHAR)
}

func (lt LType) GetInternalType() PhyType {
	switch lt.Id {
	case LTID_BOOLEAN:
		return BOOL
	case LTID_TINYINT:
		return INT8
	case LTID_SMALLINT:
		return INT16
	case LTID_INTEGER, LTID_DATE:
		return INT32
	case LTID_BIGINT:
		return INT64
	case LTID_HUGEINT:
		return INT128
	case LTID_FLOAT:
		return FLOAT
	case LTID_DOUBLE:
		return DOUBLE
	case LTID_VARCHAR:
		return VARCHAR
	case LTID_DECIMAL:
		if lt.Width <= DecimalMaxWidthInt64 {
			return INT64
		} else if lt.Width <= DecimalMaxWidthInt128 {
			return INT128
		} else if lt.Width <= DecimalMaxWidth {
			return INT256
		}
		panic(fmt.Sprintf("usp decimal width %d", lt.Width))
	case LTID_NULL:
		return NA
	default:
		panic(fmt.Sprintf("usp %s", lt.Id))
	}
}

func (lt LType) Equal(o LType) bool {
	if lt.Id != o.Id {
		return false
	}
	if lt.Id == LTID_DECIMAL {
		return lt.Width == o.Width && lt.Scale == o.Scale
	}
	return true
}

func (lt LType) IsFixedWidth() bool {
	return lt.PTyp.IsConstant()
}

// FixedSize is the stored byte width of a fixed width type.
func (lt LType) FixedSize() int {
	return lt.PTyp.Size()
}

func (lt LType) IsNumeric() bool {
	switch lt.Id {
	case LTID_TINYINT, LTID_SMALLINT, LTID_INTEGER, LTID_BIGINT,
		LTID_HUGEINT, LTID_FLOAT, LTID_DOUBLE, LTID_DECIMAL:
		return true
	default:
		return false
	}
}

func (lt LType) IsVarchar() bool {
	return lt.Id == LTID_VARCHAR
}

// IsWideDecimal reports decimals that do not fit 128 bits.
func (lt LType) IsWideDecimal() bool {
	return lt.Id == LTID_DECIMAL && lt.Width > DecimalMaxWidthInt128
}

func (lt LType) String() string {
	switch lt.Id {
	case LTID_BOOLEAN:
		return "boolean"
	case LTID_TINYINT:
		return "tinyint"
	case LTID_SMALLINT:
		return "smallint"
	case LTID_INTEGER:
		return "int"
	case LTID_BIGINT:
		return "bigint"
	case LTID_HUGEINT:
		return "hugeint"
	case LTID_FLOAT:
		return "float"
	case LTID_DOUBLE:
		return "double"
	case LTID_DATE:
		return "date"
	case LTID_VARCHAR:
		return "varchar"
	case LTID_DECIMAL:
		return fmt.Sprintf("decimal(%d,%d)", lt.Width, lt.Scale)
	case LTID_NULL:
		return "null"
	default:
		return lt.Id.String()
	}
}

// ParseLType parses the names produced by String.
func ParseLType(s string) (LType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "boolean", "bool":
		return BooleanType(), nil
	case "tinyint", "int8":
		return TinyintType(), nil
	case "smallint", "int16":
		return SmallintType(), nil
	case "int", "integer", "int32":
		return IntegerType(), nil
	case "bigint", "int64":
		return BigintType(), nil
	case "hugeint", "int128":
		return HugeintType(), nil
	case "float":
		return FloatType(), nil
	case "double":
		return DoubleType(), nil
	case "date":
		return DateType(), nil
	case "varchar", "string", "text":
		return VarcharType(), nil
	}
	if strings.HasPrefix(name, "decimal(") && strings.HasSuffix(name, ")") {
		args := strings.Split(name[len("decimal("):len(name)-1], ",")
		if len(args) != 2 {
			return LType{}, fmt.Errorf("invalid decimal type %q", s)
		}
		width, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return LType{}, err
		}
		scale, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil {
			return LType{}, err
		}
		if width <= 0 || width > DecimalMaxWidth || scale < 0 || scale > width {
			return LType{}, fmt.Errorf("invalid decimal type %q", s)
		}
		return DecimalType(width, scale), nil
	}
	return LType{}, fmt.Errorf("unknown type %q", s)
}

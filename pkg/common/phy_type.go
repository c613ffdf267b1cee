package common

import "fmt"

type PhyType int

const (
	NA      PhyType = 0
	BOOL    PhyType = 1
	INT8    PhyType = 3
	INT16   PhyType = 5
	INT32   PhyType = 7
	INT64   PhyType = 9
	FLOAT   PhyType = 11
	DOUBLE  PhyType = 12
	VARCHAR PhyType = 200
	INT128  PhyType = 204
	INT256  PhyType = 210

	INVALID PhyType = 255
)

const (
	BoolSize   = 1
	Int8Size   = 1
	Int16Size  = 2
	Int32Size  = 4
	Int64Size  = 8
	Int128Size = 16
	Int256Size = 32
)

var pTypeToStr = map[PhyType]string{
	NA:      "NA",
	BOOL:    "BOOL",
	INT8:    "INT8",
	INT16:   "INT16",
	INT32:   "INT32",
	INT64:   "INT64",
	FLOAT:   "FLOAT",
	DOUBLE:  "DOUBLE",
	VARCHAR: "VARCHAR",
	INT128:  "INT128",
	INT256:  "INT256",
	INVALID: "INVALID",
}

func (pt PhyType) String() string {
	if s, has := pTypeToStr[pt]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", pt))
}

// Size returns the fixed width of the type. VARCHAR has no fixed width and returns 0.
func (pt PhyType) Size() int {
	switch pt {
	case BOOL:
		return BoolSize
	case INT8:
		return Int8Size
	case INT16:
		return Int16Size
	case INT32:
		return Int32Size
	case INT64:
		return Int64Size
	case FLOAT:
		return Int32Size
	case DOUBLE:
		return Int64Size
	case INT128:
		return Int128Size
	case INT256:
		return Int256Size
	case VARCHAR, NA:
		return 0
	default:
		panic("usp")
	}
}

func (pt PhyType) IsConstant() bool {
	return pt != VARCHAR && pt != NA && pt != INVALID
}

func (pt PhyType) IsVarchar() bool {
	return pt == VARCHAR
}

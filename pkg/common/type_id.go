package common

import "fmt"

type LTypeId int

const (
	LTID_INVALID  LTypeId = 0
	LTID_NULL     LTypeId = 1
	LTID_BOOLEAN  LTypeId = 10
	LTID_TINYINT  LTypeId = 11
	LTID_SMALLINT LTypeId = 12
	LTID_INTEGER  LTypeId = 13
	LTID_BIGINT   LTypeId = 14
	LTID_DATE     LTypeId = 15
	LTID_DECIMAL  LTypeId = 21
	LTID_FLOAT    LTypeId = 22
	LTID_DOUBLE   LTypeId = 23
	LTID_VARCHAR  LTypeId = 25
	LTID_HUGEINT  LTypeId = 50
)

var lTypeIdToStr = map[LTypeId]string{
	LTID_INVALID:  "LTID_INVALID",
	LTID_NULL:     "LTID_NULL",
	LTID_BOOLEAN:  "LTID_BOOLEAN",
	LTID_TINYINT:  "LTID_TINYINT",
	LTID_SMALLINT: "LTID_SMALLINT",
	LTID_INTEGER:  "LTID_INTEGER",
	LTID_BIGINT:   "LTID_BIGINT",
	LTID_DATE:     "LTID_DATE",
	LTID_DECIMAL:  "LTID_DECIMAL",
	LTID_FLOAT:    "LTID_FLOAT",
	LTID_DOUBLE:   "LTID_DOUBLE",
	LTID_VARCHAR:  "LTID_VARCHAR",
	LTID_HUGEINT:  "LTID_HUGEINT",
}

func (id LTypeId) String() string {
	if s, has := lTypeIdToStr[id]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", id))
}

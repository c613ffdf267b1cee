package expression

import (
	"fmt"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/xlab/treeprint"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/common"
)

type ET int

const (
	ET_Column ET = iota
	ET_Const
	ET_Func
)

type ET_SubTyp int

const (
	ET_Invalid ET_SubTyp = iota
	ET_Add
	ET_Sub
	ET_Mul
	ET_Equal
	ET_NotEqual
	ET_Greater
	ET_GreaterEqual
	ET_Less
	ET_LessEqual
	ET_And
	ET_Or
	ET_Not
	ET_IsNull
	ET_IsNotNull
)

var subTypToStr = map[ET_SubTyp]string{
	ET_Add:          "+",
	ET_Sub:          "-",
	ET_Mul:          "*",
	ET_Equal:        "=",
	ET_NotEqual:     "<>",
	ET_Greater:      ">",
	ET_GreaterEqual: ">=",
	ET_Less:         "<",
	ET_LessEqual:    "<=",
	ET_And:          "and",
	ET_Or:           "or",
	ET_Not:          "not",
	ET_IsNull:       "is null",
	ET_IsNotNull:    "is not null",
}

func (et ET_SubTyp) String() string {
	if s, ok := subTypToStr[et]; ok {
		return s
	}
	panic(fmt.Sprintf("usp %d", et))
}

// ParseOp maps an operator spelling to its function.
func ParseOp(op string) (ET_SubTyp, error) {
	lop := strings.ToLower(strings.TrimSpace(op))
	if lop == "!=" {
		return ET_NotEqual, nil
	}
	for k, v := range subTypToStr {
		if v == lop {
			return k, nil
		}
	}
	return ET_Invalid, fmt.Errorf("unknown operator %q", op)
}

// Expr is a scalar expression over the named columns of a block.
type Expr struct {
	Typ      ET
	SubTyp   ET_SubTyp
	DataTyp  common.LType
	Name     string
	Value    *chunk.Value
	Children []*Expr
}

func Column(name string, typ common.LType) *Expr {
	return &Expr{Typ: ET_Column, Name: name, DataTyp: typ}
}

func Const(val *chunk.Value) *Expr {
	return &Expr{Typ: ET_Const, Value: val, DataTyp: val.Typ}
}

func Func(subTyp ET_SubTyp, children ...*Expr) *Expr {
	e := &Expr{Typ: ET_Func, SubTyp: subTyp, Children: children}
	switch subTyp {
	case ET_Add, ET_Sub, ET_Mul:
		e.DataTyp = arithmeticResultType(children[0].DataTyp, children[1].DataTyp)
	default:
		e.DataTyp = common.BooleanType()
	}
	return e
}

func And(children ...*Expr) *Expr {
	if len(children) == 1 {
		return children[0]
	}
	return Func(ET_And, children...)
}

func (e *Expr) Copy() *Expr {
	if e == nil {
		return nil
	}
	return clone.Clone(e).(*Expr)
}

// Columns lists the referenced column names, each once, in first use order.
func (e *Expr) Columns() []string {
	seen := make(map[string]bool)
	var ret []string
	var walk func(*Expr)
	walk = func(x *Expr) {
		if x.Typ == ET_Column && !seen[x.Name] {
			seen[x.Name] = true
			ret = append(ret, x.Name)
		}
		for _, child := range x.Children {
			walk(child)
		}
	}
	walk(e)
	return ret
}

func (e *Expr) String() string {
	switch e.Typ {
	case ET_Column:
		return e.Name
	case ET_Const:
		if e.DataTyp.IsVarchar() && !e.Value.IsNull {
			return "'" + e.Value.String() + "'"
		}
		return e.Value.String()
	case ET_Func:
		switch e.SubTyp {
		case ET_Not:
			return fmt.Sprintf("not(%s)", e.Children[0])
		case ET_IsNull, ET_IsNotNull:
			return fmt.Sprintf("%s %s", e.Children[0], e.SubTyp)
		case ET_And, ET_Or:
			parts := make([]string, len(e.Children))
			for i, child := range e.Children {
				parts[i] = child.String()
			}
			return "(" + strings.Join(parts, " "+e.SubTyp.String()+" ") + ")"
		default:
			return fmt.Sprintf("(%s %s %s)", e.Children[0], e.SubTyp, e.Children[1])
		}
	}
	panic("usp")
}

func (e *Expr) Format(tree treeprint.Tree) {
	if e.Typ != ET_Func || e.SubTyp != ET_And {
		tree.AddNode(e.String())
		return
	}
	branch := tree.AddBranch("and")
	for _, child := range e.Children {
		child.Format(branch)
	}
}

func arithmeticResultType(a, b common.LType) common.LType {
	isInt := func(t common.LType) bool {
		switch t.Id {
		case common.LTID_TINYINT, common.LTID_SMALLINT, common.LTID_INTEGER, common.LTID_BIGINT:
			return true
		}
		return false
	}
	if isInt(a) && isInt(b) {
		return common.BigintType()
	}
	return common.DoubleType()
}

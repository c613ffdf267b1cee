package expression

import (
	"fmt"
	"strings"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/common"
)

// ExprExec evaluates one expression over blocks. It keeps no state
// between calls but is not shared between goroutines.
type ExprExec struct {
	_expr *Expr
}

func NewExprExec(expr *Expr) *ExprExec {
	return &ExprExec{_expr: expr.Copy()}
}

func (exec *ExprExec) Expr() *Expr {
	return exec._expr
}

// Execute evaluates the expression for every row of data.
func (exec *ExprExec) Execute(data *chunk.Chunk) (*chunk.Vector, error) {
	return exec.execute(exec._expr, data)
}

// ExecuteSelect returns the rows for which the boolean expression is true.
func (exec *ExprExec) ExecuteSelect(data *chunk.Chunk, sel *chunk.SelectVector) error {
	res, err := exec.Execute(data)
	if err != nil {
		return err
	}
	sel.Reset()
	for i := 0; i < data.Card(); i++ {
		if IsTrue(res, i) {
			sel.Append(i)
		}
	}
	return nil
}

// IsTrue reports a non-null true boolean.
func IsTrue(vec *chunk.Vector, i int) bool {
	if vec.IsNull(i) {
		return false
	}
	return vec.GetValue(i).Bool
}

func (exec *ExprExec) execute(expr *Expr, data *chunk.Chunk) (*chunk.Vector, error) {
	count := data.Card()
	switch expr.Typ {
	case ET_Column:
		idx := data.ColumnIndex(expr.Name)
		if idx < 0 {
			return nil, fmt.Errorf("no column %s in block [%s]", expr.Name, strings.Join(data.Names, ","))
		}
		return data.Data[idx], nil
	case ET_Const:
		return chunk.NewConstVector(expr.Value), nil
	case ET_Func:
		children := make([]*chunk.Vector, len(expr.Children))
		for i, child := range expr.Children {
			vec, err := exec.execute(child, data)
			if err != nil {
				return nil, err
			}
			children[i] = vec
		}
		result := chunk.NewFlatVector(expr.DataTyp, max(count, 1))
		switch expr.SubTyp {
		case ET_And, ET_Or:
			executeLogic(expr.SubTyp, children, count, result)
		case ET_Not:
			for i := 0; i < count; i++ {
				if children[0].IsNull(i) {
					result.SetNull(i, true)
					continue
				}
				result.SetValue(i, boolValue(!children[0].GetValue(i).Bool))
			}
		case ET_IsNull, ET_IsNotNull:
			for i := 0; i < count; i++ {
				null := children[0].IsNull(i)
				result.SetValue(i, boolValue(null == (expr.SubTyp == ET_IsNull)))
			}
		case ET_Add, ET_Sub, ET_Mul:
			for i := 0; i < count; i++ {
				l, r := children[0].GetValue(i), children[1].GetValue(i)
				if l.IsNull || r.IsNull {
					result.SetNull(i, true)
					continue
				}
				result.SetValue(i, arithmetic(expr.SubTyp, expr.DataTyp, l, r))
			}
		default:
			for i := 0; i < count; i++ {
				l, r := children[0].GetValue(i), children[1].GetValue(i)
				if l.IsNull || r.IsNull {
					result.SetNull(i, true)
					continue
				}
				ret, err := compare(expr.SubTyp, l, r)
				if err != nil {
					return nil, err
				}
				result.SetValue(i, boolValue(ret))
			}
		}
		return result, nil
	}
	panic("usp")
}

// executeLogic applies three valued and/or.
func executeLogic(subTyp ET_SubTyp, children []*chunk.Vector, count int, result *chunk.Vector) {
	isAnd := subTyp == ET_And
	for i := 0; i < count; i++ {
		hasNull := false
		decided := false
		for _, child := range children {
			if child.IsNull(i) {
				hasNull = true
				continue
			}
			b := child.GetValue(i).Bool
			if b != isAnd {
				decided = true
				break
			}
		}
		switch {
		case decided:
			result.SetValue(i, boolValue(!isAnd))
		case hasNull:
			result.SetNull(i, true)
		default:
			result.SetValue(i, boolValue(isAnd))
		}
	}
}

func compare(subTyp ET_SubTyp, l, r *chunk.Value) (bool, error) {
	var c int
	switch {
	case l.Typ.IsVarchar() && r.Typ.IsVarchar():
		c = strings.Compare(l.Str, r.Str)
	case l.Typ.Equal(r.Typ) || (isIntegral(l.Typ) && isIntegral(r.Typ)):
		c = l.Compare(r)
	case l.Typ.IsNumeric() && r.Typ.IsNumeric():
		lf, rf := l.Float64(), r.Float64()
		if lf < rf {
			c = -1
		} else if lf > rf {
			c = 1
		}
	default:
		return false, fmt.Errorf("can not compare %s with %s", l.Typ, r.Typ)
	}
	switch subTyp {
	case ET_Equal:
		return c == 0, nil
	case ET_NotEqual:
		return c != 0, nil
	case ET_Greater:
		return c > 0, nil
	case ET_GreaterEqual:
		return c >= 0, nil
	case ET_Less:
		return c < 0, nil
	case ET_LessEqual:
		return c <= 0, nil
	}
	panic(fmt.Sprintf("usp %s", subTyp))
}

func arithmetic(subTyp ET_SubTyp, typ common.LType, l, r *chunk.Value) *chunk.Value {
	ret := &chunk.Value{Typ: typ}
	if typ.Id == common.LTID_BIGINT {
		switch subTyp {
		case ET_Add:
			ret.I64 = l.I64 + r.I64
		case ET_Sub:
			ret.I64 = l.I64 - r.I64
		case ET_Mul:
			ret.I64 = l.I64 * r.I64
		}
		return ret
	}
	lf, rf := l.Float64(), r.Float64()
	switch subTyp {
	case ET_Add:
		ret.F64 = lf + rf
	case ET_Sub:
		ret.F64 = lf - rf
	case ET_Mul:
		ret.F64 = lf * rf
	}
	return ret
}

func isIntegral(t common.LType) bool {
	switch t.Id {
	case common.LTID_TINYINT, common.LTID_SMALLINT, common.LTID_INTEGER, common.LTID_BIGINT:
		return true
	}
	return false
}

func boolValue(b bool) *chunk.Value {
	return &chunk.Value{Typ: common.BooleanType(), Bool: b}
}

package chunk

import (
	"fmt"
	"strings"

	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/util"
)

// Chunk is a block of named columns sharing one row count.
type Chunk struct {
	Data  []*Vector
	Names []string
	Count int
	_Cap  int
}

func NewChunk(names []string, types []common.LType, cap int) *Chunk {
	util.AssertFunc(len(names) == len(types))
	c := &Chunk{}
	c.Init(types, cap)
	c.Names = util.CopyTo(names)
	return c
}

func NewChunkWithSchema(schema *Schema, cap int) *Chunk {
	return NewChunk(schema.Names, schema.Types, cap)
}

func (c *Chunk) Init(types []common.LType, cap int) {
	c._Cap = cap
	c.Data = nil
	for _, lType := range types {
		c.Data = append(c.Data, NewFlatVector(lType, c._Cap))
	}
}

func (c *Chunk) Reset() {
	for _, vec := range c.Data {
		vec.Reset()
	}
	c.Count = 0
}

func (c *Chunk) Cap() int {
	return c._Cap
}

func (c *Chunk) Reserve(cap int) {
	if cap <= c._Cap {
		return
	}
	for _, vec := range c.Data {
		vec.Reserve(cap)
	}
	c._Cap = cap
}

func (c *Chunk) SetCard(count int) {
	util.AssertFunc(count <= c._Cap || len(c.Data) == 0)
	c.Count = count
}

func (c *Chunk) Card() int {
	if c == nil {
		return 0
	}
	return c.Count
}

func (c *Chunk) ColumnCount() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

func (c *Chunk) Types() []common.LType {
	ret := make([]common.LType, len(c.Data))
	for i, vec := range c.Data {
		ret[i] = vec.Typ()
	}
	return ret
}

func (c *Chunk) Schema() *Schema {
	return &Schema{Names: util.CopyTo(c.Names), Types: c.Types()}
}

// ColumnIndex returns the position of the named column or -1.
func (c *Chunk) ColumnIndex(name string) int {
	return util.FindIf(c.Names, func(n string) bool {
		return n == name
	})
}

// Column returns the named column. The column must exist.
func (c *Chunk) Column(name string) *Vector {
	idx := c.ColumnIndex(name)
	if idx < 0 {
		panic(fmt.Sprintf("no column %s in block [%s]", name, strings.Join(c.Names, ",")))
	}
	return c.Data[idx]
}

func (c *Chunk) Row(i int) []*Value {
	ret := make([]*Value, len(c.Data))
	for j, vec := range c.Data {
		ret[j] = vec.GetValue(i)
	}
	return ret
}

// AppendRow fills the next row from vals.
func (c *Chunk) AppendRow(vals ...*Value) {
	util.AssertFunc(len(vals) == len(c.Data))
	c.Reserve(c.Count + 1)
	for j, val := range vals {
		c.Data[j].SetValue(c.Count, val)
	}
	c.Count++
}

// Append copies all rows of other after the current rows. Columns match by position.
func (c *Chunk) Append(other *Chunk) {
	util.AssertFunc(other.ColumnCount() == c.ColumnCount())
	c.Reserve(c.Count + other.Card())
	for j, vec := range other.Data {
		Copy(vec, nil, other.Card(), c.Data[j], c.Count)
	}
	c.Count += other.Card()
}

// Project returns a chunk sharing the named columns of c.
func (c *Chunk) Project(names []string) *Chunk {
	ret := &Chunk{
		Names: util.CopyTo(names),
		Count: c.Count,
		_Cap:  c._Cap,
	}
	for _, name := range names {
		ret.Data = append(ret.Data, c.Column(name))
	}
	return ret
}

func (c *Chunk) String() string {
	sb := strings.Builder{}
	sb.WriteString(strings.Join(c.Names, "\t"))
	sb.WriteByte('\n')
	for i := 0; i < c.Card(); i++ {
		for j, vec := range c.Data {
			if j > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(vec.GetValue(i).String())
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (c *Chunk) Print() {
	fmt.Print(c.String())
}

package chunk

import (
	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/util"
)

// Schema names and types the columns of a block.
type Schema struct {
	Names []string
	Types []common.LType
}

func NewSchema(names []string, types []common.LType) *Schema {
	util.AssertFunc(len(names) == len(types))
	return &Schema{Names: util.CopyTo(names), Types: util.CopyTo(types)}
}

func (s *Schema) Len() int {
	return len(s.Names)
}

func (s *Schema) IndexOf(name string) int {
	return util.FindIf(s.Names, func(n string) bool {
		return n == name
	})
}

func (s *Schema) Has(name string) bool {
	return s.IndexOf(name) >= 0
}

func (s *Schema) TypeOf(name string) common.LType {
	idx := s.IndexOf(name)
	util.Assertf(idx >= 0, "no column %s", name)
	return s.Types[idx]
}

func (s *Schema) Add(name string, typ common.LType) {
	s.Names = append(s.Names, name)
	s.Types = append(s.Types, typ)
}

// Filter keeps the columns for which keep returns true, in order.
func (s *Schema) Filter(keep func(name string) bool) *Schema {
	ret := &Schema{}
	for i, name := range s.Names {
		if keep(name) {
			ret.Add(name, s.Types[i])
		}
	}
	return ret
}

func (s *Schema) Clone() *Schema {
	return NewSchema(s.Names, s.Types)
}

package chunk

type SelectVector struct {
	SelVec []int
}

func NewSelectVector(count int) *SelectVector {
	vec := &SelectVector{}
	vec.Init(count)
	return vec
}

func (svec *SelectVector) Invalid() bool {
	return len(svec.SelVec) == 0
}

func (svec *SelectVector) Init(cnt int) {
	svec.SelVec = make([]int, 0, cnt)
}

func (svec *SelectVector) GetIndex(idx int) int {
	if svec.Invalid() {
		return idx
	}
	return svec.SelVec[idx]
}

func (svec *SelectVector) Append(idx int) {
	svec.SelVec = append(svec.SelVec, idx)
}

func (svec *SelectVector) Count() int {
	return len(svec.SelVec)
}

func (svec *SelectVector) Reset() {
	svec.SelVec = svec.SelVec[:0]
}

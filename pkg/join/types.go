package join

import (
	"fmt"
	"strings"

	"github.com/huandu/go-clone"
)

type JoinKind int

const (
	Inner JoinKind = iota
	LeftOuter
	RightOuter
	Full
	Semi
	Anti
	LeftOuterSemi
	LeftOuterAnti
	RightSemi
	RightAnti
	NullAwareAnti
	NullAwareLeftOuterSemi
	NullAwareLeftOuterAnti
)

var kindNames = []string{
	Inner:                  "inner",
	LeftOuter:              "left_outer",
	RightOuter:             "right_outer",
	Full:                   "full",
	Semi:                   "semi",
	Anti:                   "anti",
	LeftOuterSemi:          "left_outer_semi",
	LeftOuterAnti:          "left_outer_anti",
	RightSemi:              "right_semi",
	RightAnti:              "right_anti",
	NullAwareAnti:          "null_aware_anti",
	NullAwareLeftOuterSemi: "null_aware_left_outer_semi",
	NullAwareLeftOuterAnti: "null_aware_left_outer_anti",
}

func (kind JoinKind) String() string {
	if int(kind) < 0 || int(kind) >= len(kindNames) {
		panic(fmt.Sprintf("usp join kind %d", kind))
	}
	return kindNames[kind]
}

func ParseJoinKind(s string) (JoinKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, " ", "_")
	switch name {
	case "left":
		return LeftOuter, nil
	case "right":
		return RightOuter, nil
	case "full_outer":
		return Full, nil
	}
	for i, kn := range kindNames {
		if kn == name {
			return JoinKind(i), nil
		}
	}
	return Inner, fmt.Errorf("unknown join kind %q", s)
}

func isLeftOuterJoin(kind JoinKind) bool {
	return kind == LeftOuter || kind == Full
}

func isRightOuterJoin(kind JoinKind) bool {
	return kind == RightOuter || kind == Full
}

func isNullAwareSemiFamily(kind JoinKind) bool {
	switch kind {
	case NullAwareAnti, NullAwareLeftOuterSemi, NullAwareLeftOuterAnti:
		return true
	}
	return false
}

// isSemiFamily covers kinds that emit each left row at most once.
func isSemiFamily(kind JoinKind) bool {
	switch kind {
	case Semi, Anti, LeftOuterSemi, LeftOuterAnti:
		return true
	}
	return isNullAwareSemiFamily(kind)
}

// isLeftOuterSemiFamily covers kinds with a match helper column.
func isLeftOuterSemiFamily(kind JoinKind) bool {
	switch kind {
	case LeftOuterSemi, LeftOuterAnti, NullAwareLeftOuterSemi, NullAwareLeftOuterAnti:
		return true
	}
	return false
}

func isAntiKind(kind JoinKind) bool {
	switch kind {
	case Anti, LeftOuterAnti, NullAwareAnti, NullAwareLeftOuterAnti:
		return true
	}
	return false
}

func isRightSemiFamily(kind JoinKind) bool {
	return kind == RightSemi || kind == RightAnti
}

// needScanAfterProbe reports kinds that emit build rows once all probes end.
func needScanAfterProbe(kind JoinKind) bool {
	return isRightOuterJoin(kind) || isRightSemiFamily(kind)
}

// needRecordNotInsertRows reports kinds that output build rows which
// never enter the pointer table (null keys, filtered rows).
func needRecordNotInsertRows(kind JoinKind) bool {
	return isRightOuterJoin(kind) || kind == RightAnti
}

func outputHasLeft(kind JoinKind) bool {
	return !isRightSemiFamily(kind)
}

func outputHasRight(kind JoinKind) bool {
	return !isSemiFamily(kind)
}

const (
	JoinBuildPartitionCount = 16
	notInsertPartition      = JoinBuildPartitionCount
	MinPointerTableSize     = 1024
	DefaultMatchHelperName  = "match_helper"
)

// Settings are read-only knobs of one join. Each HashJoin keeps a copy.
type Settings struct {
	MaxBlockSize                 int     `toml:"max_block_size"`
	EnableTaggedPointer          bool    `toml:"enable_tagged_pointer"`
	ProbeEnablePrefetchThreshold int     `toml:"probe_enable_prefetch_threshold"`
	ProbePrefetchStep            int     `toml:"probe_prefetch_step"`
	PointerTableLoadFactor       float64 `toml:"pointer_table_load_factor"`
	PointerTableBuildRowsPerCall int     `toml:"pointer_table_build_rows_per_call"`
	LateMaterializationThreshold int     `toml:"late_materialization_threshold"`
	BuildConcurrency             int     `toml:"build_concurrency"`
	ProbeConcurrency             int     `toml:"probe_concurrency"`
}

func DefaultSettings() *Settings {
	return &Settings{
		MaxBlockSize:                 8192,
		EnableTaggedPointer:          true,
		ProbeEnablePrefetchThreshold: 1 << 16,
		ProbePrefetchStep:            16,
		PointerTableLoadFactor:       0.5,
		PointerTableBuildRowsPerCall: 8192,
		LateMaterializationThreshold: 16,
		BuildConcurrency:             1,
		ProbeConcurrency:             1,
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// fillDefaults replaces unset knobs with the defaults.
func (s *Settings) fillDefaults() {
	def := DefaultSettings()
	if s.MaxBlockSize <= 0 {
		s.MaxBlockSize = def.MaxBlockSize
	}
	if s.ProbePrefetchStep <= 0 {
		s.ProbePrefetchStep = def.ProbePrefetchStep
	}
	if s.PointerTableLoadFactor <= 0 || s.PointerTableLoadFactor > 1 {
		s.PointerTableLoadFactor = def.PointerTableLoadFactor
	}
	if s.PointerTableBuildRowsPerCall <= 0 {
		s.PointerTableBuildRowsPerCall = def.PointerTableBuildRowsPerCall
	}
	if s.LateMaterializationThreshold < 0 {
		s.LateMaterializationThreshold = def.LateMaterializationThreshold
	}
	if s.BuildConcurrency <= 0 {
		s.BuildConcurrency = 1
	}
	if s.ProbeConcurrency <= 0 {
		s.ProbeConcurrency = 1
	}
}

package main

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/expression"
	"github.com/daviszhen/hashjoin/pkg/join"
	"github.com/daviszhen/hashjoin/pkg/source"
)

// ExprConfig is an expression tree in a job file. Exactly one of Column,
// Value or Op is set.
type ExprConfig struct {
	Column string       `toml:"column"`
	Value  string       `toml:"value"`
	Type   string       `toml:"type"`
	Op     string       `toml:"op"`
	Args   []ExprConfig `toml:"args"`
}

// Job is one join described by a toml file.
type Job struct {
	Kind              string             `toml:"kind"`
	Left              source.TableConfig `toml:"left"`
	Right             source.TableConfig `toml:"right"`
	LeftKeys          []string           `toml:"left_keys"`
	RightKeys         []string           `toml:"right_keys"`
	Collations        []string           `toml:"collations"`
	Output            []string           `toml:"output"`
	LeftFilterColumn  string             `toml:"left_filter"`
	RightFilterColumn string             `toml:"right_filter"`
	MatchHelperName   string             `toml:"match_helper"`
	OtherCondition    *ExprConfig        `toml:"other_condition"`
}

func loadJob(path string) (*Job, error) {
	job := &Job{}
	meta, err := toml.DecodeFile(path, job)
	if err != nil {
		return nil, errors.Wrapf(err, "decode job %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) != 0 {
		return nil, errors.Errorf("unknown keys in job %s: %v", path, undecoded)
	}
	return job, nil
}

func (job *Job) params(left, right *chunk.Schema, settings *join.Settings) (*join.HashJoinParams, error) {
	kind, err := join.ParseJoinKind(job.Kind)
	if err != nil {
		return nil, err
	}
	params := &join.HashJoinParams{
		Kind:              kind,
		Left:              left,
		Right:             right,
		LeftKeys:          job.LeftKeys,
		RightKeys:         job.RightKeys,
		Collations:        job.Collations,
		LeftFilterColumn:  job.LeftFilterColumn,
		RightFilterColumn: job.RightFilterColumn,
		MatchHelperName:   job.MatchHelperName,
		Settings:          settings,
	}
	if job.OtherCondition != nil {
		params.OtherCondition, err = buildExpr(job.OtherCondition, left, right)
		if err != nil {
			return nil, errors.Wrap(err, "other condition")
		}
	}
	return params, nil
}

func buildExpr(cfg *ExprConfig, left, right *chunk.Schema) (*expression.Expr, error) {
	switch {
	case cfg.Column != "":
		for _, schema := range []*chunk.Schema{left, right} {
			if schema.Has(cfg.Column) {
				return expression.Column(cfg.Column, schema.TypeOf(cfg.Column)), nil
			}
		}
		return nil, errors.Errorf("unknown column %s", cfg.Column)
	case cfg.Op == "":
		typ, err := common.ParseLType(cfg.Type)
		if err != nil {
			return nil, err
		}
		val, err := chunk.ParseValue(cfg.Value, typ)
		if err != nil {
			return nil, err
		}
		return expression.Const(val), nil
	}
	op, err := expression.ParseOp(cfg.Op)
	if err != nil {
		return nil, err
	}
	want := 2
	switch op {
	case expression.ET_Not, expression.ET_IsNull, expression.ET_IsNotNull:
		want = 1
	case expression.ET_And, expression.ET_Or:
		if len(cfg.Args) >= 2 {
			want = len(cfg.Args)
		}
	}
	if len(cfg.Args) != want {
		return nil, errors.Errorf("%s wants %d arguments, got %d", op, want, len(cfg.Args))
	}
	args := make([]*expression.Expr, len(cfg.Args))
	for i := range cfg.Args {
		args[i], err = buildExpr(&cfg.Args[i], left, right)
		if err != nil {
			return nil, err
		}
	}
	return expression.Func(op, args...), nil
}

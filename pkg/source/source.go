package source

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/common"
	"github.com/daviszhen/hashjoin/pkg/util"
)

type ColumnConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	// position in the file, defaults to the position in the column list
	Index *int `toml:"index"`
}

// TableConfig describes one input file of a join job.
type TableConfig struct {
	Path      string         `toml:"path"`
	Format    string         `toml:"format"`
	Delimiter string         `toml:"delimiter"`
	Header    bool           `toml:"header"`
	Columns   []ColumnConfig `toml:"columns"`
}

func (cfg *TableConfig) Schema() (*chunk.Schema, error) {
	schema := &chunk.Schema{}
	for _, col := range cfg.Columns {
		typ, err := common.ParseLType(col.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col.Name)
		}
		if schema.Has(col.Name) {
			return nil, errors.Errorf("duplicate column %s in %s", col.Name, cfg.Path)
		}
		schema.Add(col.Name, typ)
	}
	return schema, nil
}

// fileIndexes returns the file position of every configured column.
func (cfg *TableConfig) fileIndexes() []int {
	ret := make([]int, len(cfg.Columns))
	for i, col := range cfg.Columns {
		ret[i] = i
		if col.Index != nil {
			ret[i] = *col.Index
		}
	}
	return ret
}

// Reader produces blocks of a table. Read returns nil at the end.
type Reader interface {
	Read(maxCnt int) (*chunk.Chunk, error)
	Schema() *chunk.Schema
	Close() error
}

func Open(cfg *TableConfig) (Reader, error) {
	schema, err := cfg.Schema()
	if err != nil {
		return nil, err
	}
	if schema.Len() == 0 {
		return nil, errors.Errorf("no columns configured for %s", cfg.Path)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "csv":
		return openCsv(cfg, schema)
	case "parquet":
		return openParquet(cfg, schema)
	}
	return nil, fmt.Errorf("unsupported format %q", cfg.Format)
}

// ReadAll reads the whole table in blocks of blockSize rows.
func ReadAll(cfg *TableConfig, blockSize int) ([]*chunk.Chunk, error) {
	reader, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			util.Warn("close source failed",
				zap.String("path", cfg.Path),
				zap.Error(cerr))
		}
	}()
	var blocks []*chunk.Chunk
	rows := 0
	for {
		blk, err := reader.Read(blockSize)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", cfg.Path)
		}
		if blk == nil {
			break
		}
		rows += blk.Card()
		blocks = append(blocks, blk)
	}
	util.Info("source loaded",
		zap.String("path", cfg.Path),
		zap.Int("rows", rows),
		zap.Int("blocks", len(blocks)))
	return blocks, nil
}

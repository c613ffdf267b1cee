package source

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/daviszhen/hashjoin/pkg/chunk"
)

type csvReader struct {
	_schema  *chunk.Schema
	_indexes []int
	_file    *os.File
	_reader  *csv.Reader
	_line    int
	_eof     bool
}

func openCsv(cfg *TableConfig, schema *chunk.Schema) (*csvReader, error) {
	file, err := os.OpenFile(cfg.Path, os.O_RDONLY, 0755)
	if err != nil {
		return nil, err
	}
	rd := &csvReader{
		_schema:  schema,
		_indexes: cfg.fileIndexes(),
		_file:    file,
		_reader:  csv.NewReader(file),
	}
	if cfg.Delimiter != "" {
		rd._reader.Comma = []rune(cfg.Delimiter)[0]
	}
	rd._reader.FieldsPerRecord = -1
	rd._reader.ReuseRecord = true
	if cfg.Header {
		if _, err = rd._reader.Read(); err != nil && !errors.Is(err, io.EOF) {
			_ = file.Close()
			return nil, err
		}
		rd._line++
	}
	return rd, nil
}

func (rd *csvReader) Schema() *chunk.Schema {
	return rd._schema
}

func (rd *csvReader) Read(maxCnt int) (*chunk.Chunk, error) {
	if rd._eof {
		return nil, nil
	}
	output := chunk.NewChunkWithSchema(rd._schema, maxCnt)
	rowCont := 0
	for rowCont < maxCnt {
		line, err := rd._reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				rd._eof = true
				break
			}
			return nil, err
		}
		rd._line++
		for j, idx := range rd._indexes {
			if idx >= len(line) {
				return nil, errors.Errorf("line %d has %d fields, column %s wants field %d",
					rd._line, len(line), rd._schema.Names[j], idx)
			}
			val, err := chunk.ParseValue(line[idx], rd._schema.Types[j])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d column %s", rd._line, rd._schema.Names[j])
			}
			output.Data[j].SetValue(rowCont, val)
		}
		rowCont++
	}
	if rowCont == 0 {
		return nil, nil
	}
	output.SetCard(rowCont)
	return output, nil
}

func (rd *csvReader) Close() error {
	rd._reader = nil
	return rd._file.Close()
}

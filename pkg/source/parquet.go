package source

import (
	"fmt"

	"github.com/pkg/errors"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqReader "github.com/xitongsys/parquet-go/reader"
	pqSource "github.com/xitongsys/parquet-go/source"

	"github.com/daviszhen/hashjoin/pkg/chunk"
	"github.com/daviszhen/hashjoin/pkg/common"
)

type parquetReader struct {
	_schema  *chunk.Schema
	_indexes []int
	_file    pqSource.ParquetFile
	_reader  *pqReader.ParquetReader
	_left    int64
}

func openParquet(cfg *TableConfig, schema *chunk.Schema) (*parquetReader, error) {
	file, err := pqLocal.NewLocalFileReader(cfg.Path)
	if err != nil {
		return nil, err
	}
	reader, err := pqReader.NewParquetColumnReader(file, 1)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &parquetReader{
		_schema:  schema,
		_indexes: cfg.fileIndexes(),
		_file:    file,
		_reader:  reader,
		_left:    reader.GetNumRows(),
	}, nil
}

func (rd *parquetReader) Schema() *chunk.Schema {
	return rd._schema
}

func (rd *parquetReader) Read(maxCnt int) (*chunk.Chunk, error) {
	if rd._left <= 0 {
		return nil, nil
	}
	cnt := min(int64(maxCnt), rd._left)
	output := chunk.NewChunkWithSchema(rd._schema, int(cnt))
	rowCont := -1
	for j, idx := range rd._indexes {
		values, _, _, err := rd._reader.ReadColumnByIndex(int64(idx), cnt)
		if err != nil {
			return nil, errors.Wrapf(err, "read parquet column %d", idx)
		}
		if rowCont < 0 {
			rowCont = len(values)
		} else if len(values) != rowCont {
			return nil, fmt.Errorf("column %d has different count of values %d with previous columns %d", idx, len(values), rowCont)
		}
		vec := output.Data[j]
		for i, field := range values {
			val, err := parquetColToValue(field, vec.Typ())
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", rd._schema.Names[j])
			}
			vec.SetValue(i, val)
		}
	}
	if rowCont <= 0 {
		rd._left = 0
		return nil, nil
	}
	rd._left -= int64(rowCont)
	output.SetCard(rowCont)
	return output, nil
}

func (rd *parquetReader) Close() error {
	rd._reader.ReadStop()
	return rd._file.Close()
}

// parquetColToValue converts a value of the parquet column reader. A nil
// field is NULL.
func parquetColToValue(field any, lTyp common.LType) (*chunk.Value, error) {
	val := &chunk.Value{Typ: lTyp}
	if field == nil {
		val.IsNull = true
		return val, nil
	}
	switch lTyp.Id {
	case common.LTID_BOOLEAN:
		b, ok := field.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", field)
		}
		val.Bool = b
	case common.LTID_TINYINT, common.LTID_SMALLINT, common.LTID_INTEGER,
		common.LTID_BIGINT, common.LTID_DATE:
		switch fVal := field.(type) {
		case int32:
			val.I64 = int64(fVal)
		case int64:
			val.I64 = fVal
		default:
			return nil, fmt.Errorf("want integer, got %T", field)
		}
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		switch fVal := field.(type) {
		case float32:
			val.F64 = float64(fVal)
		case float64:
			val.F64 = fVal
		default:
			return nil, fmt.Errorf("want float, got %T", field)
		}
	case common.LTID_VARCHAR:
		switch fVal := field.(type) {
		case string:
			val.Str = fVal
		case []byte:
			val.Str = string(fVal)
		default:
			return nil, fmt.Errorf("want string, got %T", field)
		}
	case common.LTID_DECIMAL:
		if lTyp.PTyp != common.INT64 {
			return nil, fmt.Errorf("usp parquet decimal width %d", lTyp.Width)
		}
		switch fVal := field.(type) {
		case int32:
			val.I64 = int64(fVal)
		case int64:
			val.I64 = fVal
		default:
			return nil, fmt.Errorf("want decimal, got %T", field)
		}
	default:
		return nil, fmt.Errorf("usp parquet type %s", lTyp)
	}
	return val, nil
}

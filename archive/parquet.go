package archive

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"propflow/config"
	"propflow/models"
)

// ParquetRecord is the flat lake schema for one archived prediction. The
// range pair is split into two columns and the factor list is joined so every
// column stays scalar.
type ParquetRecord struct {
	ID              string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Player          string  `parquet:"name=player, type=BYTE_ARRAY, convertedtype=UTF8"`
	Team            string  `parquet:"name=team, type=BYTE_ARRAY, convertedtype=UTF8"`
	Opponent        string  `parquet:"name=opponent, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sport           string  `parquet:"name=sport, type=BYTE_ARRAY, convertedtype=UTF8"`
	Stat            string  `parquet:"name=stat, type=BYTE_ARRAY, convertedtype=UTF8"`
	GameTime        int64   `parquet:"name=game_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Line            float64 `parquet:"name=line, type=DOUBLE"`
	PredictedValue  float64 `parquet:"name=predicted_value, type=DOUBLE"`
	OverProbability float64 `parquet:"name=over_probability, type=DOUBLE"`
	ConfidenceScore float64 `parquet:"name=confidence_score, type=DOUBLE"`
	Confidence      string  `parquet:"name=confidence, type=BYTE_ARRAY, convertedtype=UTF8"`
	RangeLow        float64 `parquet:"name=range_low, type=DOUBLE"`
	RangeHigh       float64 `parquet:"name=range_high, type=DOUBLE"`
	TopFactors      string  `parquet:"name=top_factors, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// buildParquetFile encodes records into one in-memory parquet file.
func buildParquetFile(records []models.PredictionRecord, cfg config.ParquetConfig) ([]byte, int64, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch cfg.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}
	if cfg.PageSize > 0 {
		pw.PageSize = int64(cfg.PageSize)
	}

	for _, rec := range records {
		row := ParquetRecord{
			ID:              rec.ID,
			Player:          rec.Player,
			Team:            rec.Team,
			Opponent:        rec.Opponent,
			Sport:           rec.Sport,
			Stat:            rec.Stat,
			GameTime:        rec.GameTime.UnixMilli(),
			Line:            rec.Line,
			PredictedValue:  rec.PredictedValue,
			OverProbability: rec.OverProbability,
			ConfidenceScore: rec.ConfidenceScore,
			Confidence:      string(rec.Confidence),
			RangeLow:        rec.PredictionRange[0],
			RangeHigh:       rec.PredictionRange[1],
			TopFactors:      strings.Join(rec.TopFactors, "|"),
		}

		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	data := fw.Bytes()
	return data, int64(len(data)), nil
}

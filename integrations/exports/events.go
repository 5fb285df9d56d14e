package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"fundchain/integrations/audit"
)

var csvHeader = []string{"sequence", "id", "type", "call", "project_id", "root", "occurred_at", "attributes"}

// EventsCSV renders audit records as CSV and returns the payload with its
// SHA-256 checksum.
func EventsCSV(records []audit.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	w := csv.NewWriter(buffer)
	if err := w.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, rec := range records {
		attrs, err := canonicalAttributes(rec)
		if err != nil {
			return nil, "", err
		}
		row := []string{
			strconv.FormatUint(rec.Sequence, 10),
			rec.ID.String(),
			rec.Type,
			rec.Call,
			projectString(rec.ProjectID),
			rec.Root,
			rec.OccurredAt.UTC().Format(time.RFC3339Nano),
			attrs,
		}
		if err := w.Write(row); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// WriteEventsCSV writes the CSV export to path and returns its checksum.
func WriteEventsCSV(path string, records []audit.Record) (string, error) {
	data, checksum, err := EventsCSV(records)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("exports: write csv: %w", err)
	}
	return checksum, nil
}

type parquetRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Call       string `parquet:"name=call, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProjectID  string `parquet:"name=project_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Root       string `parquet:"name=root, type=BYTE_ARRAY, convertedtype=UTF8"`
	OccurredAt string `parquet:"name=occurred_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WriteEventsParquet writes audit records to a snappy-compressed Parquet file.
func WriteEventsParquet(path string, records []audit.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		attrs, err := canonicalAttributes(rec)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return err
		}
		row := &parquetRow{
			Sequence:   int64(rec.Sequence),
			ID:         rec.ID.String(),
			Type:       rec.Type,
			Call:       rec.Call,
			ProjectID:  projectString(rec.ProjectID),
			Root:       rec.Root,
			OccurredAt: rec.OccurredAt.UTC().Format(time.RFC3339Nano),
			Attributes: attrs,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	return nil
}

// canonicalAttributes encodes attributes with sorted keys so checksums are
// reproducible.
func canonicalAttributes(rec audit.Record) (string, error) {
	attrs := rec.Attrs()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		value, err := json.Marshal(attrs[k])
		if err != nil {
			return "", err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func projectString(id *uint64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(*id, 10)
}

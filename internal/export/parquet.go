// Package export writes aggregated tables as parquet files.
package export

import (
	"fmt"
	"strings"
	"unicode"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lox/wxarchive/internal/aggregate"
)

// ColumnNames maps a table header onto parquet-safe names: lower case,
// underscores for anything outside [a-z0-9], with numeric suffixes on
// collisions.
func ColumnNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		var b strings.Builder
		underscore := false
		for _, r := range strings.ToLower(h) {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
				underscore = false
				continue
			}
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
		name := strings.TrimSuffix(b.String(), "_")
		if name == "" {
			name = fmt.Sprintf("col%d", i)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

func metadata(header []string) []string {
	names := ColumnNames(header)
	md := make([]string, len(names))
	for i, name := range names {
		if i == 0 {
			md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY", name)
			continue
		}
		md[i] = fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", name)
	}
	return md
}

func write(fw source.ParquetFile, t *aggregate.Table) error {
	pw, err := writer.NewCSVWriter(metadata(t.Header), fw, 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range t.Rows {
		rec := make([]interface{}, len(t.Header))
		rec[0] = row.Key
		for i, alias := range t.Header[1:] {
			if v, ok := row.Values[alias]; ok {
				rec[i+1] = v
			}
		}
		if err := pw.Write(rec); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

// Marshal encodes a table in memory. Missing bucket values are written as
// nulls.
func Marshal(t *aggregate.Table) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := write(fw, t); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// WriteFile writes a table to path.
func WriteFile(path string, t *aggregate.Table) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(fw, t); err != nil {
		_ = fw.Close()
		return fmt.Errorf("write parquet: %w", err)
	}
	return fw.Close()
}

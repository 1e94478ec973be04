package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lox/wxarchive/internal/aggregate"
	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/log"
	"github.com/lox/wxarchive/internal/metrics"
)

// CachedColumn maps an export header onto its physical cache column.
type CachedColumn struct {
	Name     string `msgpack:"n"`
	Physical string `msgpack:"p"`
	Numeric  bool   `msgpack:"num"`
}

// CacheHandle is one materialized month export.
type CacheHandle struct {
	Table   string
	Kind    ingest.Kind
	Month   ingest.Month
	Path    string
	Columns []CachedColumn
	Rows    int
	Dropped int
}

func (h CacheHandle) column(name string) (CachedColumn, bool) {
	for _, c := range h.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return CachedColumn{}, false
}

type cacheFileRow struct {
	TableName string `db:"table_name"`
	Kind      string `db:"kind"`
	Month     string `db:"month"`
	Path      string `db:"path"`
	Size      int64  `db:"size"`
	ModTime   int64  `db:"mod_time"`
	Columns   []byte `db:"columns"`
	RowCount  int    `db:"row_count"`
	Dropped   int    `db:"dropped"`
}

func (r cacheFileRow) handle() (*CacheHandle, error) {
	month, err := ingest.ParseMonth(r.Month)
	if err != nil {
		return nil, err
	}
	var cols []CachedColumn
	if err := msgpack.Unmarshal(r.Columns, &cols); err != nil {
		return nil, fmt.Errorf("decode columns for %s: %w", r.TableName, err)
	}
	return &CacheHandle{
		Table:   r.TableName,
		Kind:    ingest.Kind(r.Kind),
		Month:   month,
		Path:    r.Path,
		Columns: cols,
		Rows:    r.RowCount,
		Dropped: r.Dropped,
	}, nil
}

func tableName(kind ingest.Kind, month ingest.Month) string {
	return fmt.Sprintf("cache_%s_%s", kind, month)
}

// EnsureCacheForMonth returns the cached table for a month, loading the raw
// export first when the cache is missing or the file changed since it was
// loaded. It returns nil when the month has no export.
func (s *Store) EnsureCacheForMonth(ctx context.Context, kind ingest.Kind, month ingest.Month) (*CacheHandle, error) {
	file, err := s.dir.FileForMonth(kind, month)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, nil
	}
	return s.ensure(ctx, *file)
}

// EnsureCacheForRange returns cached tables for every export intersecting
// [start, end], in month order. An empty result is not an error.
func (s *Store) EnsureCacheForRange(ctx context.Context, kind ingest.Kind, start, end time.Time) ([]CacheHandle, error) {
	files, err := s.dir.FilesForRange(kind, start, end)
	if err != nil {
		return nil, err
	}
	handles := make([]CacheHandle, 0, len(files))
	for _, f := range files {
		h, err := s.ensure(ctx, f)
		if err != nil {
			return nil, err
		}
		handles = append(handles, *h)
	}
	return handles, nil
}

func (s *Store) ensure(ctx context.Context, f ingest.File) (*CacheHandle, error) {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := tableName(f.Kind, f.Month)
	var row cacheFileRow
	err = s.db.GetContext(ctx, &row, `
		SELECT table_name, kind, month, path, size, mod_time, columns, row_count, dropped
		FROM cache_files WHERE table_name = ?
	`, table)
	switch {
	case err == nil:
		if row.Path == f.Path && row.Size == fi.Size() && row.ModTime == fi.ModTime().UnixNano() {
			return row.handle()
		}
		log.Infof("cache: %s changed on disk, reloading", f.Name)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("read cache manifest: %w", err)
	}

	return s.materialize(ctx, f, fi, table)
}

func (s *Store) materialize(ctx context.Context, f ingest.File, fi os.FileInfo, table string) (*CacheHandle, error) {
	start := time.Now()
	parsed, err := ingest.ParseFile(f.Path)
	if err != nil {
		return nil, err
	}

	schema := parsed.Schema()
	cols := make([]CachedColumn, len(schema))
	defs := make([]string, len(schema))
	for i, c := range schema {
		cols[i] = CachedColumn{Name: c.Name, Physical: fmt.Sprintf("c%d", i), Numeric: c.Numeric}
		// No declared type: values keep the storage class they were
		// inserted with, so numbers and pass-through text stay distinct.
		defs[i] = cols[i].Physical
	}
	blob, err := msgpack.Marshal(cols)
	if err != nil {
		return nil, fmt.Errorf("encode columns: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return nil, fmt.Errorf("drop %s: %w", table, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (ts TEXT NOT NULL", table)
	if len(defs) > 0 {
		create += ", " + strings.Join(defs, ", ")
	}
	create += ")"
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE INDEX idx_%s_ts ON %s(ts)", table, table)); err != nil {
		return nil, fmt.Errorf("index %s: %w", table, err)
	}

	placeholders := strings.Repeat(", ?", len(cols))
	names := ""
	for _, c := range cols {
		names += ", " + c.Physical
	}
	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf("INSERT INTO %s (ts%s) VALUES (?%s)", table, names, placeholders))
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	loaded, dropped := 0, 0
	args := make([]any, len(cols)+1)
	for _, r := range parsed.Rows {
		ts, err := ingest.ParseTimestamp(r.Time)
		if err != nil {
			dropped++
			continue
		}
		args[0] = ingest.FormatCanonical(ts)
		for i := range cols {
			args[i+1] = nil
			if i >= len(r.Values) {
				continue
			}
			switch v := r.Values[i]; {
			case v.IsNumber():
				args[i+1] = v.Float
			case !v.IsNull():
				args[i+1] = v.Str
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", table, err)
		}
		loaded++
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_files (table_name, kind, month, path, size, mod_time, columns, row_count, dropped, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name) DO UPDATE SET
			path = excluded.path,
			size = excluded.size,
			mod_time = excluded.mod_time,
			columns = excluded.columns,
			row_count = excluded.row_count,
			dropped = excluded.dropped,
			loaded_at = excluded.loaded_at
	`, table, string(f.Kind), f.Month.String(), f.Path, fi.Size(), fi.ModTime().UnixNano(), blob, loaded, dropped,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("write cache manifest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", table, err)
	}

	metrics.CacheMaterializations.WithLabelValues(string(f.Kind)).Inc()
	if dropped > 0 {
		metrics.RowsDropped.WithLabelValues("invalid_timestamp").Add(float64(dropped))
	}
	log.Infof("cache: loaded %s into %s (%d rows, %d dropped) in %v", f.Name, table, loaded, dropped, time.Since(start).Round(time.Millisecond))

	return &CacheHandle{
		Table:   table,
		Kind:    f.Kind,
		Month:   f.Month,
		Path:    f.Path,
		Columns: cols,
		Rows:    loaded,
		Dropped: dropped,
	}, nil
}

// DescribeColumns returns the merged schema of the given cached tables, read
// back from the manifest.
func (s *Store) DescribeColumns(ctx context.Context, handles []CacheHandle) (ingest.Schema, error) {
	schemas := make([]ingest.Schema, 0, len(handles))
	for _, h := range handles {
		var blob []byte
		if err := s.db.GetContext(ctx, &blob, "SELECT columns FROM cache_files WHERE table_name = ?", h.Table); err != nil {
			return nil, fmt.Errorf("describe %s: %w", h.Table, err)
		}
		var cols []CachedColumn
		if err := msgpack.Unmarshal(blob, &cols); err != nil {
			return nil, fmt.Errorf("decode columns for %s: %w", h.Table, err)
		}
		schema := make(ingest.Schema, len(cols))
		for i, c := range cols {
			schema[i] = ingest.Column{Name: c.Name, Numeric: c.Numeric}
		}
		schemas = append(schemas, schema)
	}
	return ingest.MergeSchemas(schemas...), nil
}

// CachedMonths lists the manifest, newest first.
func (s *Store) CachedMonths(ctx context.Context) ([]CacheHandle, error) {
	var rows []cacheFileRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT table_name, kind, month, path, size, mod_time, columns, row_count, dropped
		FROM cache_files ORDER BY month DESC, kind
	`); err != nil {
		return nil, err
	}
	out := make([]CacheHandle, 0, len(rows))
	for _, r := range rows {
		h, err := r.handle()
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, nil
}

// GroupedQuery asks the cache for bucketed values over a set of tables.
type GroupedQuery struct {
	Handles    []CacheHandle
	Resolution aggregate.Resolution
	Specs      []aggregate.Spec
	Bounds     aggregate.Bounds
}

// QueryGrouped runs the bucketed reduction in SQL. It mirrors
// aggregate.Aggregator: the first numeric source per row wins, conversions are
// applied per value before reducing, and specs without data are omitted.
func (s *Store) QueryGrouped(ctx context.Context, q GroupedQuery) (*aggregate.Table, error) {
	out := &aggregate.Table{Header: aggregate.Header(q.Specs)}
	if len(q.Handles) == 0 {
		return out, nil
	}

	query, args := buildGroupedSQL(q)
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("grouped query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := make(map[string]any, len(q.Specs)+1)
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scan grouped row: %w", err)
		}
		row := aggregate.Row{Key: asString(m["bucket"]), Values: make(map[string]float64, len(q.Specs))}
		for i, spec := range q.Specs {
			if v, ok := asFloat(m[fmt.Sprintf("a%d", i)]); ok {
				row.Values[spec.Alias] = v
			}
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func bucketExpr(r aggregate.Resolution) string {
	switch r {
	case aggregate.Day:
		return "substr(ts, 1, 10)"
	case aggregate.Hour:
		return "substr(ts, 1, 13) || ':00'"
	default:
		return "substr(ts, 1, 16)"
	}
}

func buildGroupedSQL(q GroupedQuery) (string, []any) {
	var args []any
	var b strings.Builder

	b.WriteString("SELECT ")
	b.WriteString(bucketExpr(q.Resolution))
	b.WriteString(" AS bucket")
	for i, spec := range q.Specs {
		v := fmt.Sprintf("v%d", i)
		switch spec.Func {
		case aggregate.Max:
			fmt.Fprintf(&b, ", MAX(%s) AS a%d", v, i)
		case aggregate.Min:
			fmt.Fprintf(&b, ", MIN(%s) AS a%d", v, i)
		case aggregate.Count:
			fmt.Fprintf(&b, ", NULLIF(COUNT(%s), 0) AS a%d", v, i)
		default:
			fmt.Fprintf(&b, ", AVG(%s) AS a%d", v, i)
		}
	}
	b.WriteString(" FROM (")

	for hi, h := range q.Handles {
		if hi > 0 {
			b.WriteString(" UNION ALL ")
		}
		b.WriteString("SELECT ts")
		for i, spec := range q.Specs {
			var exprs []string
			for _, src := range spec.Sources {
				c, ok := h.column(src.Column)
				if !ok {
					continue
				}
				num := fmt.Sprintf("CASE WHEN typeof(%s) IN ('real', 'integer') THEN %s END", c.Physical, c.Physical)
				if !src.Conversion.IsIdentity() {
					num = fmt.Sprintf("(%s) * ? + ?", num)
					args = append(args, src.Conversion.Scale, src.Conversion.Offset)
				}
				exprs = append(exprs, num)
			}
			switch len(exprs) {
			case 0:
				fmt.Fprintf(&b, ", NULL AS v%d", i)
			case 1:
				fmt.Fprintf(&b, ", %s AS v%d", exprs[0], i)
			default:
				fmt.Fprintf(&b, ", COALESCE(%s) AS v%d", strings.Join(exprs, ", "), i)
			}
		}
		fmt.Fprintf(&b, " FROM %s", h.Table)
	}
	b.WriteString(")")

	var where []string
	if !q.Bounds.Start.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, ingest.FormatCanonical(q.Bounds.Start))
	}
	if !q.Bounds.End.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, ingest.FormatCanonical(q.Bounds.End))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" GROUP BY bucket ORDER BY bucket")
	return b.String(), args
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

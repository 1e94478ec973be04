package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lox/wxarchive/internal/aggregate"
	"github.com/lox/wxarchive/internal/archive"
	"github.com/lox/wxarchive/internal/columns"
	"github.com/lox/wxarchive/internal/export"
	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/models"
	"github.com/lox/wxarchive/internal/stats"
)

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func parseDate(name, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, badRequestf("invalid %s %q (expected YYYY-MM-DD)", name, s)
	}
	return t, nil
}

// parseRequest reads kind, month or start/end, and resolution from the query
// string. An absent kind is left empty so channel scopes pick their export.
func parseRequest(r *http.Request) (archive.Request, error) {
	q := r.URL.Query()
	var req archive.Request

	if k := q.Get("kind"); k != "" {
		kind, err := ingest.ParseKind(k)
		if err != nil {
			return req, badRequestf("%v", err)
		}
		req.Kind = kind
	}
	res, err := aggregate.ParseResolution(q.Get("resolution"))
	if err != nil {
		return req, badRequestf("%v", err)
	}
	req.Resolution = res

	if m := q.Get("month"); m != "" {
		month, err := ingest.ParseMonth(m)
		if err != nil {
			return req, badRequestf("%v", err)
		}
		req.Month = &month
	}
	if s := q.Get("start"); s != "" {
		if req.Start, err = parseDate("start", s); err != nil {
			return req, err
		}
	}
	if s := q.Get("end"); s != "" {
		if req.End, err = parseDate("end", s); err != nil {
			return req, err
		}
	}
	if err := req.Validate(); err != nil {
		return req, badRequestf("%v", err)
	}
	return req, nil
}

func parseScope(r *http.Request) (columns.Scope, error) {
	scope, err := columns.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		return scope, badRequestf("%v", err)
	}
	return scope, nil
}

func parseOrder(r *http.Request) stats.Options {
	if r.URL.Query().Get("order") == "value" {
		return stats.Options{Order: stats.ByValue}
	}
	return stats.Options{}
}

type tableResponse struct {
	archive.Meta
	Header []string         `json:"header"`
	Rows   []map[string]any `json:"rows"`
}

func tableRows(t *aggregate.Table) []map[string]any {
	rows := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]any, len(row.Values)+1)
		m[aggregate.TimeHeader] = row.Key
		for k, v := range row.Values {
			m[k] = v
		}
		rows[i] = m
	}
	return rows
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.archive.Aggregate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.NoData {
		writeNoData(w, res.Meta)
		return
	}

	if r.URL.Query().Get("format") == "parquet" {
		data, err := export.Marshal(res.Table)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apache.parquet")
		w.Header().Set("X-Request-Id", res.RequestID)
		w.Write(data)
		return
	}

	writeJSON(w, http.StatusOK, tableResponse{
		Meta:   res.Meta,
		Header: res.Table.Header,
		Rows:   tableRows(res.Table),
	})
}

type dailyJSON struct {
	Date     string   `json:"date"`
	TempMax  *float64 `json:"tmax"`
	TempMin  *float64 `json:"tmin"`
	TempAvg  *float64 `json:"tavg"`
	Rain     *float64 `json:"rain"`
	WindMax  *float64 `json:"wind_max"`
	WindAvg  *float64 `json:"wind_avg"`
	GustMax  *float64 `json:"gust_max"`
	Readings int      `json:"readings"`
}

func ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func toDailyJSON(days []models.DailyAggregate) []dailyJSON {
	out := make([]dailyJSON, len(days))
	for i, d := range days {
		out[i] = dailyJSON{
			Date:     models.DateKey(d.Date),
			TempMax:  ptr(d.TempMax),
			TempMin:  ptr(d.TempMin),
			TempAvg:  ptr(d.TempAvg),
			Rain:     ptr(d.RainSum),
			WindMax:  ptr(d.WindMax),
			WindAvg:  ptr(d.WindAvg),
			GustMax:  ptr(d.GustMax),
			Readings: d.Readings,
		}
	}
	return out
}

type dailyResponse struct {
	archive.Meta
	Scope string      `json:"scope"`
	Days  []dailyJSON `json:"days"`
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	scope, err := parseScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.archive.Daily(r.Context(), req, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.NoData {
		writeNoData(w, res.Meta)
		return
	}
	writeJSON(w, http.StatusOK, dailyResponse{Meta: res.Meta, Scope: scope.String(), Days: toDailyJSON(res.Days)})
}

func (s *Server) handleYearStats(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		writeError(w, badRequestf("invalid year"))
		return
	}
	scope, err := parseScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.archive.YearStats(r.Context(), year, scope, parseOrder(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if res.NoData {
		writeNoData(w, res.Meta)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMonthStats(w http.ResponseWriter, r *http.Request) {
	month, err := ingest.ParseMonth(mux.Vars(r)["month"])
	if err != nil {
		writeError(w, badRequestf("%v", err))
		return
	}
	scope, err := parseScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.archive.MonthStats(r.Context(), month, scope, parseOrder(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if res.NoData {
		writeNoData(w, res.Meta)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseDate("start", q.Get("start"))
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseDate("end", q.Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	if end.Before(start) {
		writeError(w, badRequestf("end before start"))
		return
	}
	res, err := s.archive.Accuracy(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.NoData {
		writeNoData(w, res.Meta)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cachedMonth struct {
	Table   string `json:"table"`
	Kind    string `json:"kind"`
	Month   string `json:"month"`
	Rows    int    `json:"rows"`
	Dropped int    `json:"dropped"`
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, []cachedMonth{})
		return
	}
	handles, err := s.cache.CachedMonths(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]cachedMonth, len(handles))
	for i, h := range handles {
		out[i] = cachedMonth{Table: h.Table, Kind: string(h.Kind), Month: h.Month.String(), Rows: h.Rows, Dropped: h.Dropped}
	}
	writeJSON(w, http.StatusOK, out)
}

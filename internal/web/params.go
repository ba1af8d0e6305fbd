package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/transitwatch/internal/core"
)

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// splitList splits a comma-separated parameter, dropping blanks. Repeated
// parameters (?risk=low&risk=high) are accepted too.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func badParam(name, value string) error {
	return fmt.Errorf("%w: %s=%q", core.ErrBadParameter, name, value)
}

// parseBoolParam treats an absent parameter as false.
func parseBoolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badParam(name, v)
	}
	return b, nil
}

// parsePositive parses an optional positive integer; non-numeric or
// non-positive values are rejected.
func parsePositive(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, badParam(name, v)
	}
	return n, nil
}

// parseQuery builds table query parameters from the request:
//
//	probability, risk, anomaly   comma-separated filter values
//	only_anomalies, high_probability_only, recent_only   booleans
//	q     free-text search
//	sort  column name, dir asc|desc
//	page, page_size
//
// Unknown enum values are rejected with core.ErrBadParameter rather than
// silently matching nothing.
func parseQuery(r *http.Request) (core.QueryParams, error) {
	q := r.URL.Query()
	var params core.QueryParams

	for _, v := range splitList(q["probability"]) {
		p := core.AnomalyProbability(v)
		if !p.Valid() {
			return params, badParam("probability", v)
		}
		params.Filter.Probability = append(params.Filter.Probability, p)
	}
	for _, v := range splitList(q["risk"]) {
		l := core.RiskLevel(v)
		if !l.Valid() {
			return params, badParam("risk", v)
		}
		params.Filter.Risk = append(params.Filter.Risk, l)
	}
	for _, v := range splitList(q["anomaly"]) {
		if v != core.NoAnomalies && !core.AnomalyType(v).Valid() {
			return params, badParam("anomaly", v)
		}
		params.Filter.Anomaly = append(params.Filter.Anomaly, v)
	}

	var err error
	if params.Filter.Quick.OnlyAnomalies, err = parseBoolParam(r, "only_anomalies"); err != nil {
		return params, err
	}
	if params.Filter.Quick.HighProbabilityOnly, err = parseBoolParam(r, "high_probability_only"); err != nil {
		return params, err
	}
	if params.Filter.Quick.RecentOnly, err = parseBoolParam(r, "recent_only"); err != nil {
		return params, err
	}

	params.Search = q.Get("q")

	if col := q.Get("sort"); col != "" {
		dir := core.SortAsc
		if d := q.Get("dir"); d != "" {
			if dir = core.ParseSortDirection(d); dir == core.SortNone {
				return params, badParam("dir", d)
			}
		}
		params.Sort = core.SortState{Column: col, Direction: dir}
	}

	if params.Page, err = parsePositive(r, "page"); err != nil {
		return params, err
	}
	if params.PageSize, err = parsePositive(r, "page_size"); err != nil {
		return params, err
	}
	return params, nil
}

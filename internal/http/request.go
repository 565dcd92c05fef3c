package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"billstack/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads one JSON value into v, rejecting unknown fields.
// An empty body leaves v untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		if errors.Is(err, core.ErrInvalidAmount) {
			return err
		}
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

func parseInt(name, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, name)
	}
	return n, nil
}

// periodFromQuery reads year and month, defaulting each to the current period.
func (s *Server) periodFromQuery(r *http.Request) (core.Period, error) {
	p := core.PeriodOf(s.clock.Now())
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := parseInt("year", v)
		if err != nil {
			return core.Period{}, err
		}
		p.Year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := parseInt("month", v)
		if err != nil {
			return core.Period{}, err
		}
		p.Month = m
	}
	return core.NewPeriod(p.Year, p.Month)
}

// hasPeriodQuery reports whether the caller asked for a specific month.
func hasPeriodQuery(r *http.Request) bool {
	q := r.URL.Query()
	return q.Has("year") || q.Has("month")
}

// periodFromPath reads the {year} and {month} path values.
func periodFromPath(r *http.Request) (core.Period, error) {
	y, err := parseInt("year", r.PathValue("year"))
	if err != nil {
		return core.Period{}, err
	}
	m, err := parseInt("month", r.PathValue("month"))
	if err != nil {
		return core.Period{}, err
	}
	return core.NewPeriod(y, m)
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/sbmi/pkg/data"
	"github.com/mchmarny/sbmi/pkg/growth"
	"github.com/mchmarny/sbmi/pkg/table"
)

const (
	arraySelector    = "|"
	batchBodyLimit   = 32 << 20
	batchInputSource = "api"
	runLimitMax      = 500
)

// BatchResponse is the augmented table of a batch posted to the API.
type BatchResponse struct {
	Run     *data.BatchRun      `json:"run"`
	Summary growth.Summary      `json:"summary"`
	Failed  []growth.RowFailure `json:"failed"`
	Columns []string            `json:"columns"`
	Rows    [][]string          `json:"rows"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLookupError maps a failed reference lookup onto 404 or 500.
func writeLookupError(w http.ResponseWriter, err error) {
	if isNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	slog.Error("failed to load reference", "error", err)
	writeError(w, http.StatusInternalServerError, "error loading reference")
}

// systemParam returns the requested reference system or def.
func systemParam(r *http.Request, def string) string {
	if v := strings.TrimSpace(r.URL.Query().Get("system")); v != "" {
		return v
	}
	return def
}

// queryParamFloat returns nil when key is absent.
func queryParamFloat(r *http.Request, key string) (*float64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %s", key, v)
	}
	return &f, nil
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("error converting query string to int", "value", v, "error", err)
		return def
	}

	if i < 1 || i > runLimitMax {
		return def
	}

	return i
}

func referencesAPIHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		list, err := data.ListReferences(db)
		if err != nil {
			slog.Error("failed to list references", "error", err)
			writeError(w, http.StatusInternalServerError, "error listing references")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func referenceAPIHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := getReferenceDetail(db, r.PathValue("name"))
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func curvesAPIHandler(std *standardizers, system string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sex, err := growth.ParseSex(r.URL.Query().Get("sex"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s, err := std.get(systemParam(r, system))
		if err != nil {
			writeLookupError(w, err)
			return
		}

		var levels []string
		if v := r.URL.Query().Get("level"); v != "" {
			levels = strings.Split(v, arraySelector)
		}

		set, err := getCurves(s.Index(), sex, levels)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, set)
	}
}

func standardizeAPIHandler(std *standardizers, system string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sex, err := growth.ParseSex(r.URL.Query().Get("sex"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		in := growth.Inputs{Sex: sex}
		for _, p := range []struct {
			key string
			dst **float64
		}{
			{"age_years", &in.AgeYears},
			{"age_months", &in.AgeMonths},
			{"bmi", &in.BMI},
		} {
			v, err := queryParamFloat(r, p.key)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			*p.dst = v
		}

		s, err := std.get(systemParam(r, system))
		if err != nil {
			writeLookupError(w, err)
			return
		}

		o := s.Outcome(in)
		status := http.StatusOK
		if o.Status == growth.StatusError {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, o)
	}
}

func batchAPIHandler(db *sqlx.DB, std *standardizers, system string, workers int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		unit, err := growth.ParseAgeUnit(q.Get("age_unit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		t, err := table.ReadCSV(http.MaxBytesReader(w, r.Body, batchBodyLimit))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid CSV body: %v", err))
			return
		}

		name := systemParam(r, system)
		s, err := std.get(name)
		if err != nil {
			writeLookupError(w, err)
			return
		}

		b, err := growth.NewBatch(s)
		if err != nil {
			slog.Error("failed to create batch", "error", err)
			writeError(w, http.StatusInternalServerError, "error creating batch")
			return
		}

		res, err := b.Run(r.Context(), t, growth.BatchOptions{
			SexColumn:    q.Get("sex_column"),
			BMIColumn:    q.Get("bmi_column"),
			AgeColumn:    q.Get("age_column"),
			AgeUnit:      unit,
			OutputColumn: q.Get("output_column"),
			Workers:      workers,
		})
		if err != nil {
			if errors.Is(err, r.Context().Err()) {
				writeError(w, http.StatusServiceUnavailable, "request cancelled")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		run := data.NewBatchRun(name, batchInputSource, res)
		if err := data.SaveBatchRun(db, run); err != nil {
			slog.Error("failed to save batch run", "error", err)
			writeError(w, http.StatusInternalServerError, "error saving batch run")
			return
		}

		writeJSON(w, http.StatusOK, &BatchResponse{
			Run:     run,
			Summary: res.Summary,
			Failed:  res.Failed,
			Columns: res.Table.Columns,
			Rows:    res.Table.Rows,
		})
	}
}

func runsAPIHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := data.ListBatchRuns(db, queryParamInt(r, "limit", runLimitDefault))
		if err != nil {
			slog.Error("failed to list runs", "error", err)
			writeError(w, http.StatusInternalServerError, "error listing runs")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func runFailuresAPIHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := data.GetBatchFailures(db, r.PathValue("id"))
		if err != nil {
			slog.Error("failed to get run failures", "error", err)
			writeError(w, http.StatusInternalServerError, "error getting run failures")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	coredash "github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/core/prediction"
	"github.com/kilianp07/atmcast/infra/audit"
	"github.com/kilianp07/atmcast/pkg/export"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// NewForecastHandler serves GET /api/forecast and
// GET /api/atms/{atm_id}/forecast. Query parameters: horizon (days),
// history (bool) and format (json or csv). Degraded snapshots are returned
// with 200 and their status field set.
func NewForecastHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := coredash.Request{ATMID: mux.Vars(r)["atm_id"]}
		if s := q.Get("horizon"); s != "" {
			h, err := strconv.Atoi(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "horizon must be an integer")
				return
			}
			if h == 0 {
				writeError(w, http.StatusBadRequest, "horizon must be positive")
				return
			}
			req.Horizon = h
		}
		if s := q.Get("history"); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "history must be a boolean")
				return
			}
			req.IncludeHistory = b
		}
		format := export.FormatJSON
		if s := q.Get("format"); s != "" {
			f, err := export.ParseFormat(s)
			if err != nil || f == export.FormatTable {
				writeError(w, http.StatusBadRequest, "format must be json or csv")
				return
			}
			format = f
		}

		snap, err := svc.Refresh(r.Context(), req)
		switch {
		case errors.Is(err, coredash.ErrUnknownATM):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, coredash.ErrInvalidHorizon):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if format == export.FormatCSV {
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("X-Forecast-Status", string(snap.Status))
			_ = export.WriteSnapshot(w, snap, export.FormatCSV)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})
}

// NewHeatmapHandler serves GET /api/heatmap.
func NewHeatmapHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Heatmap(r.Context()))
	})
}

// NewReloadHandler serves POST /api/models/{atm_id}/reload.
func NewReloadHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["atm_id"]
		err := svc.ReloadModel(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]string{"atm_id": id, "status": "reloaded"})
			return
		}
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, coredash.ErrUnknownATM), errors.Is(err, prediction.ErrModelNotFound):
			code = http.StatusNotFound
		case errors.Is(err, prediction.ErrModelCorrupt):
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, errorBody{Error: err.Error(), Kind: prediction.Kind(err)})
	})
}

// NewAuditHandler serves GET /api/audit with optional atm_id, start and end
// (RFC3339) filters.
func NewAuditHandler(store AuditQuerier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := audit.Query{ATMID: r.URL.Query().Get("atm_id")}
		for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			s := r.URL.Query().Get(name)
			if s == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, name+" must be RFC3339")
				return
			}
			*dst = t
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if records == nil {
			records = []audit.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	})
}

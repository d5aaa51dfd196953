package reports

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type Handler struct {
	repo   *ReportRepository
	logger *slog.Logger
}

func NewHandler(repo *ReportRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, msg := parseWindow(r)
	if msg != "" {
		h.writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	summary, err := h.repo.Summary(r.Context(), from, to)
	if err != nil {
		h.logger.Error("failed to build sales summary", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// HandleExport streams the order listing as a spreadsheet or PDF, picked by
// the format query parameter.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	from, to, msg := parseWindow(r)
	if msg != "" {
		h.writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}

	rows, err := h.repo.OrderRows(r.Context(), from, to)
	if err != nil {
		h.logger.Error("failed to load export rows", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var buf bytes.Buffer
	switch format {
	case "xlsx":
		if err := WriteXLSX(&buf, rows); err != nil {
			h.logger.Error("failed to render spreadsheet", "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="sales.xlsx"`)
	case "pdf":
		if err := WritePDF(&buf, rows); err != nil {
			h.logger.Error("failed to render pdf", "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="sales.pdf"`)
	default:
		h.writeError(w, http.StatusUnprocessableEntity, "format must be xlsx or pdf")
		return
	}

	h.logger.Info("sales export generated", "format", format, "rows", len(rows))
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("failed to write export", "error", err)
	}
}

func parseWindow(r *http.Request) (time.Time, time.Time, string) {
	var from, to time.Time
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, "invalid from date, expected YYYY-MM-DD"
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, "invalid to date, expected YYYY-MM-DD"
		}
		to = t.AddDate(0, 0, 1)
	}

	return from, to, ""
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

package http

import (
	"fmt"
	"net/http"

	"billstack/internal/export"
	"billstack/internal/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) error {
	p, err := s.periodFromQuery(r)
	if err != nil {
		return err
	}
	o, err := s.engine.Reports.Overview(r.Context(), p.Year, p.Month)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, o)
	return nil
}

// handleStatement streams the monthly XLSX statement.
func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) error {
	p, err := s.periodFromQuery(r)
	if err != nil {
		return err
	}
	st, err := export.NewStatement(r.Context(), s.engine, p)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=statement-%s.xlsx", p))
	if err := export.Write(w, st); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to write statement",
			log.FieldOperation, log.OpExport, log.FieldError, err, "period", p.String())
	}
	return nil
}

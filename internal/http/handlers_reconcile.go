package http

import (
	"net/http"

	"billstack/internal/core"
)

type repairBody struct {
	TransactionID string `json:"transactionId"`
	Action        string `json:"action"`
}

func (s *Server) handleFindOrphans(w http.ResponseWriter, r *http.Request) error {
	orphans, err := s.engine.Reconciler.FindOrphans(r.Context())
	if err != nil {
		return err
	}
	if orphans == nil {
		orphans = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, orphans)
	return nil
}

func (s *Server) handleRepairOrphan(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	action, err := s.engine.Reconciler.RepairOrphan(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, repairBody{TransactionID: id, Action: action})
	return nil
}

func (s *Server) handleAuditBalances(w http.ResponseWriter, r *http.Request) error {
	drifts, err := s.engine.Reconciler.AuditBalances(r.Context())
	if err != nil {
		return err
	}
	if drifts == nil {
		drifts = []core.BalanceDrift{}
	}
	writeJSON(w, http.StatusOK, drifts)
	return nil
}

func (s *Server) handleCheckBill(w http.ResponseWriter, r *http.Request) error {
	violations, err := s.engine.Reconciler.CheckBill(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	if violations == nil {
		violations = []core.Violation{}
	}
	writeJSON(w, http.StatusOK, violations)
	return nil
}

package http

import (
	"net/http"

	"billstack/internal/core"
)

type payBody struct {
	AccountID string `json:"accountId"`
}

// handlePayBill pays the bill for the current month. Duplicate payments and
// bills with no usable account answer 409 with the reason code.
func (s *Server) handlePayBill(w http.ResponseWriter, r *http.Request) error {
	var body payBody
	if err := decodeJSON(w, r, &body, true); err != nil {
		return err
	}
	receipt, err := s.engine.Coordinator.MarkBillAsPaidOutcome(r.Context(), r.PathValue("id"), body.AccountID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, receipt)
	return nil
}

// handleUndoPayment reverses a payment. The body is the receipt returned by
// the pay call; the bill id comes from the path.
func (s *Server) handleUndoPayment(w http.ResponseWriter, r *http.Request) error {
	var req core.UndoRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		return err
	}
	req.BillID = r.PathValue("id")
	if err := s.engine.Coordinator.UndoBillPayment(r.Context(), req); err != nil {
		return err
	}
	return noContent(w)
}

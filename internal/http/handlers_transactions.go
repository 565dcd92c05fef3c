package http

import (
	"net/http"
	"time"

	"billstack/internal/core"
)

// transactionPatchBody is the editable subset of a transaction. Account
// snapshots follow the account and cannot be set directly.
type transactionPatchBody struct {
	Type        *core.TransactionType `json:"type"`
	Amount      *core.Money           `json:"amount"`
	Category    *string               `json:"category"`
	AccountID   *string               `json:"accountId"`
	Description *string               `json:"description"`
	Date        *time.Time            `json:"date"`
}

func (b transactionPatchBody) patch() core.TransactionPatch {
	return core.TransactionPatch{
		Type:        b.Type,
		Amount:      b.Amount,
		Category:    b.Category,
		AccountID:   b.AccountID,
		Description: b.Description,
		Date:        b.Date,
	}
}

// handleListTransactions lists by bill, by month or everything, newest first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) error {
	var (
		txns []core.Transaction
		err  error
	)
	switch {
	case r.URL.Query().Get("billId") != "":
		txns, err = s.engine.Txns.ListByBill(r.Context(), r.URL.Query().Get("billId"))
	case hasPeriodQuery(r):
		p, perr := s.periodFromQuery(r)
		if perr != nil {
			return perr
		}
		txns, err = s.engine.Txns.ListByPeriod(r.Context(), p)
	default:
		txns, err = s.engine.Txns.List(r.Context())
	}
	if err != nil {
		return err
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
	return nil
}

// handleCreateTransaction records a manual transaction and moves the balance.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) error {
	var t core.Transaction
	if err := decodeJSON(w, r, &t, false); err != nil {
		return err
	}
	t.ID, t.BillID = "", ""
	created, err := s.engine.Bookkeeper.Record(r.Context(), t)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, created)
	return nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) error {
	t, err := s.engine.Txns.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, t)
	return nil
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) error {
	var body transactionPatchBody
	if err := decodeJSON(w, r, &body, false); err != nil {
		return err
	}
	edited, err := s.engine.Bookkeeper.Edit(r.Context(), r.PathValue("id"), body.patch())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, edited)
	return nil
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) error {
	if err := s.engine.Bookkeeper.Remove(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	return noContent(w)
}

package http

import (
	"net/http"

	"billstack/internal/core"
)

type totalBody struct {
	Total core.Money `json:"total"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) error {
	accounts, err := s.engine.Ledger.Accounts(r.Context())
	if err != nil {
		return err
	}
	if accounts == nil {
		accounts = []core.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
	return nil
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) error {
	var a core.Account
	if err := decodeJSON(w, r, &a, false); err != nil {
		return err
	}
	created, err := s.engine.Ledger.CreateAccount(r.Context(), a)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, created)
	return nil
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) error {
	a, err := s.engine.Ledger.Account(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, a)
	return nil
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) error {
	var a core.Account
	if err := decodeJSON(w, r, &a, false); err != nil {
		return err
	}
	a.ID = r.PathValue("id")
	updated, err := s.engine.Ledger.UpdateAccount(r.Context(), a)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, updated)
	return nil
}

func (s *Server) handleSetDefaultAccount(w http.ResponseWriter, r *http.Request) error {
	if err := s.engine.Ledger.SetDefault(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	return noContent(w)
}

func (s *Server) handleTotalBalance(w http.ResponseWriter, r *http.Request) error {
	total, err := s.engine.Ledger.TotalBalance(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, totalBody{Total: total})
	return nil
}

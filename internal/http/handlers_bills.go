package http

import (
	"context"
	"net/http"

	"billstack/internal/core"
)

// billView is a stored bill plus how it stands in the requested month.
type billView struct {
	core.Bill
	DisplayStatus core.BillStatus `json:"displayStatus"`
	MonthAmount   core.Money      `json:"monthAmount"`
	Period        core.Period     `json:"period"`
}

type amountBody struct {
	Amount core.Money `json:"amount"`
}

func (s *Server) views(ctx context.Context, bills []core.Bill, p core.Period) ([]billView, error) {
	out := make([]billView, 0, len(bills))
	for _, b := range bills {
		amount, err := s.engine.Scheduler.MonthlyAmount(ctx, b, p.Year, p.Month)
		if err != nil {
			return nil, err
		}
		out = append(out, billView{
			Bill:          b,
			DisplayStatus: s.engine.Scheduler.DisplayStatus(b, p),
			MonthAmount:   amount,
			Period:        p,
		})
	}
	return out, nil
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) error {
	p, err := s.periodFromQuery(r)
	if err != nil {
		return err
	}
	bills, err := s.engine.Bills.Bills(r.Context())
	if err != nil {
		return err
	}
	views, err := s.views(r.Context(), bills, p)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, views)
	return nil
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) error {
	var b core.Bill
	if err := decodeJSON(w, r, &b, false); err != nil {
		return err
	}
	created, err := s.engine.Bills.CreateBill(r.Context(), b)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, created)
	return nil
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) error {
	b, err := s.engine.Bills.Bill(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, b)
	return nil
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) error {
	var b core.Bill
	if err := decodeJSON(w, r, &b, false); err != nil {
		return err
	}
	b.ID = r.PathValue("id")
	updated, err := s.engine.Bills.UpdateBill(r.Context(), b)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, updated)
	return nil
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) error {
	if err := s.engine.Bills.DeleteBill(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	return noContent(w)
}

func (s *Server) handlePendingBills(w http.ResponseWriter, r *http.Request) error {
	p, err := s.periodFromQuery(r)
	if err != nil {
		return err
	}
	bills, err := s.engine.Scheduler.PendingBills(r.Context(), p.Year, p.Month)
	if err != nil {
		return err
	}
	views, err := s.views(r.Context(), bills, p)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, views)
	return nil
}

func (s *Server) handleOverdueBills(w http.ResponseWriter, r *http.Request) error {
	bills, err := s.engine.Scheduler.OverdueBills(r.Context())
	if err != nil {
		return err
	}
	views, err := s.views(r.Context(), bills, core.PeriodOf(s.clock.Now()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, views)
	return nil
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) error {
	bills, err := s.engine.Scheduler.RemindersDue(r.Context())
	if err != nil {
		return err
	}
	views, err := s.views(r.Context(), bills, core.PeriodOf(s.clock.Now()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, views)
	return nil
}

func (s *Server) handleGetMonthlyAmount(w http.ResponseWriter, r *http.Request) error {
	p, err := periodFromPath(r)
	if err != nil {
		return err
	}
	b, err := s.engine.Bills.Bill(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	amount, err := s.engine.Scheduler.MonthlyAmount(r.Context(), b, p.Year, p.Month)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: amount})
	return nil
}

func (s *Server) handleSetMonthlyAmount(w http.ResponseWriter, r *http.Request) error {
	p, err := periodFromPath(r)
	if err != nil {
		return err
	}
	var body amountBody
	if err := decodeJSON(w, r, &body, false); err != nil {
		return err
	}
	if err := s.engine.Scheduler.SetMonthlyAmount(r.Context(), r.PathValue("id"), p.Year, p.Month, body.Amount); err != nil {
		return err
	}
	return noContent(w)
}

func (s *Server) handleClearMonthlyAmount(w http.ResponseWriter, r *http.Request) error {
	p, err := periodFromPath(r)
	if err != nil {
		return err
	}
	if err := s.engine.Scheduler.ClearMonthlyAmount(r.Context(), r.PathValue("id"), p.Year, p.Month); err != nil {
		return err
	}
	return noContent(w)
}

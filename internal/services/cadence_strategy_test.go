package services

import (
	"errors"
	"testing"
	"time"

	"billstack/internal/core"
)

func TestQuarterlyCadence_CalendarAnchor(t *testing.T) {
	checker := QuarterlyCadence{}
	bill := core.Bill{Frequency: core.Quarterly, CreatedAt: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)}

	var due []int
	for m := 0; m < 12; m++ {
		if checker.IsDue(bill, core.Period{Year: 2024, Month: m}, AnchorCalendar) {
			due = append(due, m)
		}
	}
	want := []int{0, 3, 6, 9}
	if len(due) != len(want) {
		t.Fatalf("due months = %v, want %v", due, want)
	}
	for i := range want {
		if due[i] != want[i] {
			t.Fatalf("due months = %v, want %v", due, want)
		}
	}
}

func TestCadence_CreationAnchor(t *testing.T) {
	created := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC) // month 1
	bill := core.Bill{CreatedAt: created}

	tests := []struct {
		name    string
		checker CadenceChecker
		month   int
		want    bool
	}{
		{"quarterly in creation month", QuarterlyCadence{}, 1, true},
		{"quarterly three months later", QuarterlyCadence{}, 4, true},
		{"quarterly wraps year", QuarterlyCadence{}, 10, true},
		{"quarterly calendar month not due", QuarterlyCadence{}, 0, false},
		{"yearly in creation month", YearlyCadence{}, 1, true},
		{"yearly in january not due", YearlyCadence{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.checker.IsDue(bill, core.Period{Year: 2025, Month: tt.month}, AnchorCreation)
			if got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYearlyCadence_CalendarAnchor(t *testing.T) {
	checker := YearlyCadence{}
	for m := 0; m < 12; m++ {
		got := checker.IsDue(core.Bill{}, core.Period{Year: 2024, Month: m}, AnchorCalendar)
		if got != (m == 0) {
			t.Errorf("month %d: IsDue() = %v", m, got)
		}
	}
}

func TestGetCadenceChecker(t *testing.T) {
	for _, f := range []core.Frequency{core.Monthly, core.Quarterly, core.Yearly, core.OneTime} {
		if _, err := GetCadenceChecker(f); err != nil {
			t.Errorf("GetCadenceChecker(%s): %v", f, err)
		}
	}
	if _, err := GetCadenceChecker("weekly"); !errors.Is(err, core.ErrInvalidFrequency) {
		t.Errorf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestParseCadenceAnchor(t *testing.T) {
	tests := []struct {
		in      string
		want    CadenceAnchor
		wantErr bool
	}{
		{"", AnchorCalendar, false},
		{"calendar", AnchorCalendar, false},
		{"creation", AnchorCreation, false},
		{"fiscal", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCadenceAnchor(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCadenceAnchor(%q) = %q, %v", tt.in, got, err)
		}
	}
}

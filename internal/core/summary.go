package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// AccountActivity is the income and expense flowing through one account.
type AccountActivity struct {
	Account string `json:"account"`
	Income  Money  `json:"income"`
	Expense Money  `json:"expense"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Period       Period            `json:"period"`
	TotalIncome  Money             `json:"totalIncome"`
	TotalExpense Money             `json:"totalExpense"`
	ByCategory   []CategoryAmount  `json:"byCategory"`
	ByAccount    []AccountActivity `json:"byAccount"`
}

// Net is income minus expense.
func (o MonthOverview) Net() Money {
	return o.TotalIncome.Sub(o.TotalExpense)
}

// BalanceDrift reports an account whose stored balance disagrees with its
// transactions.
type BalanceDrift struct {
	AccountID string `json:"accountId"`
	Stored    Money  `json:"stored"`
	Expected  Money  `json:"expected"`
}

// Difference is stored minus expected.
func (d BalanceDrift) Difference() Money {
	return d.Stored.Sub(d.Expected)
}

// Violation describes a broken consistency rule found on a bill.
type Violation struct {
	BillID string `json:"billId"`
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return v.Rule + ": " + v.Detail
}

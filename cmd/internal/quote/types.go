// Package quote implements quote request intake and the rate estimate
// matcher for the public site.
package quote

import "time"

// Request is a submitted quote request from the public site.
type Request struct {
	// Reference is the customer-facing identifier handed back on
	// submission (UUID).
	Reference string `json:"reference"`

	ProductType    string `json:"productType"`
	State          string `json:"state"`
	Age            int    `json:"age"`
	CoverageAmount int64  `json:"coverageAmount"`
	TobaccoUse     bool   `json:"tobaccoUse"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Criteria selects matching rate rows. Zero-valued fields are
// unconstrained; each provided field adds one condition.
type Criteria struct {
	ProductType    string `json:"productType,omitempty"`
	State          string `json:"state,omitempty"`
	Age            int    `json:"age,omitempty"`
	CoverageAmount int64  `json:"coverageAmount,omitempty"`
	// Tobacco is tri-state: nil leaves the tobacco class unconstrained.
	Tobacco *bool `json:"tobaccoUse,omitempty"`
}

// Estimate is one matching rate table row.
type Estimate struct {
	ID           string `json:"id"`
	Carrier      string `json:"carrier"`
	ProductType  string `json:"productType"`
	State        string `json:"state"`
	MinAge       int    `json:"minAge"`
	MaxAge       int    `json:"maxAge"`
	TobaccoClass string `json:"tobaccoClass"`
	MinCoverage  int64  `json:"minCoverage"`
	MaxCoverage  int64  `json:"maxCoverage"`
	// MonthlyPremiumCents avoids floating currency.
	MonthlyPremiumCents int64 `json:"monthlyPremiumCents"`
	TermYears           int   `json:"termYears,omitempty"`
}

// Tobacco class values stored in the rate table.
const (
	TobaccoClassNone = "none"
	TobaccoClassUser = "tobacco"
)

func tobaccoClassFor(use bool) string {
	if use {
		return TobaccoClassUser
	}
	return TobaccoClassNone
}

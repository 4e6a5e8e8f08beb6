package domain

import (
	"math"
	"strconv"
	"strings"
)

// Product is a credit product family.
type Product int

const (
	ProductLoan Product = iota
	ProductBenefit
	ProductCard
)

// Products lists every product in canonical order.
var Products = [...]Product{ProductLoan, ProductBenefit, ProductCard}

// String returns the wire name of the product.
func (p Product) String() string {
	switch p {
	case ProductLoan:
		return "loan"
	case ProductBenefit:
		return "benefit"
	case ProductCard:
		return "card"
	default:
		return "unknown"
	}
}

// ParseProduct accepts the wire names and the labels used by the operators' sheets.
func ParseProduct(s string) (Product, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "loan", "novo", "emprestimo", "empréstimo", "new":
		return ProductLoan, true
	case "benefit", "beneficio", "benefício":
		return ProductBenefit, true
	case "card", "cartao", "cartão", "consignado":
		return ProductCard, true
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (p Product) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Product) UnmarshalText(b []byte) error {
	v, ok := ParseProduct(string(b))
	if !ok {
		return &UnknownValueError{Field: "product", Value: string(b)}
	}
	*p = v
	return nil
}

// suffix is the column suffix used for the product's output fields.
func (p Product) suffix() string {
	switch p {
	case ProductLoan:
		return "emprestimo"
	case ProductBenefit:
		return "beneficio"
	default:
		return "cartao"
	}
}

// Offer holds the calculated offer of one product for one record.
type Offer struct {
	Amount      float64 `json:"amount"`
	Installment float64 `json:"installment"`
	Commission  float64 `json:"commission"`
	Bank        string  `json:"bank,omitempty"`
	Term        int     `json:"term,omitempty"`

	// Treated flips to true once; later configurations skip the record.
	Treated bool `json:"-"`
}

// Record is one normalized lead.
type Record struct {
	Origin     string `json:"origin,omitempty"`
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId,omitempty"`
	TaxID      string `json:"taxId,omitempty"`
	BirthDate  string `json:"birthDate,omitempty"`

	LoanTotal        *float64 `json:"loanTotal,omitempty"`
	LoanAvailable    *float64 `json:"loanAvailable,omitempty"`
	BenefitTotal     *float64 `json:"benefitTotal,omitempty"`
	BenefitAvailable *float64 `json:"benefitAvailable,omitempty"`
	CardTotal        *float64 `json:"cardTotal,omitempty"`
	CardAvailable    *float64 `json:"cardAvailable,omitempty"`

	Agreement string    `json:"agreement,omitempty"`
	Bond      string    `json:"bond,omitempty"`
	Workplace string    `json:"workplace,omitempty"`
	SubUnit   string    `json:"subUnit,omitempty"`
	Phones    [4]string `json:"phones"`

	Offers   [3]Offer `json:"offers"`
	Campaign string   `json:"campaign,omitempty"`

	// Extra keeps columns outside the canonical shape, untouched.
	Extra map[string]string `json:"extra,omitempty"`
}

// Offer returns a pointer to the record's offer for p.
func (r *Record) Offer(p Product) *Offer {
	return &r.Offers[p]
}

// Available returns the available margin for p.
func (r *Record) Available(p Product) *float64 {
	switch p {
	case ProductLoan:
		return r.LoanAvailable
	case ProductBenefit:
		return r.BenefitAvailable
	default:
		return r.CardAvailable
	}
}

// Total returns the total margin for p.
func (r *Record) Total(p Product) *float64 {
	switch p {
	case ProductLoan:
		return r.LoanTotal
	case ProductBenefit:
		return r.BenefitTotal
	default:
		return r.CardTotal
	}
}

// UsedAllowance reports whether part of p's margin was already consumed.
func (r *Record) UsedAllowance(p Product) bool {
	total, avail := r.Total(p), r.Available(p)
	return total != nil && avail != nil && *total > *avail
}

// TotalCommission sums the commission of every product.
func (r *Record) TotalCommission() float64 {
	var sum float64
	for _, o := range r.Offers {
		sum += o.Commission
	}
	return sum
}

// HasOffer reports whether at least one product has a positive amount.
func (r *Record) HasOffer() bool {
	for _, o := range r.Offers {
		if o.Amount > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.LoanTotal = cloneFloat(r.LoanTotal)
	c.LoanAvailable = cloneFloat(r.LoanAvailable)
	c.BenefitTotal = cloneFloat(r.BenefitTotal)
	c.BenefitAvailable = cloneFloat(r.BenefitAvailable)
	c.CardTotal = cloneFloat(r.CardTotal)
	c.CardAvailable = cloneFloat(r.CardAvailable)
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Value returns the raw text of a column. ok is false when the cell is missing.
func (r *Record) Value(column string) (string, bool) {
	if f, found := recordFields[column]; found {
		s := f.get(r)
		return s, s != ""
	}
	if p, kind, found := offerColumn(column); found {
		o := r.Offers[p]
		switch kind {
		case "valor_liberado":
			return formatFloat(&o.Amount), true
		case "valor_parcela":
			return formatFloat(&o.Installment), true
		case "comissao":
			return formatFloat(&o.Commission), true
		case "banco":
			return o.Bank, o.Bank != ""
		case "prazo":
			return strconv.Itoa(o.Term), true
		}
	}
	v, ok := r.Extra[column]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SetValue stores raw text into a column, parsing margins.
func (r *Record) SetValue(column, value string) {
	if f, found := recordFields[column]; found {
		f.set(r, value)
		return
	}
	if r.Extra == nil {
		r.Extra = make(map[string]string)
	}
	r.Extra[column] = value
}

type fieldAccess struct {
	get func(*Record) string
	set func(*Record, string)
}

func textField(ptr func(*Record) *string) fieldAccess {
	return fieldAccess{
		get: func(r *Record) string { return *ptr(r) },
		set: func(r *Record, v string) { *ptr(r) = strings.TrimSpace(v) },
	}
}

func marginField(ptr func(*Record) **float64) fieldAccess {
	return fieldAccess{
		get: func(r *Record) string { return formatFloat(*ptr(r)) },
		set: func(r *Record, v string) { *ptr(r) = ParseNumber(v) },
	}
}

var recordFields = map[string]fieldAccess{
	ColOrigin:           textField(func(r *Record) *string { return &r.Origin }),
	ColName:             textField(func(r *Record) *string { return &r.Name }),
	ColEmployeeID:       textField(func(r *Record) *string { return &r.EmployeeID }),
	ColTaxID:            textField(func(r *Record) *string { return &r.TaxID }),
	ColBirthDate:        textField(func(r *Record) *string { return &r.BirthDate }),
	ColLoanTotal:        marginField(func(r *Record) **float64 { return &r.LoanTotal }),
	ColLoanAvailable:    marginField(func(r *Record) **float64 { return &r.LoanAvailable }),
	ColBenefitTotal:     marginField(func(r *Record) **float64 { return &r.BenefitTotal }),
	ColBenefitAvailable: marginField(func(r *Record) **float64 { return &r.BenefitAvailable }),
	ColCardTotal:        marginField(func(r *Record) **float64 { return &r.CardTotal }),
	ColCardAvailable:    marginField(func(r *Record) **float64 { return &r.CardAvailable }),
	ColAgreement:        textField(func(r *Record) *string { return &r.Agreement }),
	ColBond:             textField(func(r *Record) *string { return &r.Bond }),
	ColWorkplace:        textField(func(r *Record) *string { return &r.Workplace }),
	ColSubUnit:          textField(func(r *Record) *string { return &r.SubUnit }),
	ColPhone1:           textField(func(r *Record) *string { return &r.Phones[0] }),
	ColPhone2:           textField(func(r *Record) *string { return &r.Phones[1] }),
	ColPhone3:           textField(func(r *Record) *string { return &r.Phones[2] }),
	ColPhone4:           textField(func(r *Record) *string { return &r.Phones[3] }),
	ColCampaign:         textField(func(r *Record) *string { return &r.Campaign }),
}

// ParseNumber parses a numeric cell. Blank or non-numeric text yields nil.
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

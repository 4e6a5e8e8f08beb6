package domain

import "strings"

// Input column names, as delivered by the hygiene files.
const (
	ColOrigin           = "Origem_Dado"
	ColName             = "Nome_Cliente"
	ColEmployeeID       = "Matricula"
	ColTaxID            = "CPF"
	ColBirthDate        = "Data_Nascimento"
	ColLoanTotal        = "MG_Emprestimo_Total"
	ColLoanAvailable    = "MG_Emprestimo_Disponivel"
	ColBenefitTotal     = "MG_Beneficio_Saque_Total"
	ColBenefitAvailable = "MG_Beneficio_Saque_Disponivel"
	ColCardTotal        = "MG_Cartao_Total"
	ColCardAvailable    = "MG_Cartao_Disponivel"
	ColAgreement        = "Convenio"
	ColBond             = "Vinculo_Servidor"
	ColWorkplace        = "Lotacao"
	ColSubUnit          = "Secretaria"
	ColPhone1           = "FONE1"
	ColPhone2           = "FONE2"
	ColPhone3           = "FONE3"
	ColPhone4           = "FONE4"
	ColCampaign         = "Campanha"

	// ColCompulsoryAvailable is only present on some agreements' files.
	ColCompulsoryAvailable = "MG_Compulsoria_Disponivel"
)

// EssentialColumns are created empty by the preprocessor when missing.
var EssentialColumns = []string{
	ColName, ColTaxID, ColWorkplace, ColBond, ColBirthDate,
	ColLoanAvailable, ColBenefitTotal, ColBenefitAvailable,
	ColCardTotal, ColCardAvailable, ColEmployeeID,
}

// OfferColumn returns the name of a per-product offer column,
// e.g. OfferColumn("comissao", ProductCard) == "comissao_cartao".
func OfferColumn(kind string, p Product) string {
	return kind + "_" + p.suffix()
}

var offerKinds = []string{"valor_liberado", "valor_parcela", "comissao", "banco", "prazo"}

func offerColumn(column string) (Product, string, bool) {
	for _, kind := range offerKinds {
		rest, ok := strings.CutPrefix(column, kind+"_")
		if !ok {
			continue
		}
		for _, p := range Products {
			if rest == p.suffix() {
				return p, kind, true
			}
		}
	}
	return 0, "", false
}

// OutputColumns is the canonical column order of the final table.
var OutputColumns = []string{
	ColOrigin, ColName, ColEmployeeID, ColTaxID, ColBirthDate,
	ColLoanTotal, ColLoanAvailable,
	ColBenefitTotal, ColBenefitAvailable,
	ColCardTotal, ColCardAvailable,
	ColAgreement, ColBond, ColWorkplace, ColSubUnit,
	ColPhone1, ColPhone2, ColPhone3, ColPhone4,
	"valor_liberado_emprestimo", "valor_liberado_beneficio", "valor_liberado_cartao",
	"comissao_emprestimo", "comissao_beneficio", "comissao_cartao",
	"valor_parcela_emprestimo", "valor_parcela_beneficio", "valor_parcela_cartao",
	"banco_emprestimo", "banco_beneficio", "banco_cartao",
	"prazo_emprestimo", "prazo_beneficio", "prazo_cartao",
	ColCampaign,
}

// outputRenames maps canonical names to the header expected by the dialer.
var outputRenames = map[string]string{
	ColOrigin:           "ORIGEM DO DADO",
	ColLoanTotal:        "Mg_Emprestimo_Total",
	ColLoanAvailable:    "Mg_Emprestimo_Disponivel",
	ColBenefitTotal:     "Mg_Beneficio_Saque_Total",
	ColBenefitAvailable: "Mg_Beneficio_Saque_Disponivel",
	ColCardTotal:        "Mg_Cartao_Total",
	ColCardAvailable:    "Mg_Cartao_Disponivel",
}

// OutputHeader returns OutputColumns with the output renames applied.
func OutputHeader() []string {
	header := make([]string, len(OutputColumns))
	for i, c := range OutputColumns {
		if renamed, ok := outputRenames[c]; ok {
			c = renamed
		}
		header[i] = c
	}
	return header
}

// OutputRow renders the record in OutputColumns order. Missing cells are nil.
// Offer amounts, installments, commissions and terms are always present.
func (r *Record) OutputRow() []any {
	row := make([]any, len(OutputColumns))
	for i, c := range OutputColumns {
		if p, kind, ok := offerColumn(c); ok {
			o := r.Offers[p]
			switch kind {
			case "valor_liberado":
				row[i] = o.Amount
			case "valor_parcela":
				row[i] = o.Installment
			case "comissao":
				row[i] = o.Commission
			case "prazo":
				row[i] = o.Term
			case "banco":
				if o.Bank != "" {
					row[i] = o.Bank
				}
			}
			continue
		}
		if f, ok := recordFields[c]; ok {
			if margin := r.margin(c); margin != nil {
				row[i] = *margin
				continue
			}
			if s := f.get(r); s != "" {
				row[i] = s
			}
		}
	}
	return row
}

func (r *Record) margin(column string) *float64 {
	switch column {
	case ColLoanTotal:
		return r.LoanTotal
	case ColLoanAvailable:
		return r.LoanAvailable
	case ColBenefitTotal:
		return r.BenefitTotal
	case ColBenefitAvailable:
		return r.BenefitAvailable
	case ColCardTotal:
		return r.CardTotal
	case ColCardAvailable:
		return r.CardAvailable
	}
	return nil
}

package offer

// Bank is an entry of the bank code catalogue.
type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Label renders the bank as shown to operators, e.g. "318 - BMG".
func (b Bank) Label() string { return b.Code + " - " + b.Name }

// Banks is the catalogue of bank codes accepted in configurations.
var Banks = []Bank{
	{"2", "MeuCashCard"},
	{"33", "Santander"},
	{"74", "Banco do Brasil"},
	{"243", "Banco Master"},
	{"318", "BMG"},
	{"335", "Banco Digio"},
	{"389", "Banco Mercantil"},
	{"422", "Banco Safra"},
	{"465", "Capital Consig"},
	{"604", "Banco Industrial"},
	{"623", "Banco PAN"},
	{"643", "Banco Pine"},
	{"654", "Banco DigiMais"},
	{"707", "Banco Daycoval"},
	{"955", "Banco Olé"},
	{"6613", "VemCard"},
}

// LookupBank finds a bank by code.
func LookupBank(code string) (Bank, bool) {
	for _, b := range Banks {
		if b.Code == code {
			return b, true
		}
	}
	return Bank{}, false
}

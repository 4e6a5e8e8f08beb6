package domain

// Table is the working set of a run: records plus the columns known to exist.
type Table struct {
	Columns []string
	Records []*Record

	present map[string]struct{}
}

// NewTable creates an empty table with the given header.
func NewTable(columns []string) *Table {
	t := &Table{present: make(map[string]struct{}, len(columns))}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// HasColumn reports whether the column exists, even if every cell is empty.
func (t *Table) HasColumn(name string) bool {
	if t.present == nil {
		t.reindex()
	}
	_, ok := t.present[name]
	return ok
}

// AddColumn registers a column. Adding an existing column is a no-op.
func (t *Table) AddColumn(name string) {
	if t.present == nil {
		t.reindex()
	}
	if _, ok := t.present[name]; ok {
		return
	}
	t.present[name] = struct{}{}
	t.Columns = append(t.Columns, name)
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := NewTable(t.Columns)
	c.Records = make([]*Record, len(t.Records))
	for i, r := range t.Records {
		c.Records[i] = r.Clone()
	}
	return c
}

// Filter keeps the records for which keep returns true and returns how many were removed.
func (t *Table) Filter(keep func(*Record) bool) int {
	kept := t.Records[:0]
	for _, r := range t.Records {
		if keep(r) {
			kept = append(kept, r)
		}
	}
	removed := len(t.Records) - len(kept)
	for i := len(kept); i < len(t.Records); i++ {
		t.Records[i] = nil
	}
	t.Records = kept
	return removed
}

// TreatedTaxIDs returns the set of non-empty tax ids already treated for p.
func (t *Table) TreatedTaxIDs(p Product) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, r := range t.Records {
		if r.Offers[p].Treated && r.TaxID != "" {
			ids[r.TaxID] = struct{}{}
		}
	}
	return ids
}

func (t *Table) reindex() {
	t.present = make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		t.present[c] = struct{}{}
	}
}

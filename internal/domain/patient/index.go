package patient

// Index row types, one per index family. Extraction lives here so a
// document schema change touches exactly one place.

// NameIndexRow denormalizes one HumanName entry.
type NameIndexRow struct {
	Family string
	Given  string
	Text   string
}

// IdentifierIndexRow denormalizes one Identifier entry.
type IdentifierIndexRow struct {
	System string
	Value  string
}

// TelecomIndexRow denormalizes one ContactPoint entry.
type TelecomIndexRow struct {
	System string
	Value  string
}

// AddressIndexRow denormalizes one Address entry.
type AddressIndexRow struct {
	City       string
	State      string
	PostalCode string
	Country    string
}

// NameRows derives the name index family from the document. Each given
// name gets its own row so a substring cannot match across two adjacent
// given names. Entries with no family, given or text value are skipped
// entirely.
func NameRows(p *Patient) []NameIndexRow {
	var rows []NameIndexRow
	for _, n := range p.Name {
		var givens []string
		for _, g := range n.Given {
			if g != "" {
				givens = append(givens, g)
			}
		}
		if n.Family == "" && n.Text == "" && len(givens) == 0 {
			continue
		}
		if len(givens) == 0 {
			rows = append(rows, NameIndexRow{Family: n.Family, Text: n.Text})
			continue
		}
		for _, g := range givens {
			rows = append(rows, NameIndexRow{Family: n.Family, Given: g, Text: n.Text})
		}
	}
	return rows
}

// IdentifierRows derives the identifier index family. Entries without a
// value are skipped.
func IdentifierRows(p *Patient) []IdentifierIndexRow {
	var rows []IdentifierIndexRow
	for _, id := range p.Identifier {
		if id.Value == "" {
			continue
		}
		rows = append(rows, IdentifierIndexRow{System: id.System, Value: id.Value})
	}
	return rows
}

// TelecomRows derives the contact-point index family. Entries without a
// value are skipped.
func TelecomRows(p *Patient) []TelecomIndexRow {
	var rows []TelecomIndexRow
	for _, t := range p.Telecom {
		if t.Value == "" {
			continue
		}
		rows = append(rows, TelecomIndexRow{System: t.System, Value: t.Value})
	}
	return rows
}

// AddressRows derives the address index family. Entries with no
// extractable component are skipped.
func AddressRows(p *Patient) []AddressIndexRow {
	var rows []AddressIndexRow
	for _, a := range p.Address {
		row := AddressIndexRow{
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
		if row.City == "" && row.State == "" && row.PostalCode == "" && row.Country == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

package models

// VehicleRecord is everything extracted from one lookup page.
//
// Attributes is open-ended: its keys are whatever labels the source page
// shows in its technical-detail table (e.g. "Marca", "Modelo", "Ano",
// "Cor", "Chassi") and they change between page revisions. Valuations and
// IpvaHistory keep the source's row order.
type VehicleRecord struct {
	Attributes  map[string]string  `json:"veiculo"`
	Valuations  []FipeValuation    `json:"fipe"`
	IpvaHistory []IpvaHistoryEntry `json:"historico_ipva"`
}

// FipeValuation is one row of the FIPE reference price table. Value keeps
// the source formatting (e.g. "R$ 45.123,00").
type FipeValuation struct {
	Code  string `json:"codigo"`
	Model string `json:"modelo"`
	Value string `json:"valor"`
}

// IpvaHistoryEntry is one year of assessed market value and the IPVA tax
// charged on it.
type IpvaHistoryEntry struct {
	Year        string `json:"ano"`
	MarketValue string `json:"valor_venal"`
	TaxValue    string `json:"valor_ipva"`
}

// NewVehicleRecord returns a record with non-nil, empty collections so it
// serializes as {} / [] instead of null.
func NewVehicleRecord() *VehicleRecord {
	return &VehicleRecord{
		Attributes:  map[string]string{},
		Valuations:  []FipeValuation{},
		IpvaHistory: []IpvaHistoryEntry{},
	}
}

// Empty reports whether no pass produced any data.
func (r *VehicleRecord) Empty() bool {
	return len(r.Attributes) == 0 && len(r.Valuations) == 0 && len(r.IpvaHistory) == 0
}

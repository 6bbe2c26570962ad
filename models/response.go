package models

// Response status values, kept in the upstream's Portuguese vocabulary so
// existing dashboards keep parsing them.
const (
	StatusSuccess = "sucesso"
	StatusError   = "erro"
)

// LookupResponse is the response for GET /consultar/{plate}.
type LookupResponse struct {
	// Plate is the normalized plate that was looked up.
	Plate string `json:"placa"`

	// Vehicle holds the technical-detail attributes, keyed by source label.
	Vehicle map[string]string `json:"veiculo"`

	// Fipe holds the FIPE valuation rows in source order.
	Fipe []FipeValuation `json:"fipe"`

	// IpvaHistory holds the yearly IPVA rows; empty when the page has no
	// history table.
	IpvaHistory []IpvaHistoryEntry `json:"historico_ipva"`

	// Status is always StatusSuccess on this type.
	Status string `json:"status"`

	// Attempts is how many pipeline attempts the lookup took.
	Attempts int `json:"tentativas,omitempty"`

	// Source records how the page was fetched: "browser" or "http".
	Source string `json:"fonte,omitempty"`
}

// NewLookupResponse builds the success body from a record.
func NewLookupResponse(plate string, rec *VehicleRecord, attempts int, source string) *LookupResponse {
	if rec == nil {
		rec = NewVehicleRecord()
	}
	return &LookupResponse{
		Plate:       plate,
		Vehicle:     rec.Attributes,
		Fipe:        rec.Valuations,
		IpvaHistory: rec.IpvaHistory,
		Status:      StatusSuccess,
		Attempts:    attempts,
		Source:      source,
	}
}

// HealthResponse is the response for GET / and GET /health.
type HealthResponse struct {
	Message string       `json:"message"`
	Status  string       `json:"status"` // "ready", "idle", "starting", "degraded" or "closed"
	Uptime  string       `json:"uptime"`
	Session SessionStats `json:"session"`
	Version string       `json:"version"`
}

// SessionStats reports the state of the browser session manager.
type SessionStats struct {
	State          string `json:"state"`
	Warm           bool   `json:"warm"`
	OpenContexts   int    `json:"open_contexts"`
	MaxContexts    int    `json:"max_contexts"`
	Launches       int64  `json:"launches"`
	LaunchFailures int64  `json:"launch_failures"`

	// ContextFailures counts browsing-context creations that failed in a
	// row. A warm engine that crashed keeps failing here until restart.
	ContextFailures int64 `json:"consecutive_context_failures"`
}

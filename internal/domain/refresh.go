package domain

// SourceRefreshResult reports one (wine, source) refresh
type SourceRefreshResult struct {
	SourceID          string         `json:"sourceId"`
	SourceName        string         `json:"sourceName"`
	CandidatesFound   int            `json:"candidatesFound"`
	CandidatesChecked int            `json:"candidatesChecked"`
	Matched           bool           `json:"matched"`
	Offer             *ExternalOffer `json:"offer,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// WineRefreshResult aggregates a refresh of one wine across sources
type WineRefreshResult struct {
	WineID  string                `json:"wineId"`
	Sources []SourceRefreshResult `json:"sources"`
	Matched int                   `json:"matched"`
	Checked int                   `json:"checked"`
	Errors  []string              `json:"errors"`
}

// BatchRefreshResult aggregates a refresh over many wines
type BatchRefreshResult struct {
	Processed int      `json:"processed"`
	Total     int      `json:"total"`
	Matched   int      `json:"matched"`
	Errors    []string `json:"errors"`
}

// CandidateTrace is the diagnostic view of one candidate URL
type CandidateTrace struct {
	URL          string           `json:"url"`
	Fetch        *FetchRecord     `json:"fetch,omitempty"`
	FromCache    bool             `json:"fromCache"`
	Offer        *NormalizedOffer `json:"offer,omitempty"`
	Match        *MatchResult     `json:"match,omitempty"`
	Accepted     bool             `json:"accepted"`
	RejectReason string           `json:"rejectReason,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// DiagnosticTrace is the full record of one diagnostic run
type DiagnosticTrace struct {
	RunID          string           `json:"runId"`
	WineID         string           `json:"wineId"`
	SourceID       string           `json:"sourceId"`
	Wine           *WineForMatch    `json:"wine,omitempty"`
	AdapterType    string           `json:"adapterType,omitempty"`
	Threshold      float64          `json:"threshold"`
	SearchRequests []FetchRecord    `json:"searchRequests"`
	Candidates     []CandidateTrace `json:"candidates"`
	Error          string           `json:"error,omitempty"`
}

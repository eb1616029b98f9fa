package protocol

// CostsResponse is the payload for GET /api/costs.
type CostsResponse struct {
	Enabled       bool            `json:"enabled"`
	Daily         BudgetWindow    `json:"daily"`
	Monthly       BudgetWindow    `json:"monthly"`
	TotalRequests int             `json:"totalRequests"`
	TopModels     []ModelCostShare `json:"topModels"`
}

// BudgetWindow reports spend against a budget for one accounting window.
type BudgetWindow struct {
	Spent    float64  `json:"spent"`
	Budget   *float64 `json:"budget,omitempty"`
	Warning  bool     `json:"warning"`
	Exceeded bool     `json:"exceeded"`
}

// ModelCostShare is one row of the top-models-by-cost breakdown.
type ModelCostShare struct {
	Model      string  `json:"model"`
	Cost       float64 `json:"cost"`
	Percentage float64 `json:"percentage"`
}

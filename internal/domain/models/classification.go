package models

// ClassificationResult is the verdict for a single message
type ClassificationResult struct {
	IsScam      bool    `json:"isScam"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// UrgencyLevel grades how much time pressure a message applies
type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
)

// ScamIndicators lists the raw signals behind a classification
type ScamIndicators struct {
	Keywords     []string     `json:"keywords"`
	Patterns     []string     `json:"patterns"`
	UrgencyLevel UrgencyLevel `json:"urgency_level"`
}

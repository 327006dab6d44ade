package detection

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

const (
	keywordWeight = 0.6
	patternWeight = 0.4

	// hits needed for a full score in each family
	keywordSaturation = 3.0
	patternSaturation = 2.0

	// DefaultThreshold is the confidence at or above which a message is a scam
	DefaultThreshold = 0.7
)

// ScamKeywords are matched by case-insensitive containment
var ScamKeywords = []string{
	// urgency
	"urgent", "immediately", "right now", "within 24 hours", "expire",
	"suspended", "blocked", "deactivated", "locked",

	// financial
	"bank account", "verify account", "update details", "confirm identity",
	"otp", "cvv", "pin", "password", "card number", "account number",
	"upi", "paytm", "phonepe", "gpay", "payment",

	// authority impersonation
	"bank manager", "customer care", "support team", "security team",
	"rbi", "income tax", "police", "government",

	// reward and threat
	"prize", "winner", "congratulations", "refund", "cashback",
	"legal action", "arrest", "penalty", "fine",

	// action requests
	"click here", "verify now", "update now", "share details",
	"send otp", "provide", "confirm", "validate",
}

// urgencyWords grade Indicators' urgency level
var urgencyWords = []string{"urgent", "immediately", "right now", "expire", "suspended", "blocked"}

// SuspiciousPatterns each count once toward the pattern score
var SuspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{10,18}\b`), // account-like digit runs
	regexp.MustCompile(`(?i)https?://(?:[a-z0-9$\-_@.&+!*(),;:/?=#~\[\]]|%[0-9a-f]{2})+`),
	regexp.MustCompile(`\b\d{4}\b`),  // OTP / PIN
	regexp.MustCompile(`@[a-zA-Z]+`), // payment handles
}

// Detector scores messages for scam intent with keyword and pattern heuristics.
// It holds no per-message state and is safe for concurrent use.
type Detector struct {
	threshold float64
	logger    *logger.Logger

	stats   Stats
	statsMu sync.RWMutex
}

// Stats counts classifications since startup
type Stats struct {
	TotalAnalyzed int64   `json:"total_analyzed"`
	ScamsDetected int64   `json:"scams_detected"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// NewDetector creates a detector. A threshold outside [0, 1] falls back to DefaultThreshold.
func NewDetector(threshold float64, log *logger.Logger) *Detector {
	if threshold < 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Detector{
		threshold: threshold,
		logger:    log.WithComponent("scam-detector"),
	}
}

// Threshold returns the decision threshold in use
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Detect classifies text. It never fails; empty text scores zero.
func (d *Detector) Detect(text string) models.ClassificationResult {
	keywordHits := len(matchKeywords(text))

	patternHits := 0
	for _, p := range SuspiciousPatterns {
		if p.MatchString(text) {
			patternHits++
		}
	}

	keywordScore := min(float64(keywordHits)/keywordSaturation, 1.0)
	patternScore := min(float64(patternHits)/patternSaturation, 1.0)
	confidence := keywordScore*keywordWeight + patternScore*patternWeight

	result := models.ClassificationResult{
		IsScam:      confidence >= d.threshold,
		Confidence:  confidence,
		Explanation: explain(keywordHits, patternHits),
	}

	d.updateStats(result)

	d.logger.Debug().
		Bool("is_scam", result.IsScam).
		Float64("confidence", confidence).
		Int("keyword_hits", keywordHits).
		Int("pattern_hits", patternHits).
		Msg("message classified")

	return result
}

// Indicators returns the raw signals found in text with an urgency grade
func (d *Detector) Indicators(text string) models.ScamIndicators {
	indicators := models.ScamIndicators{
		Keywords:     matchKeywords(text),
		Patterns:     []string{},
		UrgencyLevel: models.UrgencyLow,
	}

	for _, p := range SuspiciousPatterns {
		indicators.Patterns = append(indicators.Patterns, p.FindAllString(text, -1)...)
	}

	lower := strings.ToLower(text)
	urgency := 0
	for _, w := range urgencyWords {
		if strings.Contains(lower, w) {
			urgency++
		}
	}
	switch {
	case urgency >= 2:
		indicators.UrgencyLevel = models.UrgencyHigh
	case urgency == 1:
		indicators.UrgencyLevel = models.UrgencyMedium
	}

	return indicators
}

// GetStats returns a copy of the running statistics
func (d *Detector) GetStats() Stats {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats
}

func (d *Detector) updateStats(result models.ClassificationResult) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.stats.TotalAnalyzed++
	if result.IsScam {
		d.stats.ScamsDetected++
	}
	n := float64(d.stats.TotalAnalyzed)
	d.stats.AvgConfidence = (d.stats.AvgConfidence*(n-1) + result.Confidence) / n
}

func matchKeywords(text string) []string {
	lower := strings.ToLower(text)
	matched := []string{}
	for _, kw := range ScamKeywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func explain(keywordHits, patternHits int) string {
	var parts []string
	if keywordHits > 0 {
		parts = append(parts, fmt.Sprintf("%d scam keywords detected", keywordHits))
	}
	if patternHits > 0 {
		parts = append(parts, fmt.Sprintf("%d suspicious patterns found", patternHits))
	}
	if len(parts) == 0 {
		return "No scam indicators"
	}
	return strings.Join(parts, "; ")
}

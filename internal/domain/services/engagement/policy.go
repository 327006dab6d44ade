package engagement

import "honeypot-lab/internal/domain/models"

const (
	DefaultMaxTurns       = 20
	DefaultMinTurnsForEnd = 5
)

// Policy decides when an engagement has run its course
type Policy struct {
	// MaxTurns ends the session once this many messages were seen
	MaxTurns int
	// MinTurnsForEnd is the shortest session that may end on sufficient intelligence
	MinTurnsForEnd int
}

// DefaultPolicy returns the stock termination rules
func DefaultPolicy() Policy {
	return Policy{MaxTurns: DefaultMaxTurns, MinTurnsForEnd: DefaultMinTurnsForEnd}
}

// Evaluate returns the reason the session should end, or TerminationNone
func (p Policy) Evaluate(s *Session) models.TerminationReason {
	if s.TurnCount >= p.MaxTurns {
		return models.TerminationMaxTurns
	}
	if s.Intelligence.HasFinancialIntel() && s.TurnCount >= p.MinTurnsForEnd {
		return models.TerminationSufficientIntel
	}
	return models.TerminationNone
}

// ShouldTerminate reports whether either rule fires
func (p Policy) ShouldTerminate(s *Session) bool {
	return p.Evaluate(s) != models.TerminationNone
}

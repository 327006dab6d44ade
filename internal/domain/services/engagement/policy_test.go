package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"honeypot-lab/internal/domain/models"
)

func sessionWith(turns int, kind models.EntityKind, value string) *Session {
	s := newSession("p", time.Now())
	s.TurnCount = turns
	if value != "" {
		s.Intelligence.Add(kind, value)
	}
	return s
}

func TestPolicyEvaluate(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		session *Session
		want    models.TerminationReason
	}{
		{"fresh session", sessionWith(1, "", ""), models.TerminationNone},
		{"turn limit", sessionWith(20, "", ""), models.TerminationMaxTurns},
		{"past turn limit", sessionWith(25, "", ""), models.TerminationMaxTurns},
		{"upi but too early", sessionWith(4, models.EntityUPIID, "winner@paytm"), models.TerminationNone},
		{"upi after min turns", sessionWith(5, models.EntityUPIID, "winner@paytm"), models.TerminationSufficientIntel},
		{"bank account", sessionWith(6, models.EntityBankAccount, "123456789012"), models.TerminationSufficientIntel},
		{"phishing link", sessionWith(5, models.EntityPhishingLink, "http://x.in"), models.TerminationSufficientIntel},
		{"phone alone is not enough", sessionWith(10, models.EntityPhoneNumber, "+919876543210"), models.TerminationNone},
		{"keywords alone are not enough", sessionWith(10, models.EntitySuspiciousKeyword, "otp"), models.TerminationNone},
		{"turn limit wins over intel", sessionWith(20, models.EntityUPIID, "winner@paytm"), models.TerminationMaxTurns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Evaluate(tt.session))
			assert.Equal(t, tt.want != models.TerminationNone, p.ShouldTerminate(tt.session))
		})
	}
}

func TestPolicyCustomLimits(t *testing.T) {
	p := Policy{MaxTurns: 3, MinTurnsForEnd: 1}

	assert.Equal(t, models.TerminationSufficientIntel, p.Evaluate(sessionWith(1, models.EntityUPIID, "abc@ybl")))
	assert.Equal(t, models.TerminationMaxTurns, p.Evaluate(sessionWith(3, "", "")))
}

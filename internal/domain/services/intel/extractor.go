package intel

import (
	"regexp"
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

var (
	upiPattern   = regexp.MustCompile(`\b[a-zA-Z0-9._-]+@[a-zA-Z]+\b`)
	bankPattern  = regexp.MustCompile(`\b\d{9,18}\b`)
	phonePattern = regexp.MustCompile(`(?:\+?91[ -]?|\b0)?[6-9]\d{9}\b`)
	urlPattern   = regexp.MustCompile(`(?i)https?://(?:[a-z0-9$\-_@.&+!*(),;:/?=#~\[\]]|%[0-9a-f]{2})+`)
	emailPattern = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,}\b`)

	casePattern   = referencePattern(`case|ref|ticket`)
	policyPattern = referencePattern(`policy|pol`)
	orderPattern  = referencePattern(`order|ord`)
)

// referencePattern matches "<label> [qualifier] [separator] <value>", e.g.
// "Case ID: CASE-2024-001", "policy no. is PL88213", "Order #OD4411".
// The value is captured in group 1.
func referencePattern(labels string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?i)\b(?:` + labels + `)\b\.?` +
			`(?:\s*(?:id|no|num|number)\b\.?|\s*#)?` +
			`\s*(?:[:#-]|\bis\b)?\s*` +
			`([a-z0-9][a-z0-9-]{3,})`,
	)
}

// SuspiciousKeywords is the vocabulary tagged on the session when seen
var SuspiciousKeywords = []string{
	// urgency
	"urgent", "immediately", "expire",
	// threat
	"blocked", "suspended", "legal action", "arrest", "penalty", "police",
	// financial
	"account", "bank", "payment", "refund", "prize", "winner", "lottery", "kyc",
	// credentials
	"verify", "otp", "cvv", "pin", "password",
}

// Extractor mines structured intelligence from free text
type Extractor struct {
	validators Validators
	keywords   []string
	logger     *logger.Logger
}

// Option customizes an Extractor
type Option func(*Extractor)

// WithValidators replaces the candidate predicates. Nil fields keep the default.
func WithValidators(v Validators) Option {
	return func(e *Extractor) {
		e.validators = v.withDefaults()
	}
}

// WithKeywords replaces the suspicious keyword vocabulary
func WithKeywords(keywords []string) Option {
	return func(e *Extractor) {
		e.keywords = keywords
	}
}

// NewExtractor creates an extractor with the default heuristics
func NewExtractor(log *logger.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		validators: DefaultValidators(),
		keywords:   SuspiciousKeywords,
		logger:     log.WithComponent("entity-extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract merges every valid, not yet recorded entity found in text into acc
// and returns the result. acc is consumed: callers must use the returned value.
// Calling Extract again with the same text adds nothing.
func (e *Extractor) Extract(text string, acc models.ExtractedIntelligence) models.ExtractedIntelligence {
	out := acc.Clone()
	if strings.TrimSpace(text) == "" {
		return out
	}

	e.extractUPIIDs(text, &out)
	e.extractBankAccounts(text, &out)
	e.extractPhones(text, &out)
	e.extractURLs(text, &out)
	e.extractEmails(text, &out)
	e.extractReferences(text, casePattern, models.EntityCaseID, &out)
	e.extractReferences(text, policyPattern, models.EntityPolicyNumber, &out)
	e.extractReferences(text, orderPattern, models.EntityOrderNumber, &out)
	e.extractKeywords(text, &out)

	if added := len(out.Diff(acc)); added > 0 {
		e.logger.Debug().Int("kinds_with_new_entities", added).Msg("intelligence extracted")
	}

	return out
}

func (e *Extractor) extractUPIIDs(text string, out *models.ExtractedIntelligence) {
	for _, loc := range upiPattern.FindAllStringIndex(text, -1) {
		// "name@gmail.com" is an email, not a handle
		if isDomainContinuation(text, loc[1]) {
			continue
		}
		candidate := text[loc[0]:loc[1]]
		local, provider, ok := strings.Cut(candidate, "@")
		if !ok || !e.validators.UPI(local, provider) {
			continue
		}
		out.Add(models.EntityUPIID, candidate)
	}
}

func (e *Extractor) extractBankAccounts(text string, out *models.ExtractedIntelligence) {
	for _, candidate := range bankPattern.FindAllString(text, -1) {
		if e.validators.BankAccount(candidate) {
			out.Add(models.EntityBankAccount, candidate)
		}
	}
}

func (e *Extractor) extractPhones(text string, out *models.ExtractedIntelligence) {
	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		// a match glued to preceding digits is the tail of a longer number
		if loc[0] > 0 && isDigit(text[loc[0]-1]) {
			continue
		}
		normalized, ok := e.validators.Phone(text[loc[0]:loc[1]])
		if !ok {
			continue
		}
		out.Add(models.EntityPhoneNumber, normalized)
	}
}

func (e *Extractor) extractURLs(text string, out *models.ExtractedIntelligence) {
	for _, candidate := range urlPattern.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,;:!?)")
		out.Add(models.EntityPhishingLink, candidate)
	}
}

func (e *Extractor) extractEmails(text string, out *models.ExtractedIntelligence) {
	for _, candidate := range emailPattern.FindAllString(text, -1) {
		local, domain, _ := strings.Cut(candidate, "@")
		out.Add(models.EntityEmailAddress, local+"@"+strings.ToLower(domain))
	}
}

func (e *Extractor) extractReferences(text string, pattern *regexp.Regexp, kind models.EntityKind, out *models.ExtractedIntelligence) {
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		value := strings.TrimRight(m[1], "-")
		if !e.validators.ReferenceID(value) {
			continue
		}
		out.Add(kind, value)
	}
}

func (e *Extractor) extractKeywords(text string, out *models.ExtractedIntelligence) {
	lower := strings.ToLower(text)
	for _, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			out.Add(models.EntitySuspiciousKeyword, kw)
		}
	}
}

// isDomainContinuation reports whether text continues with a hostname
// label (".<alnum>" or "-<alnum>") at i
func isDomainContinuation(text string, i int) bool {
	if i+1 >= len(text) || (text[i] != '.' && text[i] != '-') {
		return false
	}
	return isLetter(text[i+1]) || isDigit(text[i+1])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

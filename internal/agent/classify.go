package agent

import (
	"regexp"
	"strings"

	"github.com/konecto/actuator-agent/internal/catalog"
)

// RouteKind is the outcome of classifying one message.
type RouteKind string

const (
	RoutePartNumber RouteKind = "part_number"
	RouteSemantic   RouteKind = "semantic"
	RouteClarify    RouteKind = "clarify"
)

// Route is a classification decision: which tool to run (or that the
// message is too vague to route) plus the query and the attribute filters
// in effect for this turn.
type Route struct {
	Kind RouteKind
	// Query is the normalized part number for RoutePartNumber, or the
	// possibly carried-context-enriched text for RouteSemantic.
	Query string
	// Attributes are the disambiguating attributes in effect after merging
	// this message with carried filters (message wins per key).
	Attributes map[string]string
	// Signals is the specificity score the decision was based on.
	Signals int
}

// ClassifierConfig tunes the specificity threshold below which a message
// with no carried context routes to Clarify.
type ClassifierConfig struct {
	ClarifyMinSignals int
}

// Attribute keys carried in conversation filters.
const (
	attrVoltage     = "voltage"
	attrPhase       = "phase"
	attrContextType = "context_type"
	// attrPendingPartNumber holds the base part number of an ambiguous
	// variant set awaiting the user's disambiguating attribute.
	attrPendingPartNumber = "pending_part_number"
)

var (
	voltagePattern = regexp.MustCompile(`(?i)\b(\d{2,3})\s*v(?:olts?|ac|dc)?\b`)
	torquePattern  = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*n[\x{00B7}.\-]?m\b`)
	dcPattern      = regexp.MustCompile(`(?i)\bdc\b`)

	singlePhaseWords = []string{"single phase", "single-phase", "1 phase", "1-phase"}
	threePhaseWords  = []string{"3 phase", "3-phase", "three phase", "three-phase"}

	domainWords = []string{
		"actuator", "valve", "damper", "quarter-turn", "quarter turn",
		"multi-turn", "modulating", "on-off", "on/off",
	}
	requirementWords = []string{
		"need", "looking for", "recommend", "suggest", "want",
		"find", "search", "which", "what", "torque", "duty cycle",
		"ip rating", "waterproof", "fast", "high", "small", "compact",
	}
)

// Classify is a pure function of the message and the filters carried from
// earlier turns. A detected part number always wins. Otherwise the message
// is scored for specificity: attribute mentions, domain nouns, requirement
// language. Below the threshold with no carried context the route is
// Clarify; with carried context the message is reinterpreted against it.
func Classify(message string, lastFilters map[string]string, cfg ClassifierConfig) Route {
	if pn, ok := catalog.FindPartNumber(message); ok {
		return Route{
			Kind:       RoutePartNumber,
			Query:      pn,
			Attributes: extractAttributes(message),
		}
	}

	attrs := extractAttributes(message)
	signals := len(attrs)
	lower := strings.ToLower(message)
	if containsAnyWord(lower, domainWords) {
		signals++
	}
	if containsAnyWord(lower, requirementWords) {
		signals++
	}

	minSignals := cfg.ClarifyMinSignals
	if minSignals <= 0 {
		minSignals = 2
	}

	merged := mergeAttributes(lastFilters, attrs)
	pending := merged[attrPendingPartNumber]
	delete(merged, attrPendingPartNumber)

	// An attribute-only reply to an ambiguity prompt ("single phase")
	// resolves against the pending candidate set instead of starting a
	// new search.
	if pending != "" && len(attrs) > 0 && signals < minSignals {
		return Route{
			Kind:       RoutePartNumber,
			Query:      pending,
			Attributes: merged,
			Signals:    signals,
		}
	}

	switch {
	case signals >= minSignals:
		return Route{
			Kind:       RouteSemantic,
			Query:      enrichQuery(message, attrs, merged),
			Attributes: merged,
			Signals:    signals,
		}
	case signals >= 1 && hasCarriedContext(lastFilters):
		// Elliptical follow-up ("single phase"): reinterpret against the
		// carried filters instead of asking again.
		return Route{
			Kind:       RouteSemantic,
			Query:      enrichQuery(message, attrs, merged),
			Attributes: merged,
			Signals:    signals,
		}
	default:
		return Route{Kind: RouteClarify, Attributes: merged, Signals: signals}
	}
}

// extractAttributes pulls disambiguating attributes out of free text.
// Values are canonical phrases usable both as filters and as query terms.
func extractAttributes(message string) map[string]string {
	attrs := map[string]string{}
	lower := strings.ToLower(message)

	if m := voltagePattern.FindStringSubmatch(message); m != nil {
		attrs[attrVoltage] = m[1] + "V"
	}
	switch {
	case containsAnyWord(lower, singlePhaseWords):
		attrs[attrPhase] = "single phase"
	case containsAnyWord(lower, threePhaseWords):
		attrs[attrPhase] = "3 phase"
	case dcPattern.MatchString(lower):
		attrs[attrPhase] = "DC"
	}
	if torquePattern.MatchString(message) {
		attrs["torque"] = strings.ToLower(torquePattern.FindString(message))
	}
	return attrs
}

// mergeAttributes overlays the message's attributes on the carried filters.
// A carried context_type survives only while it stays consistent with the
// merged attributes; a phase or voltage switch invalidates it.
func mergeAttributes(carried, fresh map[string]string) map[string]string {
	merged := make(map[string]string, len(carried)+len(fresh))
	for k, v := range carried {
		merged[k] = v
	}
	for k, v := range fresh {
		merged[k] = v
	}
	if ct, ok := merged[attrContextType]; ok && !contextTypeConsistent(ct, merged) {
		delete(merged, attrContextType)
	}
	return merged
}

// contextTypeConsistent reports whether a context type string (e.g.
// "220V 3 Phase Power") agrees with the given attributes.
func contextTypeConsistent(contextType string, attrs map[string]string) bool {
	lower := strings.ToLower(contextType)
	if v, ok := attrs[attrVoltage]; ok && !strings.Contains(lower, strings.ToLower(v)) {
		return false
	}
	if p, ok := attrs[attrPhase]; ok && !strings.Contains(lower, strings.ToLower(p)) {
		return false
	}
	return true
}

// enrichQuery appends carried attribute terms the message itself did not
// mention, so an elliptical follow-up searches with full context.
func enrichQuery(message string, fresh, merged map[string]string) string {
	parts := []string{strings.TrimSpace(message)}
	for _, key := range []string{attrVoltage, attrPhase} {
		if _, inMessage := fresh[key]; inMessage {
			continue
		}
		if v, carried := merged[key]; carried {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func hasCarriedContext(filters map[string]string) bool {
	return len(filters) > 0
}

func containsAnyWord(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

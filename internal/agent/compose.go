package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/konecto/actuator-agent/internal/catalog"
	"github.com/konecto/actuator-agent/internal/conversation"
	"github.com/konecto/actuator-agent/internal/tools"
)

// ComposeInput carries everything a Composer may use to phrase an answer.
type ComposeInput struct {
	Message    string
	History    []conversation.Turn
	Invocation *tools.Invocation
	MinResults int
}

// Composer turns tool results into a user-facing reply. TemplateComposer
// is deterministic; LLMComposer wraps a generative model. Numeric spec
// values must appear verbatim in either case.
type Composer interface {
	Compose(ctx context.Context, in ComposeInput) (string, error)
}

// TemplateComposer renders answers from fixed templates. It is the test
// composer and the fallback when no model provider is configured.
type TemplateComposer struct{}

func (TemplateComposer) Compose(_ context.Context, in ComposeInput) (string, error) {
	if in.Invocation == nil {
		return "", fmt.Errorf("nothing to compose")
	}
	switch in.Invocation.Tool {
	case tools.ToolPartNumberSearch:
		return composePartNumber(in.Invocation), nil
	case tools.ToolSemanticSearch:
		return composeSemantic(in.Invocation, in.MinResults), nil
	default:
		return "", fmt.Errorf("unknown tool %q", in.Invocation.Tool)
	}
}

func composePartNumber(inv *tools.Invocation) string {
	query, _ := inv.Arguments["query"].(string)
	if len(inv.Records) == 0 {
		return fmt.Sprintf("No catalog entry found for part number %s. "+
			"Check the part number or describe the actuator you need instead.", query)
	}

	var b strings.Builder
	if len(inv.Records) == 1 {
		rec := inv.Records[0].Record
		fmt.Fprintf(&b, "Part number %s - %s.\n", rec.PartNumber, rec.ContextType)
		writeSpecs(&b, rec.Specs)
		return strings.TrimRight(b.String(), "\n")
	}

	fmt.Fprintf(&b, "Found %d catalog entries matching %s:\n", len(inv.Records), query)
	for _, sr := range inv.Records {
		fmt.Fprintf(&b, "- %s (%s)\n", sr.PartNumber, sr.ContextType)
	}
	return strings.TrimRight(b.String(), "\n")
}

func composeSemantic(inv *tools.Invocation, minResults int) string {
	if len(inv.Records) == 0 {
		return "No actuators in the catalog match that description. " +
			"Try different requirements, for example torque, voltage, or phase."
	}

	var b strings.Builder
	if minResults > 0 && len(inv.Records) < minResults {
		fmt.Fprintf(&b, "Only %d close match(es) found - consider broadening the requirements:\n",
			len(inv.Records))
	} else {
		b.WriteString("Closest matches:\n")
	}
	for i, sr := range inv.Records {
		fmt.Fprintf(&b, "%d. %s - %s", i+1, sr.PartNumber, sr.ContextType)
		if line := specHighlights(sr.Specs); line != "" {
			fmt.Fprintf(&b, " (%s)", line)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// writeSpecs renders specs with the priority fields first, then the rest
// in stable key order.
func writeSpecs(b *strings.Builder, specs map[string]any) {
	if len(specs) == 0 {
		return
	}
	written := map[string]bool{}
	for _, key := range catalog.PrioritySpecKeys() {
		if v, ok := specs[key]; ok {
			fmt.Fprintf(b, "%s: %v\n", catalog.SpecLabel(key), v)
			written[key] = true
		}
	}
	rest := make([]string, 0, len(specs))
	for key := range specs {
		if !written[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		fmt.Fprintf(b, "%s: %v\n", catalog.SpecLabel(key), specs[key])
	}
}

// specHighlights renders the priority fields inline for list entries.
func specHighlights(specs map[string]any) string {
	var parts []string
	for _, key := range catalog.PrioritySpecKeys() {
		if v, ok := specs[key]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", catalog.SpecLabel(key), v))
		}
		if len(parts) == 3 {
			break
		}
	}
	return strings.Join(parts, ", ")
}

// clarifyVague asks for the detail a too-vague message is missing.
func clarifyVague() string {
	return "Could you tell me more about the actuator you need? " +
		"Supply voltage, phase (single or three), and required torque help narrow it down."
}

// clarifyAmbiguous lists the context-type variants of an ambiguous base
// part number so the user can pick one.
func clarifyAmbiguous(records []catalog.ScoredRecord) string {
	var b strings.Builder
	base := records[0].PartNumber
	if i := strings.IndexByte(base, '/'); i > 0 {
		base = base[:i]
	}
	fmt.Fprintf(&b, "Part number %s exists in %d configurations:\n", base, len(records))
	for _, sr := range records {
		fmt.Fprintf(&b, "- %s (%s)\n", sr.PartNumber, sr.ContextType)
	}
	b.WriteString("Which power supply do you need?")
	return b.String()
}

package protocol

import "strings"

// DefaultBaseInstructions is used when neither the family nor the caller provides instructions
const DefaultBaseInstructions = `You are a helpful assistant running inside a tool-enabled agent runtime.
Use the available tools when they help answer the request, keep the user informed of your plan
with update_plan for multi-step work, and finish with a concise answer.`

// ModelFamily captures per-model request shaping
type ModelFamily struct {
	Slug                       string
	Family                     string
	BaseInstructions           string
	SupportsReasoningSummaries bool
	SupportsVerbosity          bool
}

type familyRule struct {
	prefix    string
	family    string
	reasoning bool
	verbosity bool
}

// Longer prefixes first so "gpt-4.1" does not match "gpt-4o" rules and vice versa.
var familyRules = []familyRule{
	{prefix: "codex-", family: "codex", reasoning: true},
	{prefix: "gpt-5-codex", family: "gpt-5-codex", reasoning: true},
	{prefix: "gpt-5", family: "gpt-5", reasoning: true, verbosity: true},
	{prefix: "o4-mini", family: "o4-mini", reasoning: true},
	{prefix: "o3", family: "o3", reasoning: true},
	{prefix: "gpt-4.1", family: "gpt-4.1"},
	{prefix: "gpt-4o", family: "gpt-4o"},
}

// FindFamily resolves a model slug to its family. Unknown slugs get a plain family.
func FindFamily(slug string) ModelFamily {
	normalized := strings.ToLower(strings.TrimSpace(slug))
	for _, rule := range familyRules {
		if strings.HasPrefix(normalized, rule.prefix) {
			return ModelFamily{
				Slug:                       slug,
				Family:                     rule.family,
				BaseInstructions:           DefaultBaseInstructions,
				SupportsReasoningSummaries: rule.reasoning,
				SupportsVerbosity:          rule.verbosity,
			}
		}
	}
	return ModelFamily{
		Slug:             slug,
		Family:           normalized,
		BaseInstructions: DefaultBaseInstructions,
	}
}

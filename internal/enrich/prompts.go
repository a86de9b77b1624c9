package enrich

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-dash/internal/model"
)

const systemPrompt = `You are an analyst for a government-contracting sales team.
You read federal contract opportunity notices and extract structured data.
Respond with a single JSON object and nothing else. Use null for fields you
cannot determine from the notice. Never invent values.`

// maxDescriptionChars truncates very long notice bodies; the useful signal
// is almost always in the first few thousand characters.
const maxDescriptionChars = 6000

func buildPrompt(group model.FieldGroup, p *model.Prospect) (system, prompt string, err error) {
	var task string
	switch group {
	case model.FieldGroupValues:
		task = `Estimate the contract's dollar value range.
Return JSON: {"estimated_value_min": <number or null>, "estimated_value_max": <number or null>}
Dollar amounts may appear as text like "$1.5M" or "up to $250,000"; convert
them to plain numbers. If the notice gives a single figure, use it for both
bounds. If there is no usable signal, return null for both.`
	case model.FieldGroupContacts:
		task = `Extract the primary point of contact for this opportunity.
Return JSON: {"contact_name": <string or null>, "contact_email": <string or null>, "contact_title": <string or null>}
Prefer the contracting officer or contract specialist if several people are
listed.`
	case model.FieldGroupNAICS:
		task = `Determine the NAICS code that best fits this opportunity.
Return JSON: {"naics_code": <6-digit string or null>, "naics_description": <string or null>}
If the notice states a NAICS code, use it. Otherwise classify from the work
described.`
	case model.FieldGroupTitles:
		task = `Rewrite the notice title as a short, plain-English title a sales
team can scan. Keep it under 80 characters, drop solicitation numbers and
boilerplate.
Return JSON: {"enhanced_title": <string>}`
	default:
		return "", "", eris.Errorf("enrich: unknown field group %q", group)
	}

	desc := p.Description
	if len(desc) > maxDescriptionChars {
		desc = desc[:maxDescriptionChars]
	}

	var sb strings.Builder
	sb.WriteString(task)
	sb.WriteString("\n\n--- NOTICE ---\n")
	fmt.Fprintf(&sb, "Title: %s\n", p.Title)
	if p.Agency != "" {
		fmt.Fprintf(&sb, "Agency: %s\n", p.Agency)
	}
	if p.NoticeID != "" {
		fmt.Fprintf(&sb, "Notice ID: %s\n", p.NoticeID)
	}
	if p.NAICSCode != "" && group != model.FieldGroupNAICS {
		fmt.Fprintf(&sb, "NAICS: %s\n", p.NAICSCode)
	}
	if desc != "" {
		fmt.Fprintf(&sb, "Description:\n%s\n", desc)
	}

	return systemPrompt, sb.String(), nil
}

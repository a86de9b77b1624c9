package enrich

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-dash/internal/model"
)

// naicsCodePattern matches a full 6-digit NAICS code.
var naicsCodePattern = regexp.MustCompile(`^\d{6}$`)

// parseResponse converts one completion into an enrichment patch plus a flat
// field map for progress events. A response with no usable fields is an
// error: the step produced nothing worth persisting.
func parseResponse(group model.FieldGroup, raw string) (*model.EnrichmentPatch, map[string]any, error) {
	obj, err := extractJSON(raw)
	if err != nil {
		return nil, nil, err
	}

	patch := &model.EnrichmentPatch{}
	fields := map[string]any{}

	switch group {
	case model.FieldGroupValues:
		if v, ok := numberField(obj, "estimated_value_min"); ok {
			patch.EstimatedValueMin = &v
			fields["estimated_value_min"] = v
		}
		if v, ok := numberField(obj, "estimated_value_max"); ok {
			patch.EstimatedValueMax = &v
			fields["estimated_value_max"] = v
		}
	case model.FieldGroupContacts:
		if v, ok := stringField(obj, "contact_name"); ok {
			patch.ContactName = &v
			fields["contact_name"] = v
		}
		if v, ok := stringField(obj, "contact_email"); ok {
			patch.ContactEmail = &v
			fields["contact_email"] = v
		}
		if v, ok := stringField(obj, "contact_title"); ok {
			patch.ContactTitle = &v
			fields["contact_title"] = v
		}
	case model.FieldGroupNAICS:
		if v, ok := stringField(obj, "naics_code"); ok {
			if !naicsCodePattern.MatchString(v) {
				return nil, nil, eris.Errorf("enrich: invalid naics code %q", v)
			}
			patch.NAICSCode = &v
			fields["naics_code"] = v
		}
		if v, ok := stringField(obj, "naics_description"); ok {
			patch.NAICSDescription = &v
			fields["naics_description"] = v
		}
	case model.FieldGroupTitles:
		if v, ok := stringField(obj, "enhanced_title"); ok {
			patch.EnhancedTitle = &v
			fields["enhanced_title"] = v
		}
	default:
		return nil, nil, eris.Errorf("enrich: unknown field group %q", group)
	}

	if len(fields) == 0 {
		return nil, nil, eris.Errorf("enrich: %s response had no usable fields", group)
	}
	return patch, fields, nil
}

// extractJSON pulls the first JSON object out of a completion. Models wrap
// output in markdown fences or prose often enough that this cannot assume a
// clean body.
func extractJSON(raw string) (map[string]any, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, eris.Wrap(err, "enrich: completion is not a JSON object")
	}
	return obj, nil
}

func stringField(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "unknown") {
		return "", false
	}
	return s, true
}

// numberField reads a numeric field that models return either as a JSON
// number or as a dollar string like "$1.5M" or "250,000".
func numberField(obj map[string]any, key string) (float64, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n <= 0 {
			return 0, false
		}
		return n, true
	case string:
		return parseDollarAmount(n)
	default:
		return 0, false
	}
}

// dollarPattern captures the numeric part and an optional magnitude suffix.
var dollarPattern = regexp.MustCompile(`(?i)\$?\s*([\d,]+(?:\.\d+)?)\s*(k|m|b|million|billion|thousand)?`)

// parseDollarAmount converts amounts like "$1.5M", "250,000" or
// "2 million" to a float.
func parseDollarAmount(s string) (float64, bool) {
	m := dollarPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || m[1] == "" {
		return 0, false
	}

	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || num <= 0 {
		return 0, false
	}

	switch strings.ToLower(m[2]) {
	case "k", "thousand":
		num *= 1_000
	case "m", "million":
		num *= 1_000_000
	case "b", "billion":
		num *= 1_000_000_000
	}
	return num, true
}

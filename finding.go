package exflow

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Severity is the ordered severity scale shared with the scanner feed
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityLabels = [...]string{"Info", "Low", "Medium", "High", "Critical"}

// String returns the canonical label
func (s Severity) String() string {
	return severityLabels[clampSeverity(int(s))]
}

// MarshalJSON encodes the severity as its label
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts either the numeric or the label form
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

// ParseSeverity maps a number (clamped to 0..4) or a label to a Severity.
// Labels match case-insensitively by substring, most severe first.
// Anything unrecognised is Info.
func ParseSeverity(raw any) Severity {
	switch v := raw.(type) {
	case Severity:
		return Severity(clampSeverity(int(v)))
	case int:
		return Severity(clampSeverity(v))
	case int32:
		return Severity(clampSeverity(int(v)))
	case int64:
		return Severity(clampSeverity(int(v)))
	case float32:
		return severityFromFloat(float64(v))
	case float64:
		return severityFromFloat(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return severityFromFloat(f)
		}
		return severityFromLabel(v.String())
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return severityFromFloat(f)
		}
		return severityFromLabel(v)
	default:
		return SeverityInfo
	}
}

func severityFromFloat(f float64) Severity {
	if math.IsNaN(f) {
		return SeverityInfo
	}
	return Severity(clampSeverity(int(math.Round(math.Max(-1, math.Min(f, 5))))))
}

func severityFromLabel(label string) Severity {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "critical"):
		return SeverityCritical
	case strings.Contains(l, "high"):
		return SeverityHigh
	case strings.Contains(l, "medium"):
		return SeverityMedium
	case strings.Contains(l, "low"):
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func clampSeverity(v int) int {
	if v < int(SeverityInfo) {
		return int(SeverityInfo)
	}
	if v > int(SeverityCritical) {
		return int(SeverityCritical)
	}
	return v
}

// Finding is a single vulnerability instance attached to a request
type Finding struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
}

// Key identifies a finding across rescans: its ID when known, otherwise its case-folded name
func (f Finding) Key() string {
	if f.ID != "" {
		return "id:" + f.ID
	}
	return "name:" + strings.ToLower(strings.TrimSpace(f.Name))
}

// NormalizeFinding canonicalizes one element of an arbitrarily shaped findings list.
// It never fails: unknown shapes degrade to an Info finding with a synthesized name.
func NormalizeFinding(raw any) Finding {
	switch v := raw.(type) {
	case Finding:
		if v.Name == "" {
			v.Name = syntheticFindingName(v.ID)
		}
		v.Severity = Severity(clampSeverity(int(v.Severity)))
		return v
	case *Finding:
		if v == nil {
			return Finding{Name: syntheticFindingName("")}
		}
		return NormalizeFinding(*v)
	case string:
		name := strings.TrimSpace(v)
		if name == "" {
			name = "unknown"
		}
		return Finding{Name: name, Severity: SeverityInfo}
	case map[string]any:
		return normalizeFindingMap(v)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return normalizeFindingMap(m)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return Finding{Name: syntheticFindingName("")}
		}
		return NormalizeFinding(decoded)
	case nil:
		return Finding{Name: syntheticFindingName("")}
	default:
		name := strings.TrimSpace(fmt.Sprint(v))
		if name == "" {
			name = "unknown"
		}
		return Finding{Name: name, Severity: SeverityInfo}
	}
}

func normalizeFindingMap(m map[string]any) Finding {
	id := firstString(m, "id", "plugin_id")
	name := firstString(m, "name", "plugin_name")
	if name == "" {
		name = syntheticFindingName(id)
	}
	return Finding{
		ID:       id,
		Name:     name,
		Severity: ParseSeverity(m["severity"]),
	}
}

// firstString returns the first non-blank value among keys, stringifying numbers
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		default:
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func syntheticFindingName(id string) string {
	if id == "" {
		id = "unknown"
	}
	return "Vulnerability ID: " + id
}

// NormalizeFindings normalizes every element of a raw findings list
func NormalizeFindings(raw []any) []Finding {
	findings := make([]Finding, 0, len(raw))
	for _, r := range raw {
		findings = append(findings, NormalizeFinding(r))
	}
	return findings
}

// FilterActionable drops informational findings, which cannot be excepted
func FilterActionable(findings []Finding) []Finding {
	actionable := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity > SeverityInfo {
			actionable = append(actionable, f)
		}
	}
	return actionable
}

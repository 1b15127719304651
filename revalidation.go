package exflow

import (
	"fmt"
	"strings"
)

// RevalidationResult reports what a rescan did to an approved exception
type RevalidationResult struct {
	RequestID   string            `json:"requestId"`
	Voided      bool              `json:"voided"`
	Escalations []Escalation      `json:"escalations"`
	Request     *ExceptionRequest `json:"request"`
}

// DetectEscalations compares the findings an exception covers with the
// current scan. A covered finding escalates when its severity rose. An
// uncovered finding escalates when it is more severe than everything the
// exception covers. Findings are matched by ID, then by case-folded name.
func DetectEscalations(covered, current []Finding) []Escalation {
	byKey := make(map[string]Finding, len(covered)*2)
	ceiling := SeverityInfo
	for _, f := range covered {
		if f.ID != "" {
			byKey["id:"+f.ID] = f
		}
		byKey[nameKey(f.Name)] = f
		if f.Severity > ceiling {
			ceiling = f.Severity
		}
	}

	var escalations []Escalation
	for _, f := range current {
		prev, ok := lookupCovered(byKey, f)
		switch {
		case ok && f.Severity > prev.Severity:
			escalations = append(escalations, Escalation{Finding: f, PreviousSeverity: prev.Severity})
		case !ok && f.Severity > ceiling:
			escalations = append(escalations, Escalation{Finding: f, PreviousSeverity: SeverityInfo, New: true})
		}
	}
	return escalations
}

func lookupCovered(byKey map[string]Finding, f Finding) (Finding, bool) {
	if f.ID != "" {
		if prev, ok := byKey["id:"+f.ID]; ok {
			return prev, true
		}
	}
	prev, ok := byKey[nameKey(f.Name)]
	return prev, ok
}

func nameKey(name string) string {
	return "name:" + strings.ToLower(strings.TrimSpace(name))
}

// VoidReason summarizes escalations for the void marker
func VoidReason(escalations []Escalation) string {
	parts := make([]string, 0, len(escalations))
	for _, e := range escalations {
		if e.New {
			parts = append(parts, fmt.Sprintf("new %s finding '%s'", e.Finding.Severity, e.Finding.Name))
			continue
		}
		parts = append(parts, fmt.Sprintf("'%s' escalated from %s to %s", e.Finding.Name, e.PreviousSeverity, e.Finding.Severity))
	}
	return "severity escalation on rescan: " + strings.Join(parts, "; ")
}

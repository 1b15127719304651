// Package sarif turns scanner SARIF reports into findings for revalidation
package sarif

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/anggasct/exflow"
)

// Result property keys that name the scanned host
var hostKeys = []string{"host", "hostname", "server", "fqdn"}

// ReadReport loads a SARIF report from disk
func ReadReport(path string) (*sarif.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses a SARIF report
func Decode(r io.Reader) (*sarif.Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read SARIF report: %w", err)
	}

	var report sarif.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse SARIF report: %w", err)
	}
	return &report, nil
}

// RawFindings converts every unsuppressed result into the raw finding shape
// accepted by exflow.NormalizeFinding. Results without a host property are
// attributed to defaultHost.
func RawFindings(report *sarif.Report, defaultHost string) map[string][]any {
	byHost := make(map[string][]any)
	if report == nil {
		return byHost
	}

	for _, run := range report.Runs {
		rules := rulesByID(run)
		for _, res := range run.Results {
			if res == nil || len(res.Suppressions) > 0 {
				continue
			}
			ruleID := deref(res.RuleID)
			rule := rules[ruleID]

			host := strings.ToLower(firstProperty(res.Properties, hostKeys...))
			if host == "" {
				host = strings.ToLower(defaultHost)
			}

			byHost[host] = append(byHost[host], map[string]any{
				"plugin_id":   ruleID,
				"plugin_name": title(rule, res),
				"severity":    severity(rule, res).String(),
			})
		}
	}
	return byHost
}

// Findings returns the normalized findings per host, deduplicated by finding
// key and keeping the most severe occurrence
func Findings(report *sarif.Report, defaultHost string) map[string][]exflow.Finding {
	result := make(map[string][]exflow.Finding)
	for host, raw := range RawFindings(report, defaultHost) {
		result[host] = dedupe(exflow.NormalizeFindings(raw))
	}
	return result
}

// Hosts returns the hosts present in the report, sorted
func Hosts(findings map[string][]exflow.Finding) []string {
	hosts := make([]string, 0, len(findings))
	for h := range findings {
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	sort.Strings(hosts)
	return hosts
}

func dedupe(findings []exflow.Finding) []exflow.Finding {
	index := make(map[string]int, len(findings))
	out := make([]exflow.Finding, 0, len(findings))
	for _, f := range findings {
		if i, ok := index[f.Key()]; ok {
			if f.Severity > out[i].Severity {
				out[i].Severity = f.Severity
			}
			continue
		}
		index[f.Key()] = len(out)
		out = append(out, f)
	}
	return out
}

func rulesByID(run *sarif.Run) map[string]*sarif.ReportingDescriptor {
	rules := map[string]*sarif.ReportingDescriptor{}
	if run == nil || run.Tool.Driver == nil {
		return rules
	}
	for _, r := range run.Tool.Driver.Rules {
		if r != nil {
			rules[r.ID] = r
		}
	}
	return rules
}

func title(rule *sarif.ReportingDescriptor, res *sarif.Result) string {
	if rule != nil {
		if rule.ShortDescription != nil && deref(rule.ShortDescription.Text) != "" {
			return deref(rule.ShortDescription.Text)
		}
		if rule.Name != nil && *rule.Name != "" {
			return *rule.Name
		}
	}
	return deref(res.Message.Text)
}

// severity prefers a CVSS "security-severity" score on the result or rule,
// then the SARIF level. An absent level means warning.
func severity(rule *sarif.ReportingDescriptor, res *sarif.Result) exflow.Severity {
	if score, ok := cvss(res.Properties); ok {
		return severityFromCVSS(score)
	}
	if rule != nil {
		if score, ok := cvss(rule.Properties); ok {
			return severityFromCVSS(score)
		}
	}

	level := deref(res.Level)
	if level == "" && rule != nil && rule.DefaultConfiguration != nil {
		level = rule.DefaultConfiguration.Level
	}
	switch strings.ToLower(level) {
	case "error":
		return exflow.SeverityHigh
	case "note":
		return exflow.SeverityLow
	case "none":
		return exflow.SeverityInfo
	default:
		return exflow.SeverityMedium
	}
}

func severityFromCVSS(score float64) exflow.Severity {
	switch {
	case score >= 9.0:
		return exflow.SeverityCritical
	case score >= 7.0:
		return exflow.SeverityHigh
	case score >= 4.0:
		return exflow.SeverityMedium
	case score > 0:
		return exflow.SeverityLow
	default:
		return exflow.SeverityInfo
	}
}

func cvss(props map[string]interface{}) (float64, bool) {
	raw := firstProperty(props, "security-severity", "cvss", "cvss3_base_score")
	if raw == "" {
		return 0, false
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

func firstProperty(props map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := props[k]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

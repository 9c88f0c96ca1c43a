// Package workflow holds the data model, the collaborator contract and the
// state transition table shared by the orchestrator and its stages.
package workflow

import (
	"fmt"
	"strings"
	"time"
)

// SiteConfig is one configured target, read-only once loaded.
type SiteConfig struct {
	Domain      string `json:"domain" yaml:"domain" mapstructure:"domain"`
	Description string `json:"description" yaml:"description" mapstructure:"description"`
}

// ScanParameters is the process-wide scan configuration echoed into every
// session record and handed to the strategy and execution stages.
type ScanParameters struct {
	ScanType           string   `json:"scan_type" yaml:"scan_type" mapstructure:"scan_type"`
	Ports              []int    `json:"ports" yaml:"ports" mapstructure:"ports"`
	VulnerabilityTypes []string `json:"vulnerability_types" yaml:"vulnerability_types" mapstructure:"vulnerability_types"`
	Timeout            int      `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxRetries         int      `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// DefaultScanParameters returns the deployment default parameters.
func DefaultScanParameters() ScanParameters {
	return ScanParameters{
		ScanType: "comprehensive",
		Ports: []int{
			80, 443, 8080, 8443, 5432, 8000, 5433, 3306, 22, 21, 23, 445,
			1433, 1521, 1434, 5900, 9090, 9091, 9092, 9093, 9094, 9095,
			3389, 69, 25, 110, 143, 5353,
		},
		VulnerabilityTypes: []string{"sql_injection", "xss", "csrf", "rce"},
		Timeout:            30,
		MaxRetries:         3,
	}
}

func (p ScanParameters) Validate() error {
	if strings.TrimSpace(p.ScanType) == "" {
		return fmt.Errorf("scan_type is required")
	}
	if len(p.Ports) == 0 {
		return fmt.Errorf("at least one port is required")
	}
	seen := make(map[int]bool, len(p.Ports))
	for _, port := range p.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port %d out of range 1-65535", port)
		}
		if seen[port] {
			return fmt.Errorf("duplicate port %d", port)
		}
		seen[port] = true
	}
	vulns := make(map[string]bool, len(p.VulnerabilityTypes))
	for _, v := range p.VulnerabilityTypes {
		if vulns[v] {
			return fmt.Errorf("duplicate vulnerability type %q", v)
		}
		vulns[v] = true
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %d", p.Timeout)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", p.MaxRetries)
	}
	return nil
}

// Clone returns a deep copy so callers can never mutate a shared value.
func (p ScanParameters) Clone() ScanParameters {
	c := p
	c.Ports = append([]int(nil), p.Ports...)
	c.VulnerabilityTypes = append([]string(nil), p.VulnerabilityTypes...)
	return c
}

// Session is the per-target handle owned by the orchestrator for the
// lifetime of one target.
type Session struct {
	ID          string         `json:"session_id"`
	Domain      string         `json:"domain"`
	TargetIP    string         `json:"target_ip"`
	Description string         `json:"scan_description"`
	Parameters  ScanParameters `json:"scan_parameters"`
	LogPath     string         `json:"-"`
	Dir         string         `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Strategy is a scan plan. Commands are opaque to the core; Plan carries any
// free-form planning content the strategist produced.
type Strategy struct {
	Commands  []string       `json:"commands"`
	Rationale string         `json:"rationale,omitempty"`
	Plan      map[string]any `json:"plan,omitempty"`
}

func (s Strategy) Validate() error {
	if len(s.Commands) == 0 {
		return fmt.Errorf("strategy has no commands")
	}
	for i, c := range s.Commands {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("strategy command %d is blank", i)
		}
	}
	return nil
}

// ReviewVerdict is the outcome of a strategy or report review. Feedback is
// non-empty exactly when Approved is false.
type ReviewVerdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

func (v ReviewVerdict) Validate() error {
	return checkFeedback(v.Approved, v.Feedback, "approved")
}

// AssessmentVerdict judges execution output. Feedback is non-empty exactly
// when Satisfactory is false.
type AssessmentVerdict struct {
	Satisfactory bool   `json:"satisfactory"`
	Feedback     string `json:"feedback,omitempty"`
}

func (v AssessmentVerdict) Validate() error {
	return checkFeedback(v.Satisfactory, v.Feedback, "satisfactory")
}

func checkFeedback(ok bool, feedback, field string) error {
	blank := strings.TrimSpace(feedback) == ""
	if ok && !blank {
		return fmt.Errorf("feedback present although %s is true", field)
	}
	if !ok && blank {
		return fmt.Errorf("feedback missing although %s is false", field)
	}
	return nil
}

// Describe renders the scan description every stage receives.
func Describe(site SiteConfig, params ScanParameters) string {
	ports := make([]string, len(params.Ports))
	for i, p := range params.Ports {
		ports[i] = fmt.Sprint(p)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\n", site.Domain)
	fmt.Fprintf(&b, "Description: %s\n", site.Description)
	fmt.Fprintf(&b, "Scan Type: %s\n", params.ScanType)
	fmt.Fprintf(&b, "Ports to Scan: %s\n", strings.Join(ports, ", "))
	fmt.Fprintf(&b, "Vulnerability Types: %s\n", strings.Join(params.VulnerabilityTypes, ", "))
	fmt.Fprintf(&b, "Timeout: %d seconds\n", params.Timeout)
	fmt.Fprintf(&b, "Max Retries: %d\n", params.MaxRetries)
	return b.String()
}

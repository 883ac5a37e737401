// Package doctor checks that a deployment can run proctored sessions.
package doctor

import (
	"context"
	"fmt"

	"github.com/enftaurus/vidyamitra/pkg/config"
)

// Severity levels. Only critical findings make a result unhealthy.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Pinger is anything that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Targets are the dependencies to probe. Nil targets are skipped.
type Targets struct {
	Backend  Pinger
	Detector Pinger
	Store    Pinger
}

// Doctor performs deployment health checks.
type Doctor struct {
	cfg     *config.Config
	targets Targets
}

// NewDoctor creates a new doctor.
func NewDoctor(cfg *config.Config, targets Targets) *Doctor {
	return &Doctor{cfg: cfg, targets: targets}
}

// Check runs all diagnostic checks.
func (d *Doctor) Check(ctx context.Context) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	d.checkConfig(result)

	// Without the backend no round can be gated, so nothing may start.
	d.probe(ctx, result, "backend", d.targets.Backend, SeverityCritical)
	d.probe(ctx, result, "store", d.targets.Store, SeverityCritical)
	// Detector failures are silent at runtime; sessions run without
	// presence verdicts.
	d.probe(ctx, result, "detector", d.targets.Detector, SeverityError)

	return result, nil
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityCritical {
		r.Healthy = false
	}
}

func (d *Doctor) checkConfig(result *Result) {
	if err := d.cfg.Validate(); err != nil {
		result.add(Finding{Category: "config", Description: err.Error(), Severity: SeverityCritical})
		return
	}

	p := d.cfg.Proctoring
	if p.TabSwitchGap < 0 {
		result.add(Finding{
			Category:    "config",
			Description: "proctoring.tab_switch_gap is disabled: one focus change can count as two strikes",
			Severity:    SeverityWarning,
		})
	}
	if p.TerminationPolicy == config.TerminateAdvance {
		result.add(Finding{
			Category:    "config",
			Description: "termination_policy is advance: violations complete the round instead of resetting progress",
			Severity:    SeverityInfo,
		})
	}
	if d.cfg.Store.Driver == "memory" {
		result.add(Finding{
			Category:    "store",
			Description: "memory store loses round progress on restart",
			Severity:    SeverityInfo,
		})
	}
	if len(d.cfg.Webhooks) == 0 {
		result.add(Finding{
			Category:    "webhook",
			Description: "no webhooks configured: terminations are only logged",
			Severity:    SeverityInfo,
		})
	}
}

func (d *Doctor) probe(ctx context.Context, result *Result, category string, p Pinger, severity string) {
	if p == nil {
		return
	}
	if err := p.Ping(ctx); err != nil {
		result.add(Finding{
			Category:    category,
			Description: fmt.Sprintf("%s unreachable: %v", category, err),
			Severity:    severity,
		})
	}
}

package doctor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enftaurus/vidyamitra/internal/doctor"
	"github.com/enftaurus/vidyamitra/pkg/config"
	"github.com/enftaurus/vidyamitra/pkg/webhook"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func findings(r *doctor.Result, category string) []doctor.Finding {
	var out []doctor.Finding
	for _, f := range r.Findings {
		if f.Category == category {
			out = append(out, f)
		}
	}
	return out
}

func quietConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Driver = "redis"
	cfg.Webhooks = []webhook.HookConfig{{URL: "http://hooks.local", Enabled: true}}
	return cfg
}

func TestDoctor_Check_Healthy(t *testing.T) {
	doc := doctor.NewDoctor(quietConfig(), doctor.Targets{
		Backend:  pinger{},
		Detector: pinger{},
		Store:    pinger{},
	})
	result, err := doc.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Empty(t, result.Findings)
}

func TestDoctor_Check_DefaultsReportInfo(t *testing.T) {
	result, err := doctor.NewDoctor(config.Default(), doctor.Targets{}).Check(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	require.Len(t, findings(result, "store"), 1)
	require.Len(t, findings(result, "webhook"), 1)
	for _, f := range result.Findings {
		assert.Equal(t, doctor.SeverityInfo, f.Severity)
	}
}

func TestDoctor_Check_BackendDown(t *testing.T) {
	doc := doctor.NewDoctor(quietConfig(), doctor.Targets{
		Backend:  pinger{err: errors.New("connection refused")},
		Detector: pinger{},
	})
	result, err := doc.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Healthy)

	f := findings(result, "backend")
	require.Len(t, f, 1)
	assert.Equal(t, doctor.SeverityCritical, f[0].Severity)
	assert.Contains(t, f[0].Description, "connection refused")
}

func TestDoctor_Check_DetectorDownIsNotFatal(t *testing.T) {
	doc := doctor.NewDoctor(quietConfig(), doctor.Targets{
		Backend:  pinger{},
		Detector: pinger{err: errors.New("timeout")},
	})
	result, err := doc.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Healthy)

	f := findings(result, "detector")
	require.Len(t, f, 1)
	assert.Equal(t, doctor.SeverityError, f[0].Severity)
}

func TestDoctor_Check_InvalidConfig(t *testing.T) {
	cfg := quietConfig()
	cfg.Proctoring.MaxProctorWarnings = 0

	result, err := doctor.NewDoctor(cfg, doctor.Targets{}).Check(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	f := findings(result, "config")
	require.Len(t, f, 1)
	assert.Contains(t, f[0].Description, "max_proctor_warnings")
}

func TestDoctor_Check_ConfigWarnings(t *testing.T) {
	cfg := quietConfig()
	cfg.Proctoring.TabSwitchGap = -1
	cfg.Proctoring.TerminationPolicy = config.TerminateAdvance

	result, err := doctor.NewDoctor(cfg, doctor.Targets{}).Check(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Healthy)

	var severities []string
	for _, f := range findings(result, "config") {
		severities = append(severities, f.Severity)
	}
	assert.ElementsMatch(t, []string{doctor.SeverityWarning, doctor.SeverityInfo}, severities)
}

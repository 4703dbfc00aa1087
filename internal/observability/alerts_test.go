package observability

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestAuthAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "auth.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var rules alertSpec
	if err := yaml.Unmarshal(data, &rules); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}

	var authGroup *alertGroup
	for i := range rules.Groups {
		if rules.Groups[i].Name == "auth" {
			authGroup = &rules.Groups[i]
			break
		}
	}
	if authGroup == nil {
		t.Fatal("auth alert group missing")
	}

	expected := map[string]string{
		"GuardStoreUnavailable": "critical",
		"LoginFailureSpike":     "warning",
		"AuditEventsDropped":    "warning",
	}
	if len(authGroup.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(authGroup.Rules))
	}
	for _, rule := range authGroup.Rules {
		severity, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" || rule.Annotations["runbook"] == "" {
			t.Fatalf("rule %s must include summary, description and runbook annotations", rule.Alert)
		}
		if rule.Expr == "" || rule.For == "" {
			t.Fatalf("rule %s must define expr and for", rule.Alert)
		}
	}
}

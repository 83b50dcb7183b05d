package invalidation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestLoadRules(t *testing.T) {
	input := `
rules:
  - name: partner-profile
    event: "user:update"
    patterns: ["^partner:{entityId}$"]
    caches: ["partners"]
    delay: 250ms
  - name: data-reports
    events: ["data:*", "performance:update"]
    patterns: ["^report:"]
    caches: ["reports", "dashboards"]
`
	rules, err := LoadRules(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}

	want := []Rule{
		{
			Name:          "partner-profile",
			Kinds:         []EventKind{KindUserUpdate},
			CachePatterns: []string{"^partner:{entityId}$"},
			CacheNames:    []string{"partners"},
			Delay:         250 * time.Millisecond,
		},
		{
			Name:          "data-reports",
			Kinds:         []EventKind{KindDataCreate, KindDataUpdate, KindDataDelete, KindDataBulkUpdate, KindPerformanceUpdate},
			CachePatterns: []string{"^report:"},
			CacheNames:    []string{"reports", "dashboards"},
		},
	}
	if diff := cmp.Diff(want, rules, cmpopts.IgnoreFields(Rule{}, "Condition")); diff != "" {
		t.Errorf("LoadRules() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRules_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "unknown event",
			input:   "rules:\n  - name: a\n    event: user:archive\n    patterns: [x]\n    caches: [c]\n",
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "missing caches",
			input:   "rules:\n  - name: a\n    event: user:update\n    patterns: [x]\n",
			wantErr: ErrInvalidRule,
		},
		{
			name:    "bad delay",
			input:   "rules:\n  - name: a\n    event: user:update\n    patterns: [x]\n    caches: [c]\n    delay: soon\n",
			wantErr: ErrInvalidRule,
		},
		{
			name:    "bad pattern",
			input:   "rules:\n  - name: a\n    event: user:update\n    patterns: [\"(\"]\n    caches: [c]\n",
			wantErr: ErrInvalidRule,
		},
		{
			name:  "unknown field",
			input: "rules:\n  - name: a\n    evnt: user:update\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("LoadRules() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadRules() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRules_Empty(t *testing.T) {
	rules, err := LoadRules(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("LoadRules() = %d rules, want 0", len(rules))
	}
}

func TestLoadRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "rules:\n  - name: stats\n    event: \"user:*\"\n    patterns: [\".*\"]\n    caches: [userStats]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRulesFile(path)
	if err != nil {
		t.Fatalf("LoadRulesFile() error = %v", err)
	}
	if len(rules) != 1 || len(rules[0].Kinds) != 4 {
		t.Errorf("LoadRulesFile() = %+v, want one rule for all user events", rules)
	}

	if _, err := LoadRulesFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRulesFile(missing) error = nil, want error")
	}
}

package invalidation

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ruleFile is the YAML form of a rule set:
//
//	rules:
//	  - name: partner-profile
//	    event: "user:update"
//	    patterns: ["^partner:{entityId}$"]
//	    caches: ["partners"]
//	    delay: 250ms
type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Name     string   `yaml:"name"`
	Event    string   `yaml:"event"`
	Events   []string `yaml:"events"`
	Patterns []string `yaml:"patterns"`
	Caches   []string `yaml:"caches"`
	Delay    string   `yaml:"delay"`
}

// LoadRules parses a YAML rule set. Events are "domain:action" or
// "domain:*".
func LoadRules(r io.Reader) ([]Rule, error) {
	var file ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, raw := range file.Rules {
		rule, err := raw.rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// LoadRulesFile reads a YAML rule set from path.
func LoadRulesFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	rules, err := LoadRules(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

func (s ruleSpec) rule() (Rule, error) {
	events := s.Events
	if s.Event != "" {
		events = append([]string{s.Event}, events...)
	}

	var kinds []EventKind
	for _, e := range events {
		parsed, err := ParseKinds(e)
		if err != nil {
			return Rule{}, err
		}
		kinds = append(kinds, parsed...)
	}

	var delay time.Duration
	if s.Delay != "" {
		d, err := time.ParseDuration(s.Delay)
		if err != nil {
			return Rule{}, fmt.Errorf("%w %q: delay: %v", ErrInvalidRule, s.Name, err)
		}
		delay = d
	}

	rule := Rule{
		Name:          s.Name,
		Kinds:         kinds,
		CachePatterns: s.Patterns,
		CacheNames:    s.Caches,
		Delay:         delay,
	}
	if err := rule.validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

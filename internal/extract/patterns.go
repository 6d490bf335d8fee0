package extract

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iconidentify/drivestream/internal/domain"
)

//go:embed patterns.yaml
var defaultPatterns []byte

// Rule kinds.
const (
	KindRegexp = "regexp"
	KindForm   = "form"
)

// Rule is one link extraction pattern.
type Rule struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Confidence string `yaml:"confidence"`
	Pattern    string `yaml:"pattern"`
	Template   string `yaml:"template"`
	Selector   string `yaml:"selector"`

	confidence domain.Confidence
	re         *regexp.Regexp
}

// PatternSet is a versioned, ordered list of rules.
type PatternSet struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// DefaultPatterns returns the built-in pattern set.
func DefaultPatterns() (*PatternSet, error) {
	return ParsePatterns(defaultPatterns)
}

// LoadPatterns reads a pattern set from path, or the built-in set when path is empty.
func LoadPatterns(path string) (*PatternSet, error) {
	if path == "" {
		return DefaultPatterns()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}
	return ParsePatterns(data)
}

// ParsePatterns decodes and compiles a YAML pattern set.
func ParsePatterns(data []byte) (*PatternSet, error) {
	var set PatternSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}
	if len(set.Rules) == 0 {
		return nil, fmt.Errorf("pattern set %q has no rules", set.Version)
	}

	for i := range set.Rules {
		if err := set.Rules[i].compile(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, set.Rules[i].Name, err)
		}
	}
	return &set, nil
}

func (r *Rule) compile() error {
	if r.Name == "" {
		return fmt.Errorf("missing name")
	}

	confidence, err := domain.ParseConfidence(r.Confidence)
	if err != nil {
		return err
	}
	r.confidence = confidence

	r.Kind = strings.ToLower(r.Kind)
	if r.Kind == "" {
		r.Kind = KindRegexp
	}
	switch r.Kind {
	case KindRegexp:
		if r.Pattern == "" || r.Template == "" {
			return fmt.Errorf("regexp rule needs pattern and template")
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("compile pattern: %w", err)
		}
		r.re = re
	case KindForm:
		if r.Selector == "" {
			return fmt.Errorf("form rule needs a selector")
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/theus-run/theus/pkg/audit"
	"github.com/theus-run/theus/pkg/validator"
	"github.com/theus-run/theus/pkg/zones"
)

// NamespaceConfig names a top-level key and the policy registered for it.
type NamespaceConfig struct {
	Name   string `yaml:"name"`
	Policy zones.NamespacePolicy
}

// Config is the engine's full construction-time configuration: guard/CAS
// strictness, the shared audit recipe, registered namespace policies, the
// validator's static rule recipe, and pool sizing read from THEUS_* env
// vars.
type Config struct {
	StrictGuards bool
	StrictCAS    bool
	AuditRecipe  audit.Recipe
	Namespaces   []NamespaceConfig
	Processes    map[string]validator.ProcessRules
	PoolSize     int
	MaxLoops     int
}

// Default returns a Config with the same defaults AuditRecipe() and the
// engine's zero-value strictness carry.
func Default() Config {
	return Config{
		AuditRecipe: audit.DefaultRecipe(),
		PoolSize:    1,
		MaxLoops:    0,
	}
}

// yamlRuleSpec mirrors validator.RuleSpec with plain YAML-friendly types and
// the original implementation's S/A/B/C severity letters (spec.md
// SUPPLEMENTED FEATURES, original_source/theus/validator.py).
type yamlRuleSpec struct {
	Field        string  `yaml:"field"`
	Min          *float64 `yaml:"min"`
	Max          *float64 `yaml:"max"`
	Eq           any     `yaml:"eq"`
	Neq          any     `yaml:"neq"`
	MinLen       *int    `yaml:"min_len"`
	MaxLen       *int    `yaml:"max_len"`
	Regex        string  `yaml:"regex"`
	Level        string  `yaml:"level"`
	ThresholdMax *int    `yaml:"threshold_max"`
	Message      string  `yaml:"message"`
}

var severityLetters = map[string]audit.Level{
	"S": audit.Stop,
	"A": audit.Abort,
	"B": audit.Block,
	"C": audit.Count,
}

func (y yamlRuleSpec) toRuleSpec() validator.RuleSpec {
	spec := validator.RuleSpec{
		Field:        y.Field,
		Min:          y.Min,
		Max:          y.Max,
		Eq:           y.Eq,
		Neq:          y.Neq,
		MinLen:       y.MinLen,
		MaxLen:       y.MaxLen,
		Regex:        y.Regex,
		ThresholdMax: y.ThresholdMax,
		Message:      y.Message,
	}
	if lvl, ok := severityLetters[y.Level]; ok {
		spec.Level = &lvl
	}
	return spec
}

type yamlProcessRules struct {
	Inputs  []yamlRuleSpec `yaml:"inputs"`
	Outputs []yamlRuleSpec `yaml:"outputs"`
}

type yamlNamespace struct {
	Name        string `yaml:"name"`
	AllowRead   bool   `yaml:"allow_read"`
	AllowUpdate bool   `yaml:"allow_update"`
	AllowAppend bool   `yaml:"allow_append"`
	AllowDelete bool   `yaml:"allow_delete"`
}

type yamlAuditRecipe struct {
	Level          string `yaml:"level"`
	ThresholdMax   int    `yaml:"threshold_max"`
	ThresholdMin   int    `yaml:"threshold_min"`
	ResetOnSuccess bool   `yaml:"reset_on_success"`
}

type recipeFile struct {
	StrictGuards bool                        `yaml:"strict_guards"`
	StrictCAS    bool                        `yaml:"strict_cas"`
	PoolSize     int                         `yaml:"pool_size"`
	MaxLoops     int                         `yaml:"max_loops"`
	AuditRecipe  yamlAuditRecipe             `yaml:"audit_recipe"`
	Namespaces   []yamlNamespace             `yaml:"namespaces"`
	Processes    map[string]yamlProcessRules `yaml:"processes"`
}

// Load parses a recipe YAML file into a Config, then applies THEUS_POOL_SIZE
// and THEUS_MAX_LOOPS environment overrides (spec.md §6).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var raw recipeFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg := Config{
		StrictGuards: raw.StrictGuards,
		StrictCAS:    raw.StrictCAS,
		PoolSize:     raw.PoolSize,
		MaxLoops:     raw.MaxLoops,
		AuditRecipe: audit.Recipe{
			Level:          severityLetters[raw.AuditRecipe.Level],
			ThresholdMax:   raw.AuditRecipe.ThresholdMax,
			ThresholdMin:   raw.AuditRecipe.ThresholdMin,
			ResetOnSuccess: raw.AuditRecipe.ResetOnSuccess,
		},
		Processes: make(map[string]validator.ProcessRules, len(raw.Processes)),
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 1
	}

	for _, ns := range raw.Namespaces {
		cfg.Namespaces = append(cfg.Namespaces, NamespaceConfig{
			Name: ns.Name,
			Policy: zones.NamespacePolicy{
				AllowRead:   ns.AllowRead,
				AllowUpdate: ns.AllowUpdate,
				AllowAppend: ns.AllowAppend,
				AllowDelete: ns.AllowDelete,
			},
		})
	}

	for name, proc := range raw.Processes {
		rules := validator.ProcessRules{}
		for _, r := range proc.Inputs {
			rules.Inputs = append(rules.Inputs, r.toRuleSpec())
		}
		for _, r := range proc.Outputs {
			rules.Outputs = append(rules.Outputs, r.toRuleSpec())
		}
		cfg.Processes[name] = rules
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides mirrors the pack's EnvConfig pattern: environment wins
// over whatever the file or defaults set, when present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THEUS_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("THEUS_MAX_LOOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxLoops = n
		}
	}
}

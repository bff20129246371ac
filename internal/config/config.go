// Package config loads and merges the autofix configuration from (lowest to
// highest precedence) built-in defaults, a YAML config file, environment
// variables, and CLI flags. Grounded on wt/config.go's .wt.yaml loader, but
// expanded to the full spec.md Configuration shape and given a table-driven
// legacy-alias normalizer per spec.md §9 ("must be table-driven, not a
// chain of conditionals").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

// GitHub holds issue-tracker connection settings.
type GitHub struct {
	Owner         string `yaml:"owner"`
	Repo          string `yaml:"repo"`
	Token         string `yaml:"token"`
	DefaultBranch string `yaml:"defaultBranch"`
	AutoFixLabel  string `yaml:"autoFixLabel"`
	SkipLabel     string `yaml:"skipLabel"`
}

// Asana holds project-tracker connection settings.
type Asana struct {
	Token        string   `yaml:"token"`
	WorkspaceGid string   `yaml:"workspaceGid"`
	ProjectGids  []string `yaml:"projectGids"`
}

// Worktree holds workspace-pool settings.
type Worktree struct {
	BaseDir            string `yaml:"baseDir"`
	MaxConcurrent      int    `yaml:"maxConcurrent"`
	AutoCleanupMinutes int    `yaml:"autoCleanupMinutes"`
	Prefix             string `yaml:"prefix"`
}

// Checks holds verification-command settings.
type Checks struct {
	TestCommand      string        `yaml:"testCommand"`
	TypeCheckCommand string        `yaml:"typeCheckCommand"`
	LintCommand      string        `yaml:"lintCommand"`
	TestTimeout      time.Duration `yaml:"testTimeout"`
	TypeCheckTimeout time.Duration `yaml:"typeCheckTimeout"`
	LintTimeout      time.Duration `yaml:"lintTimeout"`
	MaxRetries       int           `yaml:"maxRetries"`
}

// Logging holds the ambient logging settings.
type Logging struct {
	Level    string `yaml:"level"`
	Dir      string `yaml:"dir"`
	Verbose  int    `yaml:"verbose"`
}

// Config is the deep-merged, read-only-after-load configuration record.
type Config struct {
	GitHub   GitHub   `yaml:"github"`
	Asana    Asana    `yaml:"asana"`
	Worktree Worktree `yaml:"worktree"`
	Checks   Checks   `yaml:"checks"`
	Logging  Logging  `yaml:"logging"`
}

// Defaults returns the built-in default configuration (lowest precedence).
func Defaults() Config {
	return Config{
		GitHub: GitHub{
			DefaultBranch: "main",
			AutoFixLabel:  "auto-fix",
			SkipLabel:     "no-auto-fix",
		},
		Worktree: Worktree{
			BaseDir:            ".autofix/worktrees",
			MaxConcurrent:      3,
			AutoCleanupMinutes: 60,
			Prefix:             "autofix-",
		},
		Checks: Checks{
			TestCommand:      "npm test",
			TypeCheckCommand: "npm run typecheck",
			LintCommand:      "npm run lint",
			TestTimeout:      300 * time.Second,
			TypeCheckTimeout: 120 * time.Second,
			LintTimeout:      60 * time.Second,
			MaxRetries:       3,
		},
		Logging: Logging{Level: "info", Dir: ".autofix/logs"},
	}
}

// configFileNames are searched for, in order, walking up from the CWD.
var configFileNames = []string{".auto-fix.yaml", ".auto-fix.yml", "auto-fix.yaml", "auto-fix.yml"}

// Find locates the config file starting from dir and walking upward, or
// returns "" if none exists. AUTO_FIX_CONFIG overrides the search entirely.
func Find(dir string) string {
	if p := os.Getenv("AUTO_FIX_CONFIG"); p != "" {
		return p
	}
	for {
		for _, name := range configFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load merges defaults, the config file at path (if any), and environment
// variables, in that precedence order. CLI flags are merged afterward by
// the caller, which copies its parsed flag values onto Config's exported
// fields.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Config{}, errs.New(errs.CodeConfigMissing, "config file not found: "+path, err)
			}
			return Config{}, errs.New(errs.CodeConfigInvalid, "read config file", err)
		}

		raw := map[string]any{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, errs.New(errs.CodeConfigInvalid, "parse config file", err)
		}
		raw = normalizeLegacyKeys(raw)

		normalized, err := yaml.Marshal(raw)
		if err != nil {
			return Config{}, errs.New(errs.CodeConfigInvalid, "re-marshal normalized config", err)
		}
		if err := yaml.Unmarshal(normalized, &cfg); err != nil {
			return Config{}, errs.New(errs.CodeConfigInvalid, "decode normalized config", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// aliasMove describes one legacy-key relocation: a key at fromPath[...] is
// moved to toPath[...], optionally transformed en route. Table-driven per
// spec.md §9 so new aliases are additions to this slice, not new branches.
type aliasMove struct {
	from      []string
	to        []string
	transform func(any) any
}

var legacyAliases = []aliasMove{
	{from: []string{"tokens", "github"}, to: []string{"github", "token"}},
	{from: []string{"tokens", "asana"}, to: []string{"asana", "token"}},
	{from: []string{"asana", "workspaceId"}, to: []string{"asana", "workspaceGid"}},
	{from: []string{"asana", "projectId"}, to: []string{"asana", "projectGids"}, transform: wrapInSlice},
	{from: []string{"worktree", "basePath"}, to: []string{"worktree", "baseDir"}},
	{from: []string{"worktree", "maxParallel"}, to: []string{"worktree", "maxConcurrent"}},
	{from: []string{"checks", "timeout"}, to: []string{"checks", "testTimeout"}},
}

func wrapInSlice(v any) any {
	if _, ok := v.([]any); ok {
		return v
	}
	return []any{v}
}

// normalizeLegacyKeys is a pure function: it does not mutate raw in place
// (it works on, and returns, a copy of raw's top two map levels, which is
// as deep as any alias path reaches).
func normalizeLegacyKeys(raw map[string]any) map[string]any {
	copied := make(map[string]any, len(raw))
	for k, v := range raw {
		if m, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(m))
			for ik, iv := range m {
				inner[ik] = iv
			}
			v = inner
		}
		copied[k] = v
	}
	raw = copied

	for _, mv := range legacyAliases {
		val, ok := getPath(raw, mv.from)
		if !ok {
			continue
		}
		if mv.transform != nil {
			val = mv.transform(val)
		}
		// checks.timeout fans out to all three *Timeout keys when none of
		// them is already set explicitly.
		if mv.from[0] == "checks" && mv.from[1] == "timeout" {
			for _, key := range []string{"testTimeout", "typeCheckTimeout", "lintTimeout"} {
				if _, exists := getPath(raw, []string{"checks", key}); !exists {
					setPath(raw, []string{"checks", key}, val)
				}
			}
			continue
		}
		setPath(raw, mv.to, val)
	}
	return raw
}

func getPath(raw map[string]any, path []string) (any, bool) {
	cur := any(raw)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(raw map[string]any, path []string, value any) {
	cur := raw
	for i, key := range path {
		if i == len(path)-1 {
			cur[key] = value
			return
		}
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
}

// envOverride maps one environment variable onto a Config field setter.
type envOverride struct {
	name string
	set  func(*Config, string)
}

var envOverrides = []envOverride{
	{"AUTO_FIX_GITHUB_TOKEN", func(c *Config, v string) { c.GitHub.Token = v }},
	{"GITHUB_TOKEN", func(c *Config, v string) { c.GitHub.Token = v }},
	{"AUTO_FIX_GITHUB_OWNER", func(c *Config, v string) { c.GitHub.Owner = v }},
	{"GITHUB_OWNER", func(c *Config, v string) { c.GitHub.Owner = v }},
	{"AUTO_FIX_GITHUB_REPO", func(c *Config, v string) { c.GitHub.Repo = v }},
	{"GITHUB_REPO", func(c *Config, v string) { c.GitHub.Repo = v }},
	{"AUTO_FIX_ASANA_TOKEN", func(c *Config, v string) { c.Asana.Token = v }},
	{"ASANA_TOKEN", func(c *Config, v string) { c.Asana.Token = v }},
	{"AUTO_FIX_WORKTREE_MAX_CONCURRENT", func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worktree.MaxConcurrent = n
		}
	}},
}

// applyEnvOverrides applies environment variables over cfg, in table order.
// Later entries for the same field win: AUTO_FIX_* prefixed variables are
// listed first per source, so a shorthand variable overrides its AUTO_FIX_*
// counterpart when both are set. SENTRY_DSN has no Config field and is not
// read anywhere in this module.
func applyEnvOverrides(cfg *Config) {
	for _, eo := range envOverrides {
		if v := os.Getenv(eo.name); v != "" {
			eo.set(cfg, v)
		}
	}
}

func validate(cfg Config) error {
	if cfg.Worktree.MaxConcurrent < 1 || cfg.Worktree.MaxConcurrent > 10 {
		return errs.New(errs.CodeConfigValidation, fmt.Sprintf("worktree.maxConcurrent must be in [1,10], got %d", cfg.Worktree.MaxConcurrent), nil)
	}
	return nil
}

// Package config loads and validates the declarative td configuration.
//
// The document is YAML:
//
//	user: alice
//	date_field_regex: "(?i)date"
//	iteration_field_regex: "(?i)sprint|iteration"
//	projects:
//	  - org: acme
//	    numbers: [3, 7]
//	  - user: alice
//	    numbers: all
//
// date_field_names may be given instead of date_field_regex; the names are
// compiled into an anchored alternation.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Owner types as they appear in the remote API path.
const (
	OwnerOrg  = "orgs"
	OwnerUser = "users"
)

// ProjectSource names one owner whose boards should be scanned. Either
// Numbers lists explicit project numbers, or All requests discovery of every
// open project the owner has.
type ProjectSource struct {
	OwnerType string // OwnerOrg or OwnerUser
	Owner     string
	Numbers   []int
	All       bool
}

// CacheKey is the discovery-cache key for this source.
func (p ProjectSource) CacheKey() string {
	return p.OwnerType + ":" + p.Owner
}

// Config is the parsed and validated configuration.
type Config struct {
	User           string
	DateFieldRe    *regexp.Regexp
	IterationRe    *regexp.Regexp // nil when no iteration fields are tracked
	Projects       []ProjectSource
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		User: strings.TrimSpace(v.GetString("user")),
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config: user is required")
	}

	dateRe, err := dateFieldPattern(v)
	if err != nil {
		return nil, err
	}
	cfg.DateFieldRe = dateRe

	if pat := v.GetString("iteration_field_regex"); pat != "" {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("config: invalid iteration_field_regex: %w", err)
		}
		cfg.IterationRe = re
	}

	projects, err := parseProjects(v.Get("projects"))
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("config: at least one projects entry is required")
	}
	cfg.Projects = projects

	return cfg, nil
}

// dateFieldPattern resolves date_field_regex or date_field_names into a
// compiled regexp. Explicit names win when both are present.
func dateFieldPattern(v *viper.Viper) (*regexp.Regexp, error) {
	if names := v.GetStringSlice("date_field_names"); len(names) > 0 {
		quoted := make([]string, 0, len(names))
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
		if len(quoted) == 0 {
			return nil, fmt.Errorf("config: date_field_names is empty")
		}
		return regexp.Compile("^(?:" + strings.Join(quoted, "|") + ")$")
	}

	pat := v.GetString("date_field_regex")
	if pat == "" {
		// Any field whose name mentions "date".
		pat = "(?i)date"
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("config: invalid date_field_regex: %w", err)
	}
	return re, nil
}

// parseProjects decodes the projects list. Each entry has exactly one of
// org/user plus numbers, where numbers is a list of ints or the string "all".
func parseProjects(raw any) ([]ProjectSource, error) {
	list, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("config: projects must be a list")
	}

	var out []ProjectSource
	for i, entry := range list {
		m, ok := toStringKeyMap(entry)
		if !ok {
			return nil, fmt.Errorf("config: projects[%d] must be a mapping", i)
		}

		var src ProjectSource
		if org, ok := m["org"].(string); ok && org != "" {
			src.OwnerType = OwnerOrg
			src.Owner = org
		}
		if user, ok := m["user"].(string); ok && user != "" {
			if src.Owner != "" {
				return nil, fmt.Errorf("config: projects[%d] has both org and user", i)
			}
			src.OwnerType = OwnerUser
			src.Owner = user
		}
		if src.Owner == "" {
			return nil, fmt.Errorf("config: projects[%d] needs org or user", i)
		}

		switch nums := m["numbers"].(type) {
		case nil:
			src.All = true
		case string:
			if !strings.EqualFold(nums, "all") {
				return nil, fmt.Errorf("config: projects[%d] numbers must be a list or \"all\"", i)
			}
			src.All = true
		case []any:
			for _, n := range nums {
				num, ok := toInt(n)
				if !ok || num <= 0 {
					return nil, fmt.Errorf("config: projects[%d] has invalid project number %v", i, n)
				}
				src.Numbers = append(src.Numbers, num)
			}
			if len(src.Numbers) == 0 {
				src.All = true
			}
		default:
			return nil, fmt.Errorf("config: projects[%d] numbers must be a list or \"all\"", i)
		}

		out = append(out, src)
	}
	return out, nil
}

// toStringKeyMap normalizes YAML mappings, which viper may decode with
// either string or interface keys.
func toStringKeyMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

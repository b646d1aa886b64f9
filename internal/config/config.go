// Package config reads the optional evoke.toml file at the project root.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
	"github.com/qobs-build/evoke/internal/builderr"
)

// FileName is the name of the configuration file looked up in the root.
const FileName = "evoke.toml"

var defaultProfiles = map[string]ProfileSection{
	"release": {
		OptLevel: int64(3),
	},
	"debug": {
		OptLevel: "", // no -O
		Debug:    true,
	},
}

type Config struct {
	Project ProjectSection            `toml:"project"`
	Build   BuildSection              `toml:"build"`
	Flags   FlagsSection              `toml:"flags"`
	Profile map[string]ProfileSection `toml:"profile"`
	Fetch   map[string]string         `toml:"fetch"`
}

// Default returns the configuration used when there is no evoke.toml.
func Default() *Config {
	cfg := new(Config)
	cfg.Profile = make(map[string]ProfileSection, len(defaultProfiles))
	for name, p := range defaultProfiles {
		cfg.Profile[name] = p
	}
	return cfg
}

func (c Config) Profiles() []string {
	profiles := make([]string, 0, len(c.Profile))
	for k := range c.Profile {
		profiles = append(profiles, k)
	}
	slices.Sort(profiles)
	return profiles
}

// SelectedProfile returns the profile named in [build] (or "debug") and
// whether it exists.
func (c Config) SelectedProfile(name string) (ProfileSection, bool) {
	if name == "" {
		name = c.Build.Profile
	}
	if name == "" {
		name = "debug"
	}
	p, ok := c.Profile[name]
	return p, ok
}

// ProfileSection defines the [profile.*] section
type ProfileSection struct {
	OptLevel any  `toml:"opt-level"` // integer or string
	Debug    bool `toml:"debug"`
}

// OptFlag returns the optimization level as a plain string, e.g. "3" or "s".
func (p ProfileSection) OptFlag() string {
	switch v := p.OptLevel.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	}
	return ""
}

// ProjectSection defines the [project] section
type ProjectSection struct {
	Name        string   `toml:"name"`
	SearchPaths []string `toml:"search_paths"`
	Exclude     []string `toml:"exclude"`
	Prebuild    string   `toml:"prebuild"`
}

// BuildSection defines the [build] section
type BuildSection struct {
	Jobs     int    `toml:"jobs"`
	Toolset  string `toml:"toolset"`
	Reporter string `toml:"reporter"`
	Unity    bool   `toml:"unity"`
	BuildDir string `toml:"build_dir"`
	Profile  string `toml:"profile"`
}

// FlagsSection defines the [flags(.*)] section
type FlagsSection struct {
	Compile []string          `toml:"compile"`
	Link    []string          `toml:"link"`
	Defines map[string]string `toml:"defines"`
	Links   []string          `toml:"links"`
}

// CompileFlags returns the compile flags with defines appended as -D flags,
// sorted by name.
func (f FlagsSection) CompileFlags() []string {
	out := slices.Clone(f.Compile)
	names := make([]string, 0, len(f.Defines))
	for name := range f.Defines {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if v := f.Defines[name]; v != "" {
			out = append(out, "-D"+name+"="+v)
		} else {
			out = append(out, "-D"+name)
		}
	}
	return out
}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	dstElem := dstVal.Elem()
	srcVal := reflect.ValueOf(src)

	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}

	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}

	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Map:
			if !srcField.IsNil() {
				if dstField.IsNil() {
					dstField.Set(reflect.MakeMap(dstField.Type()))
				}
				for _, key := range srcField.MapKeys() {
					dstField.SetMapIndex(key, srcField.MapIndex(key))
				}
			}
		case reflect.Bool:
			dstField.SetBool(dstField.Bool() || srcField.Bool())
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}

	return nil
}

// redecode turns a generic TOML value back into a typed one.
func redecode(data any, dst any) error {
	b, err := toml.Marshal(data)
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, dst)
}

// unmarshalSection is a helper to parse sections without conditional logic
func unmarshalSection(rawCfg map[string]any, name string, dst any) error {
	if data, ok := rawCfg[name]; ok {
		if err := redecode(data, dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}
	return nil
}

// unmarshalConditionalSection parses a section whose sub-tables may be keyed
// by a boolean expression. Matching sub-tables are merged into the base.
func unmarshalConditionalSection[T any](rawCfg map[string]any, name string, dst *T, env Env) error {
	sectionData, ok := rawCfg[name]
	if !ok {
		return nil
	}

	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok && isCondition(key, env) {
			conditionalFields[key] = subMap
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := redecode(baseFields, dst); err != nil {
			return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
		}
	}

	// evaluated in sorted order, later matches win
	expressions := make([]string, 0, len(conditionalFields))
	for expression := range conditionalFields {
		expressions = append(expressions, expression)
	}
	slices.Sort(expressions)

	for _, expression := range expressions {
		matched, err := env.eval(expression)
		if err != nil {
			return fmt.Errorf("failed to evaluate condition for [%s.%q]: %w", name, expression, err)
		}
		if !matched {
			continue
		}

		var condSection T
		if err := redecode(conditionalFields[expression], &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := merge(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

// merge handles both struct sections and map sections such as [fetch].
func merge[T any](dst *T, src T) error {
	dv := reflect.ValueOf(dst).Elem()
	if dv.Kind() != reflect.Map {
		return mergeStructs(dst, src)
	}
	sv := reflect.ValueOf(src)
	if sv.IsNil() {
		return nil
	}
	if dv.IsNil() {
		dv.Set(reflect.MakeMap(dv.Type()))
	}
	for _, key := range sv.MapKeys() {
		dv.SetMapIndex(key, sv.MapIndex(key))
	}
	return nil
}

// isCondition reports whether a table key is an expression over the
// environment rather than a regular field or map key.
func isCondition(key string, env Env) bool {
	_, err := expr.Compile(key, expr.Env(env), expr.AsBool())
	return err == nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env Env) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, matchIndexes := range matches {
		fullMatchStart := matchIndexes[0]
		fullMatchEnd := matchIndexes[1]
		expressionStart := matchIndexes[2]
		expressionEnd := matchIndexes[3]

		builder.WriteString(s[lastIndex:fullMatchStart])

		expression := strings.TrimSpace(s[expressionStart:expressionEnd])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		fmt.Fprintf(&builder, "%v", result)
		lastIndex = fullMatchEnd
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env Env) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// ParseConfig reads a configuration, evaluating {{...}} templates and
// conditional sections against env.
func ParseConfig(rdr io.Reader, env Env) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}
	if rawConfig == nil {
		rawConfig = make(map[string]any)
	}

	processedConfig, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}
	rawConfig = processedConfig.(map[string]any)

	cfg := Default()

	if err := unmarshalSection(rawConfig, "project", &cfg.Project); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "build", &cfg.Build); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "flags", &cfg.Flags, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "fetch", &cfg.Fetch, env); err != nil {
		return nil, err
	}
	var profiles map[string]ProfileSection
	if err := unmarshalConditionalSection(rawConfig, "profile", &profiles, env); err != nil {
		return nil, err
	}
	for name, p := range profiles {
		cfg.Profile[name] = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that can be rejected before scanning.
func (c *Config) Validate() error {
	if c.Build.Jobs < 0 {
		return &builderr.ConfigurationError{Field: "build.jobs", Value: c.Build.Jobs, Reason: "must be at least 1"}
	}
	if c.Build.Profile != "" {
		if _, ok := c.Profile[c.Build.Profile]; !ok {
			return &builderr.ConfigurationError{
				Field:  "build.profile",
				Value:  c.Build.Profile,
				Reason: fmt.Sprintf("unknown profile, available: %s", strings.Join(c.Profiles(), ", ")),
			}
		}
	}
	return nil
}

// ParseConfigFromFile parses a config file from a filepath. A missing file
// yields the defaults.
func ParseConfigFromFile(path string, env Env) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseConfig(bufio.NewReader(f), env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

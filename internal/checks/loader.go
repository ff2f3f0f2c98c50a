package checks

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"
)

// adversarialCheckFuncName is the symbol every plugin script must
// export, grounded directly on the teacher's equivalent
// goDefinitionFuncName convention.
const adversarialCheckFuncName = "AdversarialChecks"

// LoadDir interprets every .go file in dir and collects the Plugin each
// one exports. A missing or empty directory yields no plugins, not an
// error -- most projects extend nothing (§11).
func LoadDir(dir string) ([]Plugin, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checks: read %s: %w", dir, err)
	}

	var plugins []Plugin
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		plugin, err := loadPluginFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Path < plugins[j].Path })
	return plugins, nil
}

func loadPluginFile(path string) (Plugin, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return Plugin{}, fmt.Errorf("checks: read %s: %w", path, err)
	}
	if strings.TrimSpace(string(code)) == "" {
		return Plugin{}, fmt.Errorf("checks: %s is empty", path)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Plugin{}, fmt.Errorf("checks: load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return Plugin{}, fmt.Errorf("checks: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(adversarialCheckFuncName)
	if err != nil {
		return Plugin{}, fmt.Errorf("checks: %s must define %s(files []string) ([]map[string]any, error): %w", path, adversarialCheckFuncName, err)
	}

	return Plugin{Path: path, run: func(files []string) ([]Finding, error) {
		return invokeAdversarialCheck(fnValue, files)
	}}, nil
}

func invokeAdversarialCheck(fnValue reflect.Value, files []string) ([]Finding, error) {
	if !fnValue.IsValid() || fnValue.Kind() != reflect.Func {
		return nil, fmt.Errorf("checks: %s is not a function", adversarialCheckFuncName)
	}
	argValue := reflect.ValueOf(files)
	results := fnValue.Call([]reflect.Value{argValue})
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("checks: %s must return ([]map[string]any[, error])", adversarialCheckFuncName)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok && e != nil {
			return nil, e
		}
	}

	raw, ok := results[0].Interface().([]map[string]any)
	if !ok {
		return nil, fmt.Errorf("checks: %s must return []map[string]any", adversarialCheckFuncName)
	}
	findings := make([]Finding, 0, len(raw))
	for idx, entry := range raw {
		payload, err := yaml.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("checks: finding[%d]: %w", idx, err)
		}
		var f Finding
		if err := yaml.Unmarshal(payload, &f); err != nil {
			return nil, fmt.Errorf("checks: finding[%d]: %w", idx, err)
		}
		if f.Severity == "" {
			f.Severity = SeverityWarning
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// Package index holds the read-only shapes of the codebase-indexer output
// the core consumes: the module map, the API-contracts map, the symbol
// index, and the test map. The core never populates these files itself
// (§1 Non-goals: "it does not parse source code; it consults pre-built
// index files") -- it only loads and queries them.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ModuleEntry is one named module and the file paths that belong to it.
type ModuleEntry struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// ModuleMap is the full architecture/modules.json document.
type ModuleMap []ModuleEntry

// ContractEntry is one named API contract and the file paths that
// declare or implement it.
type ContractEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Paths       []string `json:"paths"`
}

// ContractsMap is the full architecture/api-contracts.json document.
type ContractsMap []ContractEntry

// SymbolEntry is one source file's exported symbols and the paths it
// imports, as recorded by the codebase indexer.
type SymbolEntry struct {
	Exports []string `json:"exports"`
	Imports []string `json:"imports"`
}

// SymbolIndex maps a source file path to its symbol entry.
type SymbolIndex map[string]SymbolEntry

// TestMap maps a source file path to the test files that exercise it.
type TestMap map[string][]string

// LoadModuleMap reads and decodes architecture/modules.json. A missing
// file yields an empty map, not an error -- the indexer may not have run
// yet on a brand-new project (§4.2).
func LoadModuleMap(path string) (ModuleMap, error) {
	var m ModuleMap
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadContractsMap reads and decodes architecture/api-contracts.json.
func LoadContractsMap(path string) (ContractsMap, error) {
	var m ContractsMap
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadSymbolIndex reads and decodes index/symbols.json.
func LoadSymbolIndex(path string) (SymbolIndex, error) {
	m := SymbolIndex{}
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadTestMap reads and decodes index/test-map.json.
func LoadTestMap(path string) (TestMap, error) {
	m := TestMap{}
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func loadJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("index: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("index: parse %s: %w", path, err)
	}
	return nil
}

// ModulesFor returns the module entries whose file set intersects files
// by exact path or path-prefix boundary -- never substring match, so
// "src/util.ts" must not match "src/util-new.ts" (§4.2 step 3).
func (m ModuleMap) ModulesFor(files []string) []ModuleEntry {
	var out []ModuleEntry
	for _, entry := range m {
		if intersectsByBoundary(entry.Files, files) {
			out = append(out, entry)
		}
	}
	return out
}

// ContractsFor returns contract entries whose declared paths intersect
// files under the same boundary rule (§4.2 step 4).
func (m ContractsMap) ContractsFor(files []string) []ContractEntry {
	var out []ContractEntry
	for _, entry := range m {
		if intersectsByBoundary(entry.Paths, files) {
			out = append(out, entry)
		}
	}
	return out
}

func intersectsByBoundary(candidates, files []string) bool {
	for _, c := range candidates {
		for _, f := range files {
			if pathsShareBoundary(c, f) {
				return true
			}
		}
	}
	return false
}

// pathsShareBoundary is true when a and b are the same path, or one is a
// path-prefix of the other at a "/" boundary. "src/util" does not match
// "src/util-new.ts": the byte after the shared prefix must be "/" or
// absent entirely.
func pathsShareBoundary(a, b string) bool {
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if !strings.HasPrefix(longer, shorter) {
		return false
	}
	rest := longer[len(shorter):]
	return strings.HasPrefix(rest, "/")
}

package scar

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/orchestrator/internal/workspace"
)

// Registry reads and appends scars in governance/scars.md through the
// Workspace Store. Appends also extend the active-rules table, so the
// next packet build picks the new rule up with no extra wiring (§4.7).
type Registry struct {
	Store *workspace.Store

	mu sync.Mutex
}

// New returns a Registry backed by the given store.
func New(store *workspace.Store) *Registry {
	return &Registry{Store: store}
}

// Append records a new scar. The id and timestamp are stamped if unset;
// an invalid category is rejected rather than silently coerced.
func (r *Registry) Append(s Scar) (Scar, error) {
	if !s.Category.Valid() {
		return Scar{}, fmt.Errorf("scar: unknown category %q", s.Category)
	}
	if strings.TrimSpace(s.PreventionRule) == "" {
		return Scar{}, fmt.Errorf("scar: a scar requires exactly one prevention rule")
	}
	if s.ID == "" {
		s.ID = "S-" + uuid.NewString()[:8]
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.listLocked()
	if err != nil {
		return Scar{}, err
	}
	all = append(all, s)
	if err := r.writeLocked(all); err != nil {
		return Scar{}, err
	}
	return s, nil
}

// PromoteProvisional flips every provisional scar to permanent, called
// by UNIFY (§4.8). Returns how many scars were promoted.
func (r *Registry) PromoteProvisional() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.listLocked()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for i := range all {
		if all[i].Provisional {
			all[i].Provisional = false
			promoted++
		}
	}
	if promoted == 0 {
		return 0, nil
	}
	return promoted, r.writeLocked(all)
}

// ListAll returns every scar in append order.
func (r *Registry) ListAll() ([]Scar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

// ListActiveRules returns every prevention rule, in scar append order.
// Rules are never deleted by the system (§4.7).
func (r *Registry) ListActiveRules() ([]string, error) {
	all, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	rules := make([]string, 0, len(all))
	for _, s := range all {
		rules = append(rules, s.PreventionRule)
	}
	return rules, nil
}

// ActiveRulesDigest renders the active-rules table truncated to maxLines,
// satisfying the packet builder's ScarDigestSource seam (§4.2 step 8).
// More recent rules survive truncation.
func (r *Registry) ActiveRulesDigest(maxLines int) (string, error) {
	all, err := r.ListAll()
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(all))
	for _, s := range all {
		lines = append(lines, fmt.Sprintf("[%s/%s] %s", s.ID, s.Category, s.PreventionRule))
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

// OpenCheckpointRefs returns the set of checkpoint ids declared as the
// recovery point of an open (provisional) scar; the checkpoint manager
// consults this before evicting anything (§4.6).
func (r *Registry) OpenCheckpointRefs() (map[string]bool, error) {
	all, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	refs := map[string]bool{}
	for _, s := range all {
		if s.Provisional && s.RecoveryCheckpoint != "" {
			refs[s.RecoveryCheckpoint] = true
		}
	}
	return refs, nil
}

func (r *Registry) listLocked() ([]Scar, error) {
	data, err := os.ReadFile(r.Store.ScarsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scar: read registry: %w", err)
	}
	return parseScars(data), nil
}

func (r *Registry) writeLocked(all []Scar) error {
	return r.Store.WriteScars(renderScars(all))
}

// renderScars produces the governance Markdown: the active-rules table
// first (the part workers see), then one section per scar.
func renderScars(all []Scar) []byte {
	var b bytes.Buffer
	b.WriteString("# Scars\n\n## Active Prevention Rules\n\n")
	if len(all) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, s := range all {
		fmt.Fprintf(&b, "- [%s] %s\n", s.ID, s.PreventionRule)
	}
	for _, s := range all {
		fmt.Fprintf(&b, "\n## Scar %s\n\n", s.ID)
		fmt.Fprintf(&b, "timestamp: %s\n", s.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(&b, "category: %s\n", s.Category)
		fmt.Fprintf(&b, "provisional: %t\n", s.Provisional)
		if s.RecoveryCheckpoint != "" {
			fmt.Fprintf(&b, "recovery_checkpoint: %s\n", s.RecoveryCheckpoint)
		}
		fmt.Fprintf(&b, "description: %s\n", sanitizeLine(s.Description))
		fmt.Fprintf(&b, "root_cause: %s\n", sanitizeLine(s.RootCause))
		fmt.Fprintf(&b, "resolution: %s\n", sanitizeLine(s.Resolution))
		fmt.Fprintf(&b, "prevention_rule: %s\n", sanitizeLine(s.PreventionRule))
	}
	return b.Bytes()
}

func sanitizeLine(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}

func parseScars(data []byte) []Scar {
	var all []Scar
	var current *Scar
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if id, ok := strings.CutPrefix(line, "## Scar "); ok {
			if current != nil {
				all = append(all, *current)
			}
			current = &Scar{ID: strings.TrimSpace(id)}
			continue
		}
		if current == nil {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "timestamp":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				current.Timestamp = t
			}
		case "category":
			current.Category = Category(value)
		case "provisional":
			current.Provisional = value == "true"
		case "recovery_checkpoint":
			current.RecoveryCheckpoint = value
		case "description":
			current.Description = value
		case "root_cause":
			current.RootCause = value
		case "resolution":
			current.Resolution = value
		case "prevention_rule":
			current.PreventionRule = value
		}
	}
	if current != nil {
		all = append(all, *current)
	}
	return all
}

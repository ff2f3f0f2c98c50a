package verify

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFlowSpecs reads the phase's flow specifications from the
// browser-automation section. A missing file means the plan promised
// browser validation without flows, which is its own gap; callers get
// an empty slice and decide.
func LoadFlowSpecs(path string) ([]FlowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("verify: read flow specs: %w", err)
	}
	var flows []FlowSpec
	if err := json.Unmarshal(data, &flows); err != nil {
		return nil, fmt.Errorf("verify: parse flow specs: %w", err)
	}
	for i, flow := range flows {
		if flow.Name == "" {
			return nil, fmt.Errorf("verify: flow %d has no name", i)
		}
		if flow.URL == "" {
			return nil, fmt.Errorf("verify: flow %s has no url", flow.Name)
		}
	}
	return flows, nil
}

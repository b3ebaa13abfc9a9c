// Package agentcfg loads per-agent configuration from agents/*.json
// (spec.md §6), decoded with github.com/bytedance/sonic the way the
// teacher's OKX client decodes its own wire payloads
// (internal/modules/okx_client/service/place_single_algo.go).
package agentcfg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"perpctl/internal/models"
)

// record mirrors one agents/*.json file's shape; FinalWeight on
// models.Agent is derived, not stored, so it is intentionally absent here.
type record struct {
	AgentID               string         `json:"agent_id"`
	Symbol                string         `json:"symbol"`
	StyleTag              string         `json:"style_tag"`
	BaseWeight            float64        `json:"base_weight"`
	PerformanceMultiplier float64        `json:"performance_multiplier"`
	Config                map[string]any `json:"config"`
}

// LoadDir decodes every *.json file directly under dir into a models.Agent,
// keyed by AgentID. A missing performance_multiplier defaults to 1.0 so a
// freshly authored agent file doesn't need to spell out the neutral value.
func LoadDir(dir string) (map[string]models.Agent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("agentcfg: read %s: %w", dir, err)
	}

	agents := make(map[string]models.Agent)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("agentcfg: read %s: %w", path, err)
		}

		var r record
		if err := sonic.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("agentcfg: decode %s: %w", path, err)
		}
		if r.AgentID == "" {
			return nil, fmt.Errorf("agentcfg: %s missing agent_id", path)
		}
		if r.PerformanceMultiplier == 0 {
			r.PerformanceMultiplier = 1.0
		}

		agents[r.AgentID] = models.Agent{
			AgentID:               r.AgentID,
			Symbol:                r.Symbol,
			StyleTag:              r.StyleTag,
			BaseWeight:            r.BaseWeight,
			PerformanceMultiplier: r.PerformanceMultiplier,
			Config:                r.Config,
		}
	}
	return agents, nil
}

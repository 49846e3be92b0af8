package ai

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/benvon/mentra/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultPromptID is used when a request names no template.
const DefaultPromptID = "reflection_v1"

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptStore holds prompt templates keyed by id. It is read-only after
// construction and safe for concurrent use.
type PromptStore struct {
	prompts map[string]models.PromptTemplate
}

// LoadPrompts parses a YAML document mapping ids to templates.
func LoadPrompts(data []byte) (*PromptStore, error) {
	raw := map[string]models.PromptTemplate{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing prompt templates: %w", err)
	}
	for id, p := range raw {
		if p.Template == "" {
			return nil, fmt.Errorf("prompt %q has no template", id)
		}
		p.ID = id
		raw[id] = p
	}
	return &PromptStore{prompts: raw}, nil
}

// DefaultPrompts returns the templates compiled into the binary.
func DefaultPrompts() (*PromptStore, error) {
	return LoadPrompts(defaultPromptsYAML)
}

// Get returns the template with id.
func (s *PromptStore) Get(id string) (models.PromptTemplate, bool) {
	p, ok := s.prompts[id]
	return p, ok
}

// IDs returns all template ids in sorted order.
func (s *PromptStore) IDs() []string {
	ids := make([]string, 0, len(s.prompts))
	for id := range s.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

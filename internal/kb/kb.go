package kb

import (
	"embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"pathway/internal/domain"
)

//go:embed catalog.yaml
var catalogFS embed.FS

const (
	minThreshold = 0
	maxThreshold = 5
)

// ConfigurationError marks an internally inconsistent knowledge base. It is
// fatal at load time; the engine must never run against a base that failed
// validation.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "knowledge base configuration: " + e.Reason
}

// KnowledgeBase is the immutable visa catalog plus its transition graph.
// It is populated once at load and only read afterwards, so concurrent
// use from multiple recommendation requests needs no locking.
type KnowledgeBase struct {
	nodes    map[string]domain.VisaNode
	ordered  []string
	outgoing map[string][]domain.TransitionEdge
}

type catalogFile struct {
	Visas []struct {
		ID           string         `yaml:"id"`
		Name         string         `yaml:"name"`
		Code         string         `yaml:"code"`
		Requirements map[string]int `yaml:"requirements"`
		Months       int            `yaml:"typical_duration_months"`
		GoalTags     []string       `yaml:"goal_tags"`
	} `yaml:"visas"`
	Transitions []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"transitions"`
}

// FromYAML builds and validates a KnowledgeBase from raw catalog YAML.
func FromYAML(data []byte) (*KnowledgeBase, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	kb := &KnowledgeBase{
		nodes:    map[string]domain.VisaNode{},
		outgoing: map[string][]domain.TransitionEdge{},
	}
	for _, v := range file.Visas {
		if v.ID == "" {
			return nil, &ConfigurationError{Reason: "visa with empty id"}
		}
		if _, exists := kb.nodes[v.ID]; exists {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("duplicate visa id %s", v.ID)}
		}
		reqs := map[domain.Dimension]int{}
		for dim, threshold := range v.Requirements {
			if threshold < minThreshold || threshold > maxThreshold {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("visa %s threshold %s=%d outside [%d,%d]", v.ID, dim, threshold, minThreshold, maxThreshold)}
			}
			reqs[domain.Dimension(dim)] = threshold
		}
		kb.nodes[v.ID] = domain.VisaNode{
			ID:                    v.ID,
			Name:                  v.Name,
			Code:                  v.Code,
			Requirements:          reqs,
			TypicalDurationMonths: v.Months,
			GoalTags:              v.GoalTags,
		}
		kb.ordered = append(kb.ordered, v.ID)
	}
	for _, t := range file.Transitions {
		if t.From != domain.EntryStateID {
			if _, ok := kb.nodes[t.From]; !ok {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("transition references unknown visa %s", t.From)}
			}
		}
		if _, ok := kb.nodes[t.To]; !ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("transition references unknown visa %s", t.To)}
		}
		edge := domain.TransitionEdge{From: t.From, To: t.To}
		kb.outgoing[t.From] = append(kb.outgoing[t.From], edge)
	}
	return kb, nil
}

// FromFile reads a catalog from disk.
func FromFile(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default loads the embedded US visa catalog.
func Default() (*KnowledgeBase, error) {
	data, err := catalogFS.ReadFile("catalog.yaml")
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Node looks up a visa node by id.
func (kb *KnowledgeBase) Node(id string) (domain.VisaNode, bool) {
	n, ok := kb.nodes[id]
	return n, ok
}

// Outgoing returns the permitted transitions out of a node, in catalog order.
// The entry state id "none" is a valid argument.
func (kb *KnowledgeBase) Outgoing(id string) []domain.TransitionEdge {
	return kb.outgoing[id]
}

// Nodes returns every visa node in catalog order.
func (kb *KnowledgeBase) Nodes() []domain.VisaNode {
	res := make([]domain.VisaNode, 0, len(kb.ordered))
	for _, id := range kb.ordered {
		res = append(res, kb.nodes[id])
	}
	return res
}

// HasEdge reports whether the transition from -> to exists.
func (kb *KnowledgeBase) HasEdge(from, to string) bool {
	for _, e := range kb.outgoing[from] {
		if e.To == to {
			return true
		}
	}
	return false
}

// GoalTags returns the distinct goal tags present in the catalog, sorted.
func (kb *KnowledgeBase) GoalTags() []string {
	seen := map[string]bool{}
	for _, n := range kb.nodes {
		for _, tag := range n.GoalTags {
			seen[tag] = true
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

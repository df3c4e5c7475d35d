package kb

import (
	"errors"
	"reflect"
	"testing"

	"pathway/internal/domain"
)

func TestDefaultCatalogLoads(t *testing.T) {
	base, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	nodes := base.Nodes()
	if len(nodes) == 0 {
		t.Fatalf("empty catalog")
	}
	// Every node must be reachable as a transition source or target, and the
	// entry state must have at least one outgoing edge.
	if len(base.Outgoing(domain.EntryStateID)) == 0 {
		t.Fatalf("entry state has no outgoing transitions")
	}
	for _, n := range nodes {
		if n.Name == "" || n.Code == "" {
			t.Fatalf("visa %s missing name or code", n.ID)
		}
	}
}

func TestFromYAMLRejectsDuplicateID(t *testing.T) {
	_, err := FromYAML([]byte(`visas:
  - {id: a, name: A, code: A}
  - {id: a, name: B, code: B}
`))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestFromYAMLRejectsBadThreshold(t *testing.T) {
	_, err := FromYAML([]byte(`visas:
  - {id: a, name: A, code: A, requirements: {education: 6}}
`))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestFromYAMLRejectsDanglingTransition(t *testing.T) {
	_, err := FromYAML([]byte(`visas:
  - {id: a, name: A, code: A}
transitions:
  - {from: a, to: missing}
`))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestFromYAMLAllowsEntryStateSource(t *testing.T) {
	base, err := FromYAML([]byte(`visas:
  - {id: a, name: A, code: A}
transitions:
  - {from: none, to: a}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !base.HasEdge(domain.EntryStateID, "a") {
		t.Fatalf("missing none -> a edge")
	}
}

func TestNodesPreserveCatalogOrder(t *testing.T) {
	base, err := FromYAML([]byte(`visas:
  - {id: c, name: C, code: C}
  - {id: a, name: A, code: A}
  - {id: b, name: B, code: B}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var ids []string
	for _, n := range base.Nodes() {
		ids = append(ids, n.ID)
	}
	if !reflect.DeepEqual(ids, []string{"c", "a", "b"}) {
		t.Fatalf("order %v, want catalog order", ids)
	}
}

func TestGoalTagsSorted(t *testing.T) {
	base, err := FromYAML([]byte(`visas:
  - {id: a, name: A, code: A, goal_tags: [work, study]}
  - {id: b, name: B, code: B, goal_tags: [investment, work]}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"investment", "study", "work"}
	if got := base.GoalTags(); !reflect.DeepEqual(got, want) {
		t.Fatalf("goal tags %v, want %v", got, want)
	}
}

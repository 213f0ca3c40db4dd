package topology

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"flowcore/pkg/buffer"
)

// Kind identifies which of the three component shapes a Node is.
type Kind int

const (
	KindSource Kind = iota
	KindTransform
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindTransform:
		return "transform"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// BufferSpec configures the buffer sitting on a non-source node's inbound
// edge, per SPEC_FULL.md §4.4.2.
type BufferSpec struct {
	Disk         bool
	MaxEvents    int
	MaxSizeBytes uint64
	Policy       buffer.OverflowPolicy
	DiskDir      string // required when Disk is true

	// DirPerm/FilePerm override the disk buffer's directory/data-file
	// permissions; zero means let buffer.DiskConfig apply its own defaults
	// (0755/0644).
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

// Instance is whatever Build returned: a Source, Sink, FunctionTransform,
// or TaskTransform, discriminated by the Node's Kind. The controller type
// -asserts it against the contract interfaces in contract.go.
type Instance interface{}

// Node is one component definition in the graph, as resolved from config
// (see internal/config).
type Node struct {
	Key      ComponentKey
	Kind     Kind
	Inputs   []string // "component_id" or "component_id.output_name"
	Produces DataType
	Accepts  DataType // DataAny if the node accepts every type
	Buffer   BufferSpec
	Build    func() (Instance, error)
}

// inputRef splits an Inputs entry into its component id and, if present,
// named output.
type inputRef struct {
	id     string
	output string
}

func parseInputRef(s string) inputRef {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return inputRef{id: s[:i], output: s[i+1:]}
	}
	return inputRef{id: s}
}

// Graph is a validated component DAG, ready to be started by a Controller.
type Graph struct {
	Nodes []Node
	byID  map[string]*Node
	order []string // dependency order: sinks depend on nothing computed here; Start() derives spawn order itself
}

// ErrValidation reports every rule violation found, per §4.4.1's "any
// violation -> graph rejected".
type ErrValidation struct {
	Problems []string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("topology: invalid graph: %s", strings.Join(e.Problems, "; "))
}

// Build validates nodes per SPEC_FULL.md §4.4.1 and returns a ready Graph.
func Build(nodes []Node) (*Graph, error) {
	var problems []string
	byID := make(map[string]*Node, len(nodes))

	for i := range nodes {
		n := &nodes[i]
		if n.Key.ID == "" {
			problems = append(problems, "component with empty id")
			continue
		}
		if _, dup := byID[n.Key.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate component id %q", n.Key.ID))
			continue
		}
		byID[n.Key.ID] = n
	}

	hasSink := false
	for i := range nodes {
		n := &nodes[i]
		if n.Kind == KindSource && len(n.Inputs) > 0 {
			problems = append(problems, fmt.Sprintf("source %q must not declare inputs", n.Key.ID))
		}
		if n.Kind != KindSource && len(n.Inputs) == 0 {
			problems = append(problems, fmt.Sprintf("%s %q has no inputs", n.Kind, n.Key.ID))
		}
		if n.Kind == KindSink {
			hasSink = true
		}
		for _, in := range n.Inputs {
			ref := parseInputRef(in)
			up, ok := byID[ref.id]
			if !ok {
				problems = append(problems, fmt.Sprintf("%q references undefined input %q", n.Key.ID, in))
				continue
			}
			if up.Kind == KindSink {
				problems = append(problems, fmt.Sprintf("%q cannot read from sink %q", n.Key.ID, ref.id))
			}
			if !typeCompatible(up.Produces, n.Accepts) {
				problems = append(problems, fmt.Sprintf("%q (accepts %v) is incompatible with upstream %q (produces %v)", n.Key.ID, n.Accepts, ref.id, up.Produces))
			}
		}
	}

	if !hasSink {
		// Per §4.4.1: a sinkless graph is a no-op — a warning, not a
		// rejection, unless the caller opted into --require-healthy-style
		// strictness, which is the caller's decision (see Controller),
		// not the graph builder's.
	}

	if order, cycleErr := topoSort(byID); cycleErr != nil {
		problems = append(problems, cycleErr.Error())
	} else if len(problems) == 0 {
		return &Graph{Nodes: nodes, byID: byID, order: order}, nil
	}

	if len(problems) > 0 {
		return nil, &ErrValidation{Problems: problems}
	}
	return &Graph{Nodes: nodes, byID: byID}, nil
}

func typeCompatible(produces, accepts DataType) bool {
	if accepts == DataAny || produces == DataAny {
		return true
	}
	return produces == accepts
}

// topoSort returns component ids in dependency order (upstream before
// downstream) via Kahn's algorithm, or an error naming a cycle.
func topoSort(byID map[string]*Node) ([]string, error) {
	indegree := make(map[string]int, len(byID))
	dependents := make(map[string][]string, len(byID))
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic tie-break

	for _, id := range ids {
		n := byID[id]
		for _, in := range n.Inputs {
			ref := parseInputRef(in)
			if _, ok := byID[ref.id]; !ok {
				continue // already reported by Build
			}
			indegree[id]++
			dependents[ref.id] = append(dependents[ref.id], id)
		}
	}

	var queue []string
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		next := append([]string(nil), dependents[id]...)
		sort.Strings(next)
		for _, d := range next {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
				sort.Strings(queue)
			}
		}
	}

	if len(out) != len(byID) {
		var stuck []string
		for _, id := range ids {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("cycle detected among: %s", strings.Join(stuck, ", "))
	}
	return out, nil
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// DependencyOrder returns component ids upstream-first (sources before the
// transforms/sinks that read them). Start() spawns in the reverse of this
// order, per §4.4.4 ("sinks first, then transforms, then sources").
func (g *Graph) DependencyOrder() []string {
	return g.order
}

package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceNode(id string) Node {
	return Node{Key: ComponentKey{ID: id}, Kind: KindSource, Produces: DataLogs}
}

func transformNode(id string, inputs ...string) Node {
	return Node{Key: ComponentKey{ID: id}, Kind: KindTransform, Inputs: inputs, Accepts: DataLogs, Produces: DataLogs}
}

func sinkNode(id string, inputs ...string) Node {
	return Node{Key: ComponentKey{ID: id}, Kind: KindSink, Inputs: inputs, Accepts: DataLogs}
}

func TestBuildAcceptsValidLinearGraph(t *testing.T) {
	nodes := []Node{
		sourceNode("in"),
		transformNode("parse", "in"),
		sinkNode("out", "parse"),
	}
	g, err := Build(nodes)
	require.NoError(t, err)
	require.Len(t, g.DependencyOrder(), 3)
	assert.Equal(t, []string{"in", "out", "parse"}, sortedCopy(g.DependencyOrder()))
}

func TestBuildRejectsUndefinedInput(t *testing.T) {
	nodes := []Node{
		sinkNode("out", "missing"),
	}
	_, err := Build(nodes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined input")
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	nodes := []Node{
		sourceNode("in"),
		sourceNode("in"),
	}
	_, err := Build(nodes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate component id")
}

func TestBuildRejectsCycle(t *testing.T) {
	nodes := []Node{
		transformNode("a", "b"),
		transformNode("b", "a"),
	}
	_, err := Build(nodes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestBuildRejectsSourceWithInputs(t *testing.T) {
	n := sourceNode("in")
	n.Inputs = []string{"other"}
	_, err := Build([]Node{n, sourceNode("other")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not declare inputs")
}

func TestBuildRejectsReadingFromSink(t *testing.T) {
	nodes := []Node{
		sourceNode("in"),
		sinkNode("terminal", "in"),
		transformNode("bad", "terminal"),
	}
	_, err := Build(nodes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read from sink")
}

func TestBuildRejectsTypeMismatch(t *testing.T) {
	src := sourceNode("in")
	src.Produces = DataMetrics
	sink := sinkNode("out", "in")
	sink.Accepts = DataLogs
	_, err := Build([]Node{src, sink})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible")
}

func TestBuildAllowsAnyTypeWildcard(t *testing.T) {
	src := sourceNode("in")
	src.Produces = DataMetrics
	sink := sinkNode("out", "in")
	sink.Accepts = DataAny
	_, err := Build([]Node{src, sink})
	require.NoError(t, err)
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

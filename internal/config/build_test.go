package config

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"flowcore/internal/topology"
)

func TestBuildNodesWiresDemoToBlackhole(t *testing.T) {
	doc := &Document{
		DataDir: t.TempDir(),
		Sources: map[string]rawComponent{
			"in": {"type": "demo", "count": 3},
		},
		Sinks: map[string]rawComponent{
			"out": {"type": "blackhole", "inputs": []interface{}{"in"}},
		},
	}

	nodes, err := BuildNodes(doc, logrus.StandardLogger())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	g, err := topology.Build(nodes)
	require.NoError(t, err)
	require.NotNil(t, g)
}

func TestBuildNodesWiresEveryDedicatedTransformType(t *testing.T) {
	for _, transformType := range []string{
		"dedupe", "timestamp_limit", "redact",
		"incremental_to_absolute", "absolute_to_incremental",
		"tag_cardinality_limit",
	} {
		doc := &Document{
			DataDir: t.TempDir(),
			Sources: map[string]rawComponent{
				"in": {"type": "demo", "count": 1},
			},
			Transforms: map[string]rawComponent{
				"t": {"type": transformType, "inputs": []interface{}{"in"}},
			},
			Sinks: map[string]rawComponent{
				"out": {"type": "blackhole", "inputs": []interface{}{"t"}},
			},
		}

		nodes, err := BuildNodes(doc, logrus.StandardLogger())
		require.NoError(t, err, "transform type %q", transformType)
		require.Len(t, nodes, 3, "transform type %q", transformType)

		g, err := topology.Build(nodes)
		require.NoError(t, err, "transform type %q", transformType)
		require.NotNil(t, g)
	}
}

func TestBuildNodesWiresDLQWhenSinkConfiguresIt(t *testing.T) {
	doc := &Document{
		DataDir: t.TempDir(),
		Sources: map[string]rawComponent{
			"in": {"type": "demo", "count": 1},
		},
		Sinks: map[string]rawComponent{
			"out": {
				"type":   "blackhole",
				"inputs": []interface{}{"in"},
				"dlq":    map[interface{}]interface{}{"enabled": true},
			},
		},
	}

	nodes, err := BuildNodes(doc, logrus.StandardLogger())
	require.NoError(t, err)

	g, err := topology.Build(nodes)
	require.NoError(t, err)
	require.NotNil(t, g)
}

func TestBuildNodesRejectsUnknownTransformType(t *testing.T) {
	doc := &Document{
		Sources:    map[string]rawComponent{"in": {"type": "demo"}},
		Transforms: map[string]rawComponent{"t": {"type": "bogus", "inputs": []interface{}{"in"}}},
	}
	_, err := BuildNodes(doc, logrus.StandardLogger())
	require.Error(t, err)
}

func TestBuildNodesRejectsUnknownSourceType(t *testing.T) {
	doc := &Document{
		Sources: map[string]rawComponent{"in": {"type": "bogus"}},
	}
	_, err := BuildNodes(doc, logrus.StandardLogger())
	require.Error(t, err)
}

func TestBuildNodesRejectsUnknownSinkType(t *testing.T) {
	doc := &Document{
		Sinks: map[string]rawComponent{"out": {"type": "bogus", "inputs": []interface{}{"in"}}},
	}
	_, err := BuildNodes(doc, logrus.StandardLogger())
	require.Error(t, err)
}

func TestParseBufferSpecDefaultsToMemory(t *testing.T) {
	spec := parseBufferSpec(Raw{}, "/data", "x")
	require.False(t, spec.Disk)
	require.Equal(t, 500, spec.MaxEvents)
}

func TestParseBufferSpecHonorsDiskType(t *testing.T) {
	raw := Raw{"buffer": map[interface{}]interface{}{"type": "disk", "max_events": 100}}
	spec := parseBufferSpec(raw, "/data", "x")
	require.True(t, spec.Disk)
	require.Equal(t, 100, spec.MaxEvents)
	require.Contains(t, spec.DiskDir, "x")
}

func TestParseBufferSpecHonorsExplicitFileModes(t *testing.T) {
	raw := Raw{"buffer": map[interface{}]interface{}{
		"type": "disk", "dir_mode": "0750", "file_mode": "0640",
	}}
	spec := parseBufferSpec(raw, "/data", "x")
	require.Equal(t, os.FileMode(0o750), spec.DirPerm)
	require.Equal(t, os.FileMode(0o640), spec.FilePerm)
}

func TestParseFileModeRejectsNonOctal(t *testing.T) {
	_, err := parseFileMode("not-a-mode")
	require.Error(t, err)
}

// Package config loads flowcore's topology configuration: a YAML document
// (or directory of documents, merged deterministically) describing global
// settings plus sources/transforms/sinks per SPEC_FULL.md §6.1.
//
// Grounded on internal/config/config.go's LoadConfig/loadConfigFile
// layered-defaults-then-env-overrides approach, generalized from a single
// fixed-shape types.Config struct plus one optional pipeline file onto N
// merged documents feeding internal/topology.Build.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"flowcore/pkg/tracing"
)

// Raw is a generic YAML-decoded map, used for component-specific fields
// that vary per source/sink/transform kind.
type Raw map[string]interface{}

// ComponentDoc is one entry under sources/transforms/sinks.
type ComponentDoc struct {
	Type   string
	Inputs []string
	Raw    Raw
}

// APIDoc configures the admin HTTP surface (§6.6's /healthz, /metrics,
// /topology).
type APIDoc struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// AcknowledgementsDoc toggles end-to-end delivery acknowledgement per
// spec.md §4.3.
type AcknowledgementsDoc struct {
	Enabled bool `yaml:"enabled"`
}

// ProcessDoc configures process-level lifecycle behavior per SPEC_FULL.md
// §6.7: signal handling and the shutdown grace period. The grace period is
// kept as its raw duration string (rather than time.Duration, which
// gopkg.in/yaml.v2 cannot decode from a "30s"-style scalar) and parsed by
// GracePeriod, in the same spirit as build.go's rawDuration helper for
// component fields.
type ProcessDoc struct {
	ShutdownGracePeriod string `yaml:"shutdown_grace_period"`
	// WatchConfigFile, if true, reloads the topology automatically when
	// configPath's contents change, in addition to the always-on SIGHUP
	// trigger.
	WatchConfigFile bool `yaml:"watch_config_file"`
}

// GracePeriod parses ShutdownGracePeriod, falling back to def on an empty
// or malformed value.
func (p ProcessDoc) GracePeriod(def time.Duration) time.Duration {
	if d, err := time.ParseDuration(p.ShutdownGracePeriod); err == nil {
		return d
	}
	return def
}

// Document is the parsed, not-yet-merged shape of one YAML file.
type Document struct {
	DataDir          string                      `yaml:"data_dir"`
	API              APIDoc                      `yaml:"api"`
	Acknowledgements AcknowledgementsDoc         `yaml:"acknowledgements"`
	Process          ProcessDoc                  `yaml:"process"`
	Tracing          tracing.TracingConfig       `yaml:"tracing"`
	Sources          map[string]rawComponent     `yaml:"sources"`
	Transforms       map[string]rawComponent     `yaml:"transforms"`
	Sinks            map[string]rawComponent     `yaml:"sinks"`
}

// rawComponent captures a component entry generically: "type" and "inputs"
// are pulled out for graph wiring, everything else stays in the raw map for
// the component-specific builder to interpret.
type rawComponent map[string]interface{}

func (c rawComponent) asComponentDoc() ComponentDoc {
	d := ComponentDoc{Raw: Raw(c)}
	if t, ok := c["type"].(string); ok {
		d.Type = t
	}
	if ins, ok := c["inputs"]; ok {
		d.Inputs = toStringSlice(ins)
	}
	return d
}

func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vv
	default:
		return nil
	}
}

// Load reads path, which may be a single YAML file or a directory. A
// directory is walked recursively and every *.yml/*.yaml file is merged in
// deterministic (sorted, full-path) order, later files overriding earlier
// ones per spec.md §6.1: later-loaded keys override earlier, arrays append.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(p))
			if ext == ".yml" || ext == ".yaml" {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("config: walk %s: %w", path, err)
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	merged := Raw{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", f, err)
		}
		var part Raw
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", f, err)
		}
		merged = mergeRaw(merged, part)
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("config: re-marshal merged document: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("config: decode merged document: %w", err)
	}
	applyDefaults(&doc)
	applyEnvOverrides(&doc)
	return &doc, nil
}

// applyDefaults fills in zero-valued fields the teacher's applyDefaults
// (internal/config/config.go, now superseded) set on types.Config, adapted
// to the smaller set Document carries.
func applyDefaults(d *Document) {
	if d.DataDir == "" {
		d.DataDir = "/var/lib/flowcore"
	}
	if d.Process.ShutdownGracePeriod == "" {
		d.Process.ShutdownGracePeriod = "30s"
	}
	if d.Tracing.ServiceName == "" {
		d.Tracing.ServiceName = "flowcore"
	}
}

// mergeRaw deep-merges override into base: maps merge key by key
// recursively, slices append, any other type is replaced outright. base is
// mutated and returned.
func mergeRaw(base, override Raw) Raw {
	if base == nil {
		base = Raw{}
	}
	for k, v := range override {
		existing, ok := base[k]
		if !ok {
			base[k] = v
			continue
		}
		switch ov := v.(type) {
		case map[interface{}]interface{}:
			base[k] = mergeRaw(toRaw(existing), toRaw(ov))
		case []interface{}:
			if ev, ok := existing.([]interface{}); ok {
				base[k] = append(ev, ov...)
			} else {
				base[k] = ov
			}
		default:
			base[k] = v
		}
	}
	return base
}

func toRaw(v interface{}) Raw {
	switch vv := v.(type) {
	case Raw:
		return vv
	case map[interface{}]interface{}:
		out := Raw{}
		for k, val := range vv {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out
	case map[string]interface{}:
		return Raw(vv)
	default:
		return Raw{}
	}
}

// Sources returns the document's source entries as ComponentDocs.
func (d *Document) sourceDocs() map[string]ComponentDoc {
	return componentDocs(d.Sources)
}

func (d *Document) transformDocs() map[string]ComponentDoc {
	return componentDocs(d.Transforms)
}

func (d *Document) sinkDocs() map[string]ComponentDoc {
	return componentDocs(d.Sinks)
}

func componentDocs(m map[string]rawComponent) map[string]ComponentDoc {
	out := make(map[string]ComponentDoc, len(m))
	for id, c := range m {
		out[id] = c.asComponentDoc()
	}
	return out
}

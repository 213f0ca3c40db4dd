package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"flowcore/internal/sinkpipeline"
	"flowcore/internal/sinks/blackhole"
	"flowcore/internal/sinks/httpsink"
	"flowcore/internal/sinks/kafka"
	"flowcore/internal/sinks/localfile"
	"flowcore/internal/sources/demo"
	"flowcore/internal/sources/docker"
	"flowcore/internal/sources/file"
	"flowcore/internal/topology"
	"flowcore/internal/tracing"
	"flowcore/internal/transforms"
	"flowcore/pkg/buffer"
	"flowcore/pkg/dlq"
	"flowcore/pkg/event"
)

// BuildNodes translates a parsed Document into the topology.Node list
// internal/topology.Build consumes, constructing each component's concrete
// Source/Sink/Transform from its "type" field. Grounded on the teacher's
// cmd/main.go wiring of concrete sink/monitor types from types.Config
// fields, generalized into a type-string-keyed factory per SPEC_FULL.md's
// component contract.
func BuildNodes(d *Document, logger *logrus.Logger) ([]topology.Node, error) {
	return BuildNodesTraced(d, logger, nil)
}

// BuildNodesTraced is BuildNodes with an optional *tracing.Tracer: when
// non-nil, each sink's dispatch is bracketed with a "sink.dispatch" span
// per SPEC_FULL.md §6.6.
func BuildNodesTraced(d *Document, logger *logrus.Logger, tracer *tracing.Tracer) ([]topology.Node, error) {
	var nodes []topology.Node

	for id, c := range d.sourceDocs() {
		n, err := buildSourceNode(id, c, d, logger)
		if err != nil {
			return nil, fmt.Errorf("config: source %q: %w", id, err)
		}
		nodes = append(nodes, n)
	}
	for id, c := range d.transformDocs() {
		n, err := buildTransformNode(id, c, logger)
		if err != nil {
			return nil, fmt.Errorf("config: transform %q: %w", id, err)
		}
		nodes = append(nodes, n)
	}
	for id, c := range d.sinkDocs() {
		n, err := buildSinkNode(id, c, d, logger, tracer)
		if err != nil {
			return nil, fmt.Errorf("config: sink %q: %w", id, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func rawString(r Raw, key, def string) string {
	if v, ok := r[key].(string); ok && v != "" {
		return v
	}
	return def
}

func rawBool(r Raw, key string, def bool) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return def
}

func rawInt(r Raw, key string, def int) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

func rawStringSlice(r Raw, key string) []string {
	return toStringSlice(r[key])
}

func rawDuration(r Raw, key string, def time.Duration) time.Duration {
	if s, ok := r[key].(string); ok && s != "" {
		if dur, err := time.ParseDuration(s); err == nil {
			return dur
		}
	}
	return def
}

func parseBufferSpec(r Raw, dataDir, id string) topology.BufferSpec {
	bufRaw := toRaw(r["buffer"])
	spec := topology.BufferSpec{MaxEvents: 500}
	if rawString(bufRaw, "type", "memory") == "disk" {
		spec.Disk = true
		spec.DiskDir = filepath.Join(dataDir, "buffers", id)
	}
	if me := rawInt(bufRaw, "max_events", 0); me > 0 {
		spec.MaxEvents = me
	}
	if ms := rawInt(bufRaw, "max_size", 0); ms > 0 {
		spec.MaxSizeBytes = uint64(ms)
	}
	if rawString(bufRaw, "when_full", "block") == "drop_newest" {
		spec.Policy = buffer.DropNewest
	}
	if m, err := parseFileMode(rawString(bufRaw, "dir_mode", "")); err == nil {
		spec.DirPerm = m
	}
	if m, err := parseFileMode(rawString(bufRaw, "file_mode", "")); err == nil {
		spec.FilePerm = m
	}
	return spec
}

// parseFileMode parses an octal file mode string ("0755") into an
// os.FileMode. Adapted from the teacher's internal/app/utils.go helper of
// the same name, used here for the disk buffer's optional dir_mode/
// file_mode config keys rather than position/log file permissions.
func parseFileMode(modeStr string) (os.FileMode, error) {
	if len(modeStr) > 0 && modeStr[0] == '0' {
		var mode uint32
		if n, err := fmt.Sscanf(modeStr, "%o", &mode); err == nil && n == 1 {
			return os.FileMode(mode), nil
		}
	}
	return 0, fmt.Errorf("invalid file mode: %s", modeStr)
}

func parseBatchConfig(r Raw) sinkpipeline.BatchConfig {
	batchRaw := toRaw(r["batch"])
	return sinkpipeline.BatchConfig{
		MaxEvents: rawInt(batchRaw, "max_events", 500),
		MaxBytes:  rawInt(batchRaw, "max_bytes", 0),
		Timeout:   rawDuration(batchRaw, "timeout", 1*time.Second),
	}
}

func parseServiceConfig(r Raw, id string, d *Document, logger *logrus.Logger, tracer *tracing.Tracer) sinkpipeline.ServiceConfig {
	reqRaw := toRaw(r["request"])
	cfg := sinkpipeline.ServiceConfig{
		Concurrency: rawInt(reqRaw, "concurrency", 8),
		Timeout:     rawDuration(reqRaw, "timeout_secs", 30*time.Second),
		SinkName:    id,
	}
	if tracer != nil {
		cfg.Trace = tracer.DispatchHook(id)
	}
	if dlqRaw := toRaw(r["dlq"]); rawBool(dlqRaw, "enabled", false) {
		cfg.DLQ = buildDLQ(dlqRaw, id, d, logger)
	}
	return cfg
}

// buildDLQ constructs and starts a dead-letter queue for one sink, per
// SPEC_FULL.md §4.7.6: events whose dispatch resolves as Rejected or
// Errored after exhausting retries are persisted under data_dir/dlq/<id>
// instead of just finalized as failed.
func buildDLQ(r Raw, id string, d *Document, logger *logrus.Logger) *dlq.DeadLetterQueue {
	q := dlq.NewDeadLetterQueue(dlq.Config{
		Enabled:       true,
		Directory:     rawString(r, "directory", filepath.Join(d.DataDir, "dlq", id)),
		QueueSize:     rawInt(r, "queue_size", 1000),
		MaxFiles:      rawInt(r, "max_files", 10),
		MaxFileSize:   int64(rawInt(r, "max_file_size_mb", 100)),
		RetentionDays: rawInt(r, "retention_days", 7),
		FlushInterval: rawDuration(r, "flush_interval", 5*time.Second),
	}, logger)
	if err := q.Start(); err != nil {
		logger.WithError(err).WithField("sink", id).Warn("config: dead letter queue did not start")
	}
	return q
}

func buildSourceNode(id string, c ComponentDoc, d *Document, logger *logrus.Logger) (topology.Node, error) {
	n := topology.Node{
		Key:      id,
		Kind:     topology.KindSource,
		Produces: topology.DataLogs,
		Buffer:   parseBufferSpec(c.Raw, d.DataDir, id),
	}

	switch c.Type {
	case "demo":
		cfg := demo.Config{
			Interval: rawDuration(c.Raw, "interval", time.Second),
			Count:    rawInt(c.Raw, "count", 0),
			Message:  rawString(c.Raw, "message", ""),
		}
		n.Build = func() (topology.Instance, error) { return demo.New(cfg), nil }

	case "file":
		cfg := file.Config{
			Paths:         rawStringSlice(c.Raw, "paths"),
			PositionsDir:  filepath.Join(d.DataDir, "positions", id),
			FlushInterval: rawDuration(c.Raw, "flush_interval", 5*time.Second),
			Acknowledge:   d.Acknowledgements.Enabled,
			Logger:        logger,
		}
		n.Build = func() (topology.Instance, error) { return file.New(cfg), nil }

	case "docker":
		cfg := docker.Config{
			LabelFilter:  rawString(c.Raw, "label_filter", ""),
			DrainDuration: rawDuration(c.Raw, "drain_duration", 2*time.Second),
			Logger:       logger,
		}
		n.Build = func() (topology.Instance, error) { return docker.New(cfg) }

	default:
		return topology.Node{}, fmt.Errorf("unknown source type %q", c.Type)
	}
	return n, nil
}

func buildTransformNode(id string, c ComponentDoc, logger *logrus.Logger) (topology.Node, error) {
	n := topology.Node{
		Key:      id,
		Kind:     topology.KindTransform,
		Inputs:   c.Inputs,
		Accepts:  topology.DataAny,
		Produces: topology.DataAny,
	}

	switch c.Type {
	case "passthrough", "":
		n.Build = func() (topology.Instance, error) { return passthroughTransform{}, nil }

	case "dedupe":
		cfg := transforms.DedupeConfig{
			MaxCacheSize:     rawInt(c.Raw, "max_cache_size", 0),
			TTLSeconds:       rawInt(c.Raw, "ttl_seconds", 0),
			IncludeTimestamp: rawBool(c.Raw, "include_timestamp", false),
			IncludeSourceID:  rawBool(c.Raw, "include_source_id", true),
			Logger:           logger,
		}
		n.Build = func() (topology.Instance, error) { return transforms.NewDedupe(cfg), nil }

	case "timestamp_limit":
		action := transforms.ActionClamp
		switch rawString(c.Raw, "action", "clamp") {
		case "reject":
			action = transforms.ActionReject
		case "warn":
			action = transforms.ActionWarn
		}
		cfg := transforms.TimestampLimitConfig{
			MaxPastAge:   rawDuration(c.Raw, "max_past_age", 6*time.Hour),
			MaxFutureAge: rawDuration(c.Raw, "max_future_age", time.Minute),
			Action:       action,
			Logger:       logger,
		}
		n.Build = func() (topology.Instance, error) { return transforms.NewTimestampLimit(cfg), nil }

	case "redact":
		cfg := transforms.RedactConfig{
			RedactEmails:      rawBool(c.Raw, "redact_emails", false),
			RedactIPs:         rawBool(c.Raw, "redact_ips", false),
			RedactCreditCards: rawBool(c.Raw, "redact_credit_cards", true),
		}
		n.Build = func() (topology.Instance, error) { return transforms.NewRedact(cfg), nil }

	case "incremental_to_absolute":
		bounds := transforms.NormalizeBounds{
			MaxEvents: rawInt(c.Raw, "max_series", 0),
			MaxBytes:  rawInt(c.Raw, "max_bytes", 0),
			TTL:       rawInt(c.Raw, "ttl_seconds", 0),
		}
		n.Build = func() (topology.Instance, error) { return transforms.NewToAbsolute(bounds), nil }

	case "absolute_to_incremental":
		bounds := transforms.NormalizeBounds{
			MaxEvents: rawInt(c.Raw, "max_series", 0),
			MaxBytes:  rawInt(c.Raw, "max_bytes", 0),
			TTL:       rawInt(c.Raw, "ttl_seconds", 0),
		}
		n.Build = func() (topology.Instance, error) { return transforms.NewToIncremental(bounds), nil }

	case "tag_cardinality_limit":
		cfg := transforms.CardinalityLimitConfig{
			Probabilistic: rawString(c.Raw, "mode", "exact") == "probabilistic",
			MaxValues:     rawInt(c.Raw, "value_limit", 0),
			DropEvent:     rawString(c.Raw, "action", "drop_tag") == "drop_event",
			Logger:        logger,
		}
		n.Build = func() (topology.Instance, error) { return transforms.NewCardinalityLimit(cfg), nil }

	default:
		return topology.Node{}, fmt.Errorf("unknown transform type %q", c.Type)
	}
	return n, nil
}

// passthroughTransform is the identity FunctionTransform, used for
// transform kinds not yet backed by a dedicated implementation and for
// simple relabel-free pipelines that only need graph wiring.
type passthroughTransform struct{}

func (passthroughTransform) Transform(e event.Event, out *topology.OutputBuffer) {
	out.Emit(e)
}

var _ topology.FunctionTransform = passthroughTransform{}

func buildSinkNode(id string, c ComponentDoc, d *Document, logger *logrus.Logger, tracer *tracing.Tracer) (topology.Node, error) {
	n := topology.Node{
		Key:     id,
		Kind:    topology.KindSink,
		Inputs:  c.Inputs,
		Accepts: topology.DataAny,
		Buffer:  parseBufferSpec(c.Raw, d.DataDir, id),
	}

	batch := parseBatchConfig(c.Raw)
	service := parseServiceConfig(c.Raw, id, d, logger, tracer)

	switch c.Type {
	case "blackhole":
		n.Build = func() (topology.Instance, error) {
			return blackhole.New(blackhole.Config{Batch: batch}), nil
		}

	case "local_file":
		cfg := localfile.Config{
			Dir:              rawString(c.Raw, "directory", filepath.Join(d.DataDir, "sinks", id)),
			MaxSizeBytes:     int64(rawInt(c.Raw, "max_size_bytes", 0)),
			CompressOnRotate: rawBool(c.Raw, "compress_on_rotate", false),
			Batch:            batch,
			Logger:           logger,
		}
		n.Build = func() (topology.Instance, error) { return localfile.New(cfg) }

	case "http":
		cfg := httpsink.Config{
			URL:      rawString(c.Raw, "url", ""),
			TenantID: rawString(c.Raw, "tenant_id", ""),
			Batch:    batch,
			Service:  service,
			Logger:   logger,
		}
		if auth := toRaw(c.Raw["auth"]); len(auth) > 0 {
			cfg.Auth = httpsink.Auth{
				Type:     httpsink.AuthType(rawString(auth, "type", "")),
				Username: rawString(auth, "username", ""),
				Password: resolveSecret(rawString(auth, "password", ""), logger),
				Token:    resolveSecret(rawString(auth, "token", ""), logger),
			}
		}
		n.Build = func() (topology.Instance, error) { return httpsink.New(cfg) }

	case "kafka":
		var acks sarama.RequiredAcks
		switch rawInt(c.Raw, "required_acks", 1) {
		case 0:
			acks = sarama.NoResponse
		case -1:
			acks = sarama.WaitForAll
		default:
			acks = sarama.WaitForLocal
		}
		cfg := kafka.Config{
			Brokers:      rawStringSlice(c.Raw, "brokers"),
			Topic:        rawString(c.Raw, "topic", ""),
			RequiredAcks: acks,
			Compression:  kafka.Compression(rawString(c.Raw, "compression", "none")),
			Partitioning: kafka.PartitionStrategy(rawString(c.Raw, "partitioner", "hash")),
			Batch:        batch,
			Service:      service,
			Logger:       logger,
		}
		if auth := toRaw(c.Raw["auth"]); rawBool(auth, "enabled", false) {
			cfg.Auth = kafka.Auth{
				Enabled:   true,
				Username:  rawString(auth, "username", ""),
				Password:  resolveSecret(rawString(auth, "password", ""), logger),
				Mechanism: kafka.SASLMechanism(rawString(auth, "mechanism", "PLAIN")),
			}
		}
		if tls := toRaw(c.Raw["tls"]); rawBool(tls, "enabled", false) {
			cfg.TLS = kafka.TLSConfig{Enabled: true}
		}
		n.Build = func() (topology.Instance, error) { return kafka.New(cfg) }

	default:
		return topology.Node{}, fmt.Errorf("unknown sink type %q", c.Type)
	}
	return n, nil
}

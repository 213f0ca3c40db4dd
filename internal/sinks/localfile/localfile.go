// Package localfile implements a local-disk sink: each partition key maps
// to a rotating file under a root directory, matching the teacher's rotate-
// by-size/gzip-on-rotate shape.
//
// Grounded on internal/sinks/local_file_sink.go's per-file size tracking and
// gzip-on-rotate behavior, generalized from types.LogEntry onto
// sinkpipeline.Request's already-encoded-and-compressed byte payload and
// simplified onto one open file per partition key instead of the teacher's
// worker-pool-fed queue (sinkpipeline already supplies the concurrency and
// batching).
package localfile

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/internal/sinkpipeline"
	"flowcore/internal/topology"
)

// Config configures a localfile Sink.
type Config struct {
	Dir           string
	MaxSizeBytes  int64 // 0 disables rotation
	CompressOnRotate bool
	Batch         sinkpipeline.BatchConfig
	Logger        *logrus.Logger
}

// Sink writes each dispatched batch's encoded body, appended, to a file
// named after its partition key.
type Sink struct {
	cfg      Config
	pipeline *sinkpipeline.Pipeline
	logger   *logrus.Logger

	mu    sync.Mutex
	files map[string]*rotatingFile
}

type rotatingFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
	size int64
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

func sanitizeKey(key string) string {
	if key == "" {
		key = "default"
	}
	return unsafePathChars.ReplaceAllString(key, "_")
}

func New(cfg Config) (*Sink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("localfile sink: dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("localfile sink: create dir: %w", err)
	}
	s := &Sink{cfg: cfg, logger: cfg.Logger, files: make(map[string]*rotatingFile)}
	s.pipeline = sinkpipeline.NewPipeline(sinkpipeline.Config{
		Partition: sinkpipeline.TemplatePartitioner("{source_type}"),
		Batch:     cfg.Batch,
		Service:   sinkpipeline.ServiceConfig{Concurrency: 1},
		Transport: s.transport,
		Logger:    cfg.Logger,
	})
	return s, nil
}

var _ topology.Sink = (*Sink)(nil)

func (s *Sink) transport(ctx context.Context, req sinkpipeline.Request) (interface{}, error) {
	f, err := s.fileFor(req.Key)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.f.Write(req.Body)
	if err != nil {
		return nil, fmt.Errorf("localfile sink: write: %w", err)
	}
	f.size += int64(n)

	if s.cfg.MaxSizeBytes > 0 && f.size >= s.cfg.MaxSizeBytes {
		s.rotateLocked(f)
	}
	return nil, nil
}

func (s *Sink) fileFor(key string) (*rotatingFile, error) {
	name := sanitizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[name]; ok {
		return f, nil
	}

	path := filepath.Join(s.cfg.Dir, name+".log")
	osFile, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("localfile sink: open %s: %w", path, err)
	}
	info, err := osFile.Stat()
	if err != nil {
		osFile.Close()
		return nil, err
	}
	f := &rotatingFile{path: path, f: osFile, size: info.Size()}
	s.files[name] = f
	return f, nil
}

// rotateLocked closes the current file, gzip-compresses it under a
// timestamped name when configured, and reopens a fresh file at the
// original path. Caller holds f.mu.
func (s *Sink) rotateLocked(f *rotatingFile) {
	f.f.Close()
	rotated := fmt.Sprintf("%s.%s", f.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(f.path, rotated); err != nil {
		s.logger.WithError(err).WithField("path", f.path).Warn("localfile sink: rotate rename failed")
	} else if s.cfg.CompressOnRotate {
		if err := gzipFile(rotated); err != nil {
			s.logger.WithError(err).WithField("path", rotated).Warn("localfile sink: gzip on rotate failed")
		}
	}

	osFile, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.WithError(err).WithField("path", f.path).Error("localfile sink: failed to reopen after rotate")
		return
	}
	f.f = osFile
	f.size = 0
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func (s *Sink) Run(ctx context.Context, in topology.Input) error {
	err := s.pipeline.Run(ctx, in)
	s.closeAll()
	return err
}

func (s *Sink) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		f.f.Close()
	}
}

func (s *Sink) Healthcheck(ctx context.Context) error {
	return nil
}

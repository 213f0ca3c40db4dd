package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	"flowcore/internal/topology"
	"flowcore/pkg/ack"
	"flowcore/pkg/event"
)

// SeekStrategy selects where a newly discovered file's tailer starts
// reading from.
type SeekStrategy string

const (
	SeekBeginning SeekStrategy = "beginning"
	SeekEnd       SeekStrategy = "end"
	SeekSaved     SeekStrategy = "saved" // resume from the persisted offset, falling back to beginning
)

// Directory configures one watched directory entry.
type Directory struct {
	Path                string
	Patterns            []string
	ExcludePatterns     []string
	ExcludeDirectories  []string
	Recursive           bool
	IncludeHidden       bool
}

// Config configures a file Source.
type Config struct {
	Paths         []string
	Directories   []Directory
	Seek          SeekStrategy
	PositionsDir  string // empty disables persistence
	FlushInterval time.Duration
	Acknowledge   bool
	Logger        *logrus.Logger
}

// Source tails a set of files and emits one log event per line, per
// SPEC_FULL.md §4.4's source contract.
//
// Grounded on internal/monitors/file_monitor.go's discovery-precedence and
// nxadm/tail usage, generalized from types.Dispatcher callbacks onto
// topology.Output and from the PositionBufferManager onto
// pkg/ack.Tracker + the positionStore in this package.
type Source struct {
	cfg    Config
	logger *logrus.Logger
	pos    *positionStore
}

func New(cfg Config) *Source {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Source{cfg: cfg, logger: cfg.Logger, pos: newPositionStore(cfg.PositionsDir, cfg.Logger)}
}

var _ topology.Source = (*Source)(nil)

func (s *Source) Run(ctx context.Context, out topology.Output) error {
	s.pos.load()

	paths, err := s.resolvePaths()
	if err != nil {
		return fmt.Errorf("file source: resolve paths: %w", err)
	}
	if len(paths) == 0 {
		s.logger.Warn("file source: no files matched, idling")
		<-ctx.Done()
		return ctx.Err()
	}

	stop := make(chan struct{})
	var flushWG sync.WaitGroup
	flushWG.Add(1)
	go func() {
		defer flushWG.Done()
		s.pos.flushLoop(stop, s.cfg.FlushInterval)
	}()

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := s.tailFile(ctx, path, out); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).WithField("file_path", path).Warn("file source: tailer exited with error")
			}
		}(p)
	}

	wg.Wait()
	close(stop)
	flushWG.Wait()
	return ctx.Err()
}

func (s *Source) tailFile(ctx context.Context, path string, out topology.Output) error {
	seekInfo := s.seekFor(path)
	t, err := tail.TailFile(path, tail.Config{Follow: true, ReOpen: true, Location: seekInfo, Poll: false})
	if err != nil {
		return fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()

	committer := s.pos.committerFor(path)
	tracker := ack.NewTracker(s.cfg.Acknowledge, committer)

	var seq uint64
	var byteOffset int64 = int64(seekInfo.Offset)

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return ctx.Err()

		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Err(); err != nil {
					return err
				}
				return nil
			}
			if line.Err != nil {
				s.logger.WithError(line.Err).WithField("file_path", path).Warn("file source: tail line error")
				continue
			}

			byteOffset += int64(len(line.Text)) + 1
			committer.record(seq, byteOffset)

			l := event.NewLog(event.SchemaLegacy)
			l.Insert(event.PathMessage, event.String(line.Text))
			l.Insert(event.PathSource, event.String("file"))
			l.Insert(event.MustParsePath("file"), event.String(path))
			l.SetTimestamp(line.Time)
			e := event.NewLogEvent(l)

			finalizer := tracker.Track(seq)
			e.Metadata.AttachFinalizer(finalizer)
			e.Metadata.Source = "file"

			if err := out.Send(ctx, e); err != nil {
				finalizer.Release(event.StatusDropped)
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			seq++
		}
	}
}

func (s *Source) seekFor(path string) *tail.SeekInfo {
	switch s.cfg.Seek {
	case SeekEnd:
		return &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	case SeekSaved:
		if off := s.pos.get(path); off > 0 {
			return &tail.SeekInfo{Offset: off, Whence: io.SeekStart}
		}
		return &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	default:
		return &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
}

// resolvePaths applies the same discovery precedence as the teacher's file
// monitor: explicit paths first, then directory expansion.
func (s *Source) resolvePaths() ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, p := range s.cfg.Paths {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			add(p)
		} else {
			s.logger.WithField("file_path", p).Warn("file source: explicit path missing, skipping")
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	for _, d := range s.cfg.Directories {
		expanded, err := expandDirectory(d)
		if err != nil {
			s.logger.WithError(err).WithField("path", d.Path).Warn("file source: failed to expand directory")
			continue
		}
		for _, p := range expanded {
			add(p)
		}
	}
	return out, nil
}

func expandDirectory(d Directory) ([]string, error) {
	var results []string
	matchAny := func(name string, patterns []string) bool {
		for _, pat := range patterns {
			if ok, _ := filepath.Match(pat, name); ok {
				return true
			}
		}
		return false
	}
	visit := func(path string, isDir bool, name string) bool {
		if isDir {
			for _, ex := range d.ExcludeDirectories {
				if name == ex {
					return false
				}
			}
			if !d.IncludeHidden && len(name) > 0 && name[0] == '.' {
				return false
			}
			return true
		}
		if !d.IncludeHidden && len(name) > 0 && name[0] == '.' {
			return false
		}
		if len(d.Patterns) > 0 && !matchAny(name, d.Patterns) {
			return false
		}
		if matchAny(name, d.ExcludePatterns) {
			return false
		}
		return true
	}

	if !d.Recursive {
		entries, err := os.ReadDir(d.Path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if visit(filepath.Join(d.Path, e.Name()), false, e.Name()) {
				results = append(results, filepath.Join(d.Path, e.Name()))
			}
		}
		return results, nil
	}

	err := filepath.WalkDir(d.Path, func(path string, de os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if de.IsDir() {
			if path != d.Path && !visit(path, true, de.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if visit(path, false, de.Name()) {
			results = append(results, path)
		}
		return nil
	})
	return results, err
}

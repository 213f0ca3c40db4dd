// Package docker implements the container log source described in
// SPEC_FULL.md §4.4's source contract: discovering running containers,
// following their stdout/stderr log streams, and reacting to container
// start/die events without polling the Docker API.
//
// Grounded on internal/monitors/container_monitor.go: the context-aware
// reader wrapping ContainerLogs so stdcopy.StdCopy unblocks on shutdown, the
// event-stream-driven collector lifecycle (start/die), and the drain period
// before cancelling a dying container's collector. Generalized from
// types.Dispatcher callbacks onto topology.Output and pkg/event.Event.
package docker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"

	"flowcore/internal/topology"
	"flowcore/pkg/event"
)

// Config configures a docker Source.
type Config struct {
	// LabelFilter restricts discovery to containers carrying this label
	// (e.g. "flowcore.collect=true"); empty collects from every container.
	LabelFilter string
	// DrainDuration is how long a dying container's collector keeps reading
	// before being cancelled, to avoid truncating its final lines.
	DrainDuration time.Duration
	Logger        *logrus.Logger
}

// Source streams stdout/stderr from running (and newly started) containers.
type Source struct {
	cfg    Config
	logger *logrus.Logger
	cli    *client.Client
}

func New(cfg Config) (*Source, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.DrainDuration <= 0 {
		cfg.DrainDuration = time.Second
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker source: create client: %w", err)
	}
	return &Source{cfg: cfg, logger: cfg.Logger, cli: cli}, nil
}

var _ topology.Source = (*Source)(nil)

func (s *Source) Run(ctx context.Context, out topology.Output) error {
	defer s.cli.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := s.cli.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("docker source: ping daemon: %w", err)
	}

	collectors := &collectorSet{m: make(map[string]context.CancelFunc)}

	listOpts := dockertypes.ContainerListOptions{}
	if s.cfg.LabelFilter != "" {
		f := filters.NewArgs()
		f.Add("label", s.cfg.LabelFilter)
		listOpts.Filters = f
	}
	containers, err := s.cli.ContainerList(ctx, listOpts)
	if err != nil {
		return fmt.Errorf("docker source: list containers: %w", err)
	}
	for _, c := range containers {
		s.startCollecting(ctx, collectors, c.ID, out)
	}

	s.watchEvents(ctx, collectors, out)
	return ctx.Err()
}

func (s *Source) watchEvents(ctx context.Context, collectors *collectorSet, out topology.Output) {
	f := filters.NewArgs()
	f.Add("type", "container")
	f.Add("event", "start")
	f.Add("event", "die")

	eventsCh, errCh := s.cli.Events(ctx, dockertypes.EventsOptions{Filters: f})
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventsCh:
			switch ev.Action {
			case "start":
				s.startCollecting(ctx, collectors, ev.Actor.ID, out)
			case "die":
				s.stopCollecting(ctx, collectors, ev.Actor.ID)
			}
		case err := <-errCh:
			if ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Warn("docker source: event stream error, reconnecting")
			time.Sleep(3 * time.Second)
		}
	}
}

type collectorSet struct {
	mu sync.Mutex
	m  map[string]context.CancelFunc
}

func (s *Source) startCollecting(ctx context.Context, collectors *collectorSet, containerID string, out topology.Output) {
	collectors.mu.Lock()
	if _, exists := collectors.m[containerID]; exists {
		collectors.mu.Unlock()
		return
	}
	collectCtx, cancel := context.WithCancel(ctx)
	collectors.m[containerID] = cancel
	collectors.mu.Unlock()

	go func() {
		defer func() {
			collectors.mu.Lock()
			delete(collectors.m, containerID)
			collectors.mu.Unlock()
		}()

		logStream, err := s.cli.ContainerLogs(collectCtx, containerID, dockertypes.ContainerLogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Timestamps: true,
		})
		if err != nil {
			if collectCtx.Err() != nil {
				return
			}
			s.logger.WithError(err).WithField("container_id", shortID(containerID)).Warn("docker source: failed to open log stream")
			return
		}
		defer logStream.Close()

		wrapped := &contextReader{ctx: collectCtx, r: logStream}
		stdout := &lineWriter{containerID: containerID, stream: "stdout", out: out, ctx: collectCtx, logger: s.logger}
		stderr := &lineWriter{containerID: containerID, stream: "stderr", out: out, ctx: collectCtx, logger: s.logger}

		_, err = stdcopy.StdCopy(stdout, stderr, wrapped)
		if err != nil && err != context.Canceled {
			s.logger.WithError(err).WithField("container_id", shortID(containerID)).Warn("docker source: log copy ended with error")
		}
	}()
}

func (s *Source) stopCollecting(ctx context.Context, collectors *collectorSet, containerID string) {
	collectors.mu.Lock()
	cancel, exists := collectors.m[containerID]
	collectors.mu.Unlock()
	if !exists {
		return
	}

	timer := time.NewTimer(s.cfg.DrainDuration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}
	cancel()
}

// contextReader wraps an io.Reader so a blocking Read returns ctx.Err()
// immediately once ctx is cancelled, letting stdcopy.StdCopy unwind instead
// of blocking forever on a container whose log stream never closes.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// lineWriter turns each stdcopy write (one log line) into an Event.
type lineWriter struct {
	containerID string
	stream      string
	out         topology.Output
	ctx         context.Context
	logger      *logrus.Logger
}

func (w *lineWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	l := event.NewLog(event.SchemaLegacy)
	l.Insert(event.PathMessage, event.String(string(p)))
	l.Insert(event.PathSource, event.String("docker"))
	l.Insert(event.MustParsePath("container_id"), event.String(w.containerID))
	l.Insert(event.MustParsePath("stream"), event.String(w.stream))
	l.SetTimestamp(time.Now())
	e := event.NewLogEvent(l)
	e.Metadata.Source = "docker"

	if err := w.out.Send(w.ctx, e); err != nil {
		w.logger.WithError(err).WithField("container_id", shortID(w.containerID)).Debug("docker source: send failed")
	}
	return len(p), nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

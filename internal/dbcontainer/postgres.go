// Package dbcontainer manages the lifecycle of a disposable PostgreSQL
// container: start it, expose its dynamically assigned endpoint, stop it.
package dbcontainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"pgsmoke/internal/core"
	"pgsmoke/internal/observability"
)

// Defaults used when no option overrides them.
const (
	DefaultImage          = "postgres:16-alpine"
	DefaultDatabase       = "postgres"
	DefaultUsername       = "postgres"
	DefaultPassword       = "postgres"
	DefaultStartupTimeout = 60 * time.Second

	// LabelRunID is attached to every container started by this package.
	LabelRunID = "pgsmoke.run-id"
)

// terminateTimeout bounds cleanup of a container that failed to start.
const terminateTimeout = 30 * time.Second

var (
	// ErrNotRunning is returned by Endpoint outside of Start and Stop.
	ErrNotRunning = errors.New("database container is not running")
	// ErrAlreadyRunning is returned by Start on a running container.
	ErrAlreadyRunning = errors.New("database container is already running")
)

// Endpoint is the resolved connection information of a running container.
type Endpoint struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns a postgres:// URL with TLS disabled and without credentials,
// which travel separately as username and password.
func (e Endpoint) URL() string {
	return e.url(nil)
}

// ConnectionString returns URL with the credentials embedded.
func (e Endpoint) ConnectionString() string {
	return e.url(url.UserPassword(e.Username, e.Password))
}

func (e Endpoint) url(user *url.Userinfo) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     e.Address(),
		Path:     "/" + e.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Option configures a Postgres container.
type Option func(*Postgres)

// WithImage sets the image reference, e.g. "postgres:12".
func WithImage(image string) Option {
	return func(p *Postgres) {
		if image != "" {
			p.image = image
		}
	}
}

// WithDatabase sets the database created at startup.
func WithDatabase(name string) Option {
	return func(p *Postgres) {
		if name != "" {
			p.database = name
		}
	}
}

// WithUsername sets the superuser name.
func WithUsername(name string) Option {
	return func(p *Postgres) {
		if name != "" {
			p.username = name
		}
	}
}

// WithPassword sets the superuser password.
func WithPassword(password string) Option {
	return func(p *Postgres) {
		if password != "" {
			p.password = password
		}
	}
}

// WithStartupTimeout bounds the wait for the database to accept connections.
func WithStartupTimeout(d time.Duration) Option {
	return func(p *Postgres) {
		if d > 0 {
			p.startupTimeout = d
		}
	}
}

// WithRuntime replaces the testcontainers-go runtime.
func WithRuntime(rt Runtime) Option {
	return func(p *Postgres) {
		if rt != nil {
			p.runtime = rt
		}
	}
}

// WithMetrics records start and stop events.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Postgres) {
		p.metrics = m
	}
}

// Postgres is a disposable PostgreSQL instance. The zero value is not usable;
// create one with New.
type Postgres struct {
	image          string
	database       string
	username       string
	password       string
	startupTimeout time.Duration
	runtime        Runtime
	metrics        *observability.Metrics

	mu       sync.Mutex
	instance Instance
	endpoint Endpoint
	runID    string
}

// New creates a Postgres container description. Nothing is started until Start.
func New(opts ...Option) *Postgres {
	p := &Postgres{
		image:          DefaultImage,
		database:       DefaultDatabase,
		username:       DefaultUsername,
		password:       DefaultPassword,
		startupTimeout: DefaultStartupTimeout,
		runtime:        TestcontainersRuntime{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Image returns the configured image reference.
func (p *Postgres) Image() string {
	return p.image
}

// Start launches the container and blocks until it accepts connections or the
// startup timeout elapses. The container is labelled with the run ID from
// ctx, or a fresh one. Any failure is a provisioning error, and a
// container that was created but never became ready is terminated.
func (p *Postgres) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance != nil {
		return ErrAlreadyRunning
	}

	runID, ok := runIDFrom(ctx)
	if !ok {
		runID = uuid.NewString()
	}
	slog.Info("starting database container",
		"image", p.image,
		"database", p.database,
		"run_id", runID,
		"startup_timeout", p.startupTimeout,
	)

	started := time.Now()
	inst, err := runSafely(ctx, p.runtime, Request{
		Image:          p.image,
		Database:       p.database,
		Username:       p.username,
		Password:       p.password,
		StartupTimeout: p.startupTimeout,
		Labels:         map[string]string{LabelRunID: runID},
	})
	if err != nil {
		discard(inst)
		p.metrics.ObserveContainerStart(time.Since(started), err)
		return core.NewProvisioningError(fmt.Sprintf("failed to start %s", p.image), err)
	}

	endpoint, err := p.resolve(ctx, inst)
	if err != nil {
		discard(inst)
		p.metrics.ObserveContainerStart(time.Since(started), err)
		return core.NewProvisioningError(fmt.Sprintf("failed to resolve endpoint of %s", p.image), err)
	}

	p.instance = inst
	p.endpoint = endpoint
	p.runID = runID
	p.metrics.ObserveContainerStart(time.Since(started), nil)

	slog.Info("database container ready",
		"address", endpoint.Address(),
		"run_id", runID,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// Stop terminates the container. Calling Stop on a container that is not
// running is a no-op.
func (p *Postgres) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance == nil {
		return nil
	}

	inst, runID := p.instance, p.runID
	p.instance = nil
	p.endpoint = Endpoint{}
	p.runID = ""

	if err := inst.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate database container %s: %w", runID, err)
	}
	p.metrics.ObserveContainerStop()
	slog.Info("database container stopped", "run_id", runID)
	return nil
}

// Endpoint returns the connection information of the running container.
func (p *Postgres) Endpoint() (Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance == nil {
		return Endpoint{}, ErrNotRunning
	}
	return p.endpoint, nil
}

// RunID returns the label value of the running container, or "" when stopped.
func (p *Postgres) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

func (p *Postgres) resolve(ctx context.Context, inst Instance) (Endpoint, error) {
	addr, err := inst.Endpoint(ctx)
	if err != nil {
		return Endpoint{}, err
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("unexpected endpoint %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("unexpected port in endpoint %q", addr)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("empty host in endpoint %q", addr)
	}

	return Endpoint{
		Host:     host,
		Port:     port,
		Database: p.database,
		Username: p.username,
		Password: p.password,
	}, nil
}

// runSafely calls rt and turns a panic into an error. testcontainers-go panics
// instead of returning an error when no Docker host can be found.
func runSafely(ctx context.Context, rt Runtime, req Request) (inst Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			inst = nil
			err = fmt.Errorf("container runtime unavailable: %v", r)
		}
	}()
	return rt.RunPostgres(ctx, req)
}

// discard terminates a container that never became usable.
func discard(inst Instance) {
	if inst == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()
	if err := inst.Terminate(ctx); err != nil {
		slog.Warn("failed to terminate container after failed start", "error", err)
	}
}

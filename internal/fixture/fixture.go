// Package fixture wires a disposable database container into the
// configuration of the code under test.
//
// The sequence is always the same: start the container, publish its endpoint
// as datasource properties, let the application load its configuration, and
// stop the container when the test group ends, whatever the outcome.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"pgsmoke/config"
	"pgsmoke/internal/dbcontainer"
)

const (
	setupTimeout    = 10 * time.Minute
	teardownTimeout = 30 * time.Second
)

// ErrNotStarted is returned when properties are registered for a container
// that is not running. It signals an ordering mistake in the caller.
var ErrNotStarted = errors.New("database container must be started before its properties are registered")

// EndpointProvider exposes the endpoint of a running container.
type EndpointProvider interface {
	Endpoint() (dbcontainer.Endpoint, error)
}

// RegisterProperties publishes the datasource URL, username and password of
// c into reg. Nothing is registered when c is not running.
func RegisterProperties(reg *config.Registry, c EndpointProvider) error {
	ep, err := c.Endpoint()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotStarted, err)
	}

	reg.Add(config.KeyDatasourceURL, ep.URL)
	reg.Add(config.KeyDatasourceUsername, func() string { return ep.Username })
	reg.Add(config.KeyDatasourcePassword, func() string { return ep.Password })

	slog.Debug("registered datasource properties", "keys", reg.Keys(), "address", ep.Address())
	return nil
}

// Fixture owns one database container and the registry its endpoint is
// published to.
type Fixture struct {
	container *dbcontainer.Postgres
	registry  *config.Registry
}

// New creates a fixture. The container is not started until Setup.
func New(opts ...dbcontainer.Option) *Fixture {
	return &Fixture{
		container: dbcontainer.New(opts...),
		registry:  config.NewRegistry(),
	}
}

// Setup starts the container and registers its properties. If registration
// fails the container is stopped again; if the start fails the registry stays
// empty.
func (f *Fixture) Setup(ctx context.Context) error {
	if err := f.container.Start(ctx); err != nil {
		return err
	}
	if err := RegisterProperties(f.registry, f.container); err != nil {
		return errors.Join(err, f.container.Stop(ctx))
	}
	return nil
}

// Teardown stops the container. It is safe to call more than once.
func (f *Fixture) Teardown(ctx context.Context) error {
	return f.container.Stop(ctx)
}

// Registry returns the registry holding the datasource properties.
func (f *Fixture) Registry() *config.Registry {
	return f.registry
}

// Container returns the managed container.
func (f *Fixture) Container() *dbcontainer.Postgres {
	return f.container
}

// Endpoint returns the endpoint of the running container.
func (f *Fixture) Endpoint() (dbcontainer.Endpoint, error) {
	return f.container.Endpoint()
}

// Config loads the application configuration with the registered properties
// taking precedence over every other source.
func (f *Fixture) Config() (*config.Config, error) {
	return config.Load(f.registry)
}

// Setup creates a fixture and runs its setup.
func Setup(ctx context.Context, opts ...dbcontainer.Option) (*Fixture, error) {
	f := New(opts...)
	if err := f.Setup(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Run starts a fixture scoped to t. The container is stopped by t.Cleanup,
// including when setup itself fails.
func Run(t testing.TB, opts ...dbcontainer.Option) *Fixture {
	t.Helper()

	f := New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := f.Teardown(ctx); err != nil {
			t.Errorf("database fixture teardown: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := f.Setup(ctx); err != nil {
		t.Fatalf("database fixture setup: %v", err)
	}
	return f
}

// Runner is satisfied by *testing.M.
type Runner interface {
	Run() int
}

// Main runs a test binary around one fixture and returns the exit code for
// os.Exit. setup runs after the properties are registered and before any test;
// it is where the code under test is built. Teardown is deferred, so it also
// runs when setup fails or a test panics.
func Main(m Runner, setup func(context.Context, *Fixture) error, opts ...dbcontainer.Option) (code int) {
	f := New(opts...)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := f.Teardown(ctx); err != nil {
			slog.Error("database fixture teardown failed", "error", err)
			if code == 0 {
				code = 1
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	if err := f.Setup(ctx); err != nil {
		slog.Error("database fixture setup failed", "error", err)
		return 1
	}
	if setup != nil {
		if err := setup(ctx, f); err != nil {
			slog.Error("test setup failed", "error", err)
			return 1
		}
	}

	return m.Run()
}

package dbcontainer

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// readyLogLine is printed once by the init process and once by the final
// server, so it has to be seen twice before the database accepts connections.
const readyLogLine = "database system is ready to accept connections"

// Request describes the container to launch.
type Request struct {
	Image          string
	Database       string
	Username       string
	Password       string
	StartupTimeout time.Duration
	Labels         map[string]string
}

// Instance is a launched container.
type Instance interface {
	// Endpoint returns the host:port mapped to the database port.
	Endpoint(ctx context.Context) (string, error)
	// Terminate stops and removes the container.
	Terminate(ctx context.Context) error
}

// Runtime launches database containers. A Runtime may return a non-nil
// Instance together with an error when the container was created but never
// became ready; the caller owns terminating it.
type Runtime interface {
	RunPostgres(ctx context.Context, req Request) (Instance, error)
}

// TestcontainersRuntime launches containers through testcontainers-go and the
// Docker-compatible daemon it discovers.
type TestcontainersRuntime struct{}

// RunPostgres implements Runtime.
func (TestcontainersRuntime) RunPostgres(ctx context.Context, req Request) (Instance, error) {
	c, err := postgres.Run(ctx,
		req.Image,
		postgres.WithDatabase(req.Database),
		postgres.WithUsername(req.Username),
		postgres.WithPassword(req.Password),
		testcontainers.WithLabels(req.Labels),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog(readyLogLine).
					WithOccurrence(2).
					WithStartupTimeout(req.StartupTimeout),
				wait.ForListeningPort("5432/tcp").
					WithStartupTimeout(req.StartupTimeout),
			),
		),
	)
	if c == nil {
		return nil, err
	}
	return &postgresInstance{c: c}, err
}

type postgresInstance struct {
	c *postgres.PostgresContainer
}

func (p *postgresInstance) Endpoint(ctx context.Context) (string, error) {
	return p.c.Endpoint(ctx, "")
}

func (p *postgresInstance) Terminate(ctx context.Context) error {
	return p.c.Terminate(ctx)
}

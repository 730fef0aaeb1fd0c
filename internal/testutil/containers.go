//go:build integration

// Package testutil starts the external services used by integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartRedis starts a Redis container and returns its redis:// URL.
// The container is terminated when the test ends.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	c := startContainer(t, ctx, req)
	host, port := endpoint(t, ctx, c, "6379")
	return fmt.Sprintf("redis://%s:%s", host, port)
}

// StartPostgres starts a PostgreSQL container and returns a connection URL
// for an empty "autoreduction" database.
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "autoreduce",
			"POSTGRES_PASSWORD": "autoreduce",
			"POSTGRES_DB":       "autoreduction",
		},
		// Postgres logs readiness twice: once for the init server, once for the real one
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	c := startContainer(t, ctx, req)
	host, port := endpoint(t, ctx, c, "5432")
	return fmt.Sprintf("postgres://autoreduce:autoreduce@%s:%s/autoreduction?sslmode=disable", host, port)
}

func startContainer(t *testing.T, ctx context.Context, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start %s container", req.Image)

	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate %s container: %v", req.Image, err)
		}
	})
	return c
}

func endpoint(t *testing.T, ctx context.Context, c testcontainers.Container, port string) (string, string) {
	t.Helper()
	host, err := c.Host(ctx)
	require.NoError(t, err, "Failed to get container host")

	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err, "Failed to get container port")
	return host, mapped.Port()
}

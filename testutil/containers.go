package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	elasticsearchImage = "docker.elastic.co/elasticsearch/elasticsearch:8.13.4"
	natsImage          = "nats:2.10-alpine"

	elasticsearchPort nat.Port = "9200/tcp"
	natsClientPort    nat.Port = "4222/tcp"
	natsMonitorPort   nat.Port = "8222/tcp"
)

// startContainer starts req and returns host:port of port. The container is terminated when the test ends. The test is
// skipped when no container runtime is reachable.
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// StartElasticsearch runs a single-node cluster without security and
// returns its URL.
func StartElasticsearch(t *testing.T) string {
	t.Helper()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        elasticsearchImage,
		ExposedPorts: []string{string(elasticsearchPort)},
		Env: map[string]string{
			"discovery.type":         "single-node",
			"xpack.security.enabled": "false",
			"ES_JAVA_OPTS":           "-Xms512m -Xmx512m",
		},
		WaitingFor: wait.ForHTTP("/_cluster/health?wait_for_status=yellow").
			WithPort(elasticsearchPort).
			WithStartupTimeout(3 * time.Minute),
	}, elasticsearchPort)
	return "http://" + addr
}

// StartNATS runs a JetStream enabled server and returns its URL.
func StartNATS(t *testing.T) string {
	t.Helper()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        natsImage,
		ExposedPorts: []string{string(natsClientPort), string(natsMonitorPort)},
		Cmd:          []string{"--port", "4222", "--http_port", "8222", "--js"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(natsClientPort),
			wait.ForHTTP("/").WithPort(natsMonitorPort).WithStartupTimeout(time.Minute),
		),
	}, natsClientPort)
	return "nats://" + addr
}

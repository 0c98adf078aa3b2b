package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Integration tests run the real backing services in containers. Each
// Start* helper returns a running container plus a ready connection URI.

const (
	mongoImage    = "mongo:7.0"
	redisImage    = "redis:7.2"
	rabbitMQImage = "rabbitmq:3.13"

	testDatabaseName = "outreach_test"
)

type MongoContainer struct {
	Container    testcontainers.Container
	URI          string
	DatabaseName string
}

func StartMongoContainer(ctx context.Context) (*MongoContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        mongoImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Waiting for connections"),
			wait.ForListeningPort("27017/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, host, port, err := startContainer(ctx, req, "27017")
	if err != nil {
		return nil, fmt.Errorf("failed to start MongoDB container: %w", err)
	}

	return &MongoContainer{
		Container:    container,
		URI:          fmt.Sprintf("mongodb://%s:%s", host, port),
		DatabaseName: testDatabaseName,
	}, nil
}

func (m *MongoContainer) Close(ctx context.Context) error {
	if m.Container == nil {
		return nil
	}
	return m.Container.Terminate(ctx)
}

type RedisContainer struct {
	Container testcontainers.Container
	Addr      string
}

func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections"),
			wait.ForListeningPort("6379/tcp"),
		).WithDeadline(30 * time.Second),
	}

	container, host, port, err := startContainer(ctx, req, "6379")
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	return &RedisContainer{
		Container: container,
		Addr:      fmt.Sprintf("%s:%s", host, port),
	}, nil
}

func (r *RedisContainer) Close(ctx context.Context) error {
	if r.Container == nil {
		return nil
	}
	return r.Container.Terminate(ctx)
}

type RabbitMQContainer struct {
	Container testcontainers.Container
	URI       string
}

func StartRabbitMQContainer(ctx context.Context) (*RabbitMQContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        rabbitMQImage,
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "test",
			"RABBITMQ_DEFAULT_PASS": "test",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(90 * time.Second),
	}

	container, host, port, err := startContainer(ctx, req, "5672")
	if err != nil {
		return nil, fmt.Errorf("failed to start RabbitMQ container: %w", err)
	}

	return &RabbitMQContainer{
		Container: container,
		URI:       fmt.Sprintf("amqp://test:test@%s:%s/", host, port),
	}, nil
}

func (r *RabbitMQContainer) Close(ctx context.Context) error {
	if r.Container == nil {
		return nil
	}
	return r.Container.Terminate(ctx)
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, portID string) (testcontainers.Container, string, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", "", fmt.Errorf("failed to resolve container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(portID))
	if err != nil {
		container.Terminate(ctx)
		return nil, "", "", fmt.Errorf("failed to resolve mapped port: %w", err)
	}

	return container, host, mapped.Port(), nil
}

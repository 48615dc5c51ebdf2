//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"poi-tiering/pkg/database"
)

const (
	mysqlImage    = "mysql:8.0"
	mysqlPort     = "3306/tcp"
	mysqlPassword = "poi-test"
	mysqlDatabase = "poi_tiering"
)

// SkipIfNoDocker skips the test if Docker is not available.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// MySQLContainer is a running MySQL server with the schema applied.
type MySQLContainer struct {
	testcontainers.Container
	DSN string
	DB  *database.DB
}

// NewMySQL starts MySQL, migrates it and registers cleanup on t.
func NewMySQL(t *testing.T) *MySQLContainer {
	t.Helper()
	SkipIfNoDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        mysqlImage,
		ExposedPorts: []string{mysqlPort},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": mysqlPassword,
			"MYSQL_DATABASE":      mysqlDatabase,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(mysqlPort),
			wait.ForLog("port: 3306  MySQL Community Server"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mysql: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("mysql host: %v", err)
	}
	port, err := c.MappedPort(ctx, mysqlPort)
	if err != nil {
		t.Fatalf("mysql port: %v", err)
	}
	dsn := fmt.Sprintf("root:%s@tcp(%s:%s)/%s", mysqlPassword, host, port.Port(), mysqlDatabase)

	db, err := database.Open(ctx, database.MySQL{}, dsn, database.Options{MaxOpenConns: 10})
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate mysql: %v", err)
	}
	return &MySQLContainer{Container: c, DSN: dsn, DB: db}
}

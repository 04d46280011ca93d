package test

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// Postgres test database configuration
const (
	PostgresUser     = "chatsync"
	PostgresPassword = "chatsync_pwd"
	PostgresDB       = "chatsync_test"
	PostgresHost     = "localhost"
)

// PostgresDSN returns the data source name for Postgres connection with dynamic port
func PostgresDSN(port string) string {
	return "postgres://" + PostgresUser + ":" + PostgresPassword + "@" + PostgresHost + ":" + port + "/" + PostgresDB + "?sslmode=disable"
}

// PostgresDockerEnv returns the environment variables for Postgres Docker container
func PostgresDockerEnv() []string {
	return []string{
		"POSTGRES_USER=" + PostgresUser,
		"POSTGRES_PASSWORD=" + PostgresPassword,
		"POSTGRES_DB=" + PostgresDB,
	}
}

// SetupPostgresDB starts a disposable Postgres container and waits until it
// accepts connections. Returns a raw connection for schema loading, the
// mapped port and the container resource for teardown.
func SetupPostgresDB(t *testing.T, pool *dockertest.Pool) (*sql.DB, string, *dockertest.Resource) {
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env:        PostgresDockerEnv(),
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("Could not start postgres container: %s", err)
	}

	port := resource.GetPort("5432/tcp")

	var db *sql.DB
	pool.MaxWait = 2 * time.Minute
	if err := pool.Retry(func() error {
		var err error
		db, err = sql.Open("pgx", PostgresDSN(port))
		if err != nil {
			return err
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("Could not connect to postgres container: %s", err)
	}

	return db, port, resource
}

func ExecFile(t *testing.T, db *sql.DB, file string) {
	if t.Failed() {
		return
	}
	fileContent, err := os.ReadFile(file)
	if err != nil {
		t.Errorf("cannot read sql file %v", err)
		return
	}
	sql := string(fileContent)
	_, err = db.Exec(sql)
	if err != nil {
		t.Errorf("cannot execute sql file %v", err)
		return
	}
}

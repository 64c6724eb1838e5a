//go:build integration

package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/welldanyogia/attachmentfx/internal/config"
	"github.com/welldanyogia/attachmentfx/internal/database"
)

// startPostgres starts a PostgreSQL container and returns a migrated
// connection to it
func startPostgres(t *testing.T, dbName string) (testcontainers.Container, *gorm.DB) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       dbName,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=%s sslmode=disable",
		host, port.Port(), dbName)

	db, err := database.ConnectWithLogger(database.DriverPostgres, dsn, gormlogger.Default.LogMode(gormlogger.Silent))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	return container, db
}

// truncate empties the attachment and member tables
func truncate(t *testing.T, db *gorm.DB) {
	require.NoError(t, db.Exec("TRUNCATE TABLE attachment_files, db_files, members RESTART IDENTITY CASCADE").Error)
}

// testConfig returns a configuration rooted at a fresh temporary directory
func testConfig(t *testing.T) *config.Config {
	root := t.TempDir()
	return &config.Config{
		DatabaseDriver:       database.DriverPostgres,
		APIPort:              8080,
		AllowedOrigins:       []string{"*"},
		AppRoot:              root,
		PublicPath:           filepath.Join(root, "public"),
		AttachmentPathPrefix: "public/files",
		AttachmentStorage:    config.StorageFileSystem,
		MaxUploadSize:        1024 * 1024,
		PathCacheEnabled:     true,
		PathCacheColumn:      "attachment_path_cache",
		LogLevel:             "error",
	}
}

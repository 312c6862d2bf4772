package migrate

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapspend-backend/pkg/config"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration file found", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestUsersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_users")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS users",
		"CONSTRAINT users_email_key UNIQUE (email)",
		"CHECK (is_guest OR password_hash IS NOT NULL)",
		"DROP TABLE IF EXISTS users",
	} {
		require.Contains(t, content, sub)
	}
}

func TestReceiptsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_receipts")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS receipts",
		"CREATE TABLE IF NOT EXISTS receipt_items",
		"FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE",
		"FOREIGN KEY (receipt_id) REFERENCES receipts(id) ON DELETE CASCADE",
		"image_urls text[] NOT NULL DEFAULT '{}'",
		"CREATE INDEX IF NOT EXISTS idx_receipts_user_purchase_date",
		"DROP TABLE IF EXISTS receipt_items",
	} {
		require.Contains(t, content, sub)
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
	require.NoError(t, ValidateEmbedded())
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	embedded, err := fs.Glob(Embedded, "migrations/*.sql")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.Len(t, embedded, len(onDisk))
}

func TestCreateSQLMigrationThenValidate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	path, err := CreateSQLMigration(dir, "Add Receipt Notes!", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260314092653_add_receipt_notes.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "add receipt notes", now)
	require.ErrorContains(t, err, "already exists")

	_, err = CreateSQLMigration(dir, "***", now)
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestValidateDirRejectsDownBeforeUp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_init.sql"), []byte("-- +goose Down\n-- +goose Up\n"), 0o644))
	require.ErrorContains(t, ValidateDir(dir), "must come before")
}

func TestValidateDirRejectsImpossibleVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20251399000000_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestValidateDirRequiresDownSection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_init.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "prod"}, FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true}}
	require.NoError(t, MaybeRunDev(context.Background(), cfg, logger.New(logger.Options{ServiceName: "test"}), nil))
}

func sqliteDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func writeMigrations(t *testing.T) Source {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"20250101000000_tags.sql":  "-- +goose Up\nCREATE TABLE tags (id INTEGER PRIMARY KEY);\n-- +goose Down\nDROP TABLE tags;\n",
		"20250102000000_notes.sql": "-- +goose Up\nCREATE TABLE notes (id INTEGER PRIMARY KEY);\n-- +goose Down\nDROP TABLE notes;\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	require.NoError(t, ValidateDir(dir))
	return Dir(dir)
}

func TestRunUpStatusDown(t *testing.T) {
	ctx := context.Background()
	db := sqliteDB(t)
	src := writeMigrations(t)

	applied, err := run(ctx, goose.DialectSQLite3, db, src, "up")
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Equal(t, int64(20250101000000), applied[0].Version)
	require.Equal(t, "up", applied[0].Direction)

	status, err := run(ctx, goose.DialectSQLite3, db, src, "status")
	require.NoError(t, err)
	require.Len(t, status, 2)
	for _, s := range status {
		require.Equal(t, string(goose.StateApplied), s.State)
	}

	undone, err := run(ctx, goose.DialectSQLite3, db, src, "down")
	require.NoError(t, err)
	require.Len(t, undone, 1)
	require.Equal(t, int64(20250102000000), undone[0].Version)

	_, err = run(ctx, goose.DialectSQLite3, db, src, "redo-all")
	require.Error(t, err)
}

func TestMigrateToVersion(t *testing.T) {
	ctx := context.Background()
	db := sqliteDB(t)
	src := writeMigrations(t)

	up, err := migrateTo(ctx, goose.DialectSQLite3, db, src, "20250101000000")
	require.NoError(t, err)
	require.Len(t, up, 1)

	same, err := migrateTo(ctx, goose.DialectSQLite3, db, src, "20250101000000")
	require.NoError(t, err)
	require.Empty(t, same)

	down, err := migrateTo(ctx, goose.DialectSQLite3, db, src, "0")
	require.NoError(t, err)
	require.Len(t, down, 1)
	require.Equal(t, "down", down[0].Direction)

	_, err = migrateTo(ctx, goose.DialectSQLite3, db, src, "latest")
	require.Error(t, err)
}

func TestRunRequiresDBAndSource(t *testing.T) {
	_, err := Run(context.Background(), nil, EmbeddedSource(), "up")
	require.Error(t, err)
	_, err = run(context.Background(), goose.DialectSQLite3, sqliteDB(t), Source{}, "up")
	require.Error(t, err)
}

func TestEmbeddedSourceListsMigrations(t *testing.T) {
	entries, err := fs.ReadDir(EmbeddedSource().fsys, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

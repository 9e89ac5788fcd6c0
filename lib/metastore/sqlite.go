// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/agenthub-foundation/agenthub/lib/registry"
	"github.com/agenthub-foundation/agenthub/lib/sqlitepool"
)

// schema creates the three tables and the indexes behind every scan
// path. UNIQUE constraints express the registry's serialization
// points: one row per (package, version), at most one counted
// download per (package, version, fingerprint, bucket).
const schema = `
	CREATE TABLE IF NOT EXISTS packages (
		name        TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		owner       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		keywords    TEXT,
		latest      TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_packages_type ON packages(type, name);
	CREATE INDEX IF NOT EXISTS idx_packages_updated ON packages(updated_at);

	CREATE TABLE IF NOT EXISTS versions (
		package      TEXT NOT NULL,
		version      TEXT NOT NULL,
		status       TEXT NOT NULL,
		manifest     BLOB NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL,
		size         INTEGER NOT NULL,
		prerelease   INTEGER NOT NULL,
		dependencies TEXT,
		publisher    TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		PRIMARY KEY (package, version)
	);
	CREATE INDEX IF NOT EXISTS idx_versions_status ON versions(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_versions_hash ON versions(content_hash);
	CREATE INDEX IF NOT EXISTS idx_versions_package ON versions(package, created_at);

	CREATE TABLE IF NOT EXISTS download_events (
		package     TEXT NOT NULL,
		version     TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		bucket      INTEGER NOT NULL,
		created_at  INTEGER NOT NULL,
		PRIMARY KEY (package, version, fingerprint, bucket)
	);
	CREATE INDEX IF NOT EXISTS idx_events_bucket ON download_events(bucket);
	CREATE INDEX IF NOT EXISTS idx_events_package ON download_events(package, bucket);
`

// SQLite is the production Store implementation.
type SQLite struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Config holds the parameters for opening the metadata store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Open creates the metadata store, creating the database file and
// schema if needed.
func Open(cfg Config) (*SQLite, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: %w", err)
	}

	return &SQLite{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

func (s *SQLite) CreatePackageIfAbsent(ctx context.Context, pkg *registry.Package) (*registry.Package, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, false, &registry.TransientStorageError{Op: "create package", Err: err}
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, false, &registry.TransientStorageError{Op: "create package", Err: err}
	}
	defer endTransaction(&err)

	keywords, err := marshalStrings(pkg.Keywords)
	if err != nil {
		return nil, false, err
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO packages (name, type, owner, description, keywords, latest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '', ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{
			pkg.Name, string(pkg.Type), pkg.Owner, pkg.Description, keywords,
			pkg.CreatedAt.Unix(), pkg.UpdatedAt.Unix(),
		}})
	if err != nil {
		return nil, false, &registry.TransientStorageError{Op: "create package", Err: err}
	}
	created := conn.Changes() > 0

	stored, err := getPackage(conn, pkg.Name)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *SQLite) GetPackage(ctx context.Context, name string) (*registry.Package, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "get package", Err: err}
	}
	defer s.pool.Put(conn)
	return getPackage(conn, name)
}

const packageColumns = `name, type, owner, description, keywords, latest, created_at, updated_at`

func getPackage(conn *sqlite.Conn, name string) (*registry.Package, error) {
	var pkg *registry.Package
	err := sqlitex.Execute(conn,
		`SELECT `+packageColumns+` FROM packages WHERE name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var readErr error
				pkg, readErr = readPackage(stmt)
				return readErr
			},
		})
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "get package", Err: err}
	}
	if pkg == nil {
		return nil, &registry.NotFoundError{Kind: "package", Key: name}
	}
	return pkg, nil
}

func (s *SQLite) ListPackages(ctx context.Context, filter *registry.PackageType, limit int) ([]*registry.Package, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "list packages", Err: err}
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := `SELECT ` + packageColumns + ` FROM packages ORDER BY name LIMIT ?`
	args := []any{limit}
	if filter != nil {
		query = `SELECT ` + packageColumns + ` FROM packages WHERE type = ? ORDER BY name LIMIT ?`
		args = []any{string(*filter), limit}
	}

	var packages []*registry.Package
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			pkg, readErr := readPackage(stmt)
			if readErr != nil {
				return readErr
			}
			packages = append(packages, pkg)
			return nil
		},
	})
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "list packages", Err: err}
	}
	return packages, nil
}

func (s *SQLite) UpdatePackageMetadata(ctx context.Context, name, description string, keywords []string, now time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return &registry.TransientStorageError{Op: "update package metadata", Err: err}
	}
	defer s.pool.Put(conn)

	encoded, err := marshalStrings(keywords)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn, `
		UPDATE packages SET description = ?, keywords = ?, updated_at = ? WHERE name = ?`,
		&sqlitex.ExecOptions{Args: []any{description, encoded, now.Unix(), name}})
	if err != nil {
		return &registry.TransientStorageError{Op: "update package metadata", Err: err}
	}
	if conn.Changes() == 0 {
		return &registry.NotFoundError{Kind: "package", Key: name}
	}
	return nil
}

func (s *SQLite) InsertVersionIfAbsent(ctx context.Context, v *registry.Version) (InsertResult, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return InsertResult{}, &registry.TransientStorageError{Op: "insert version", Err: err}
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return InsertResult{}, &registry.TransientStorageError{Op: "insert version", Err: err}
	}
	defer endTransaction(&err)

	dependencies, err := marshalDependencies(v.Dependencies)
	if err != nil {
		return InsertResult{}, err
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO versions (package, version, status, manifest, description,
			content_hash, size, prerelease, dependencies, publisher, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(package, version) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{
			v.Package, v.Version, string(v.Status), v.Manifest, v.Description,
			v.ContentHash, v.Size, boolToInt(v.Prerelease), dependencies,
			v.Publisher, v.CreatedAt.Unix(),
		}})
	if err != nil {
		return InsertResult{}, &registry.TransientStorageError{Op: "insert version", Err: err}
	}

	if conn.Changes() > 0 {
		return InsertResult{Inserted: true}, nil
	}

	existing, err := getVersion(conn, v.Package, v.Version)
	if err != nil {
		return InsertResult{}, err
	}
	return InsertResult{Existing: existing}, nil
}

func (s *SQLite) ReclaimPendingVersion(ctx context.Context, replacement *registry.Version, staleBefore time.Time) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, &registry.TransientStorageError{Op: "reclaim pending version", Err: err}
	}
	defer s.pool.Put(conn)

	dependencies, err := marshalDependencies(replacement.Dependencies)
	if err != nil {
		return false, err
	}

	// The WHERE clause is the reclaim race's decider: of several
	// publishers that observed the same stale row, exactly one update
	// matches because the first success moves created_at forward.
	err = sqlitex.Execute(conn, `
		UPDATE versions
		SET manifest = ?, description = ?, content_hash = ?, size = ?,
			prerelease = ?, dependencies = ?, publisher = ?, created_at = ?
		WHERE package = ? AND version = ? AND status = ? AND created_at < ?`,
		&sqlitex.ExecOptions{Args: []any{
			replacement.Manifest, replacement.Description, replacement.ContentHash,
			replacement.Size, boolToInt(replacement.Prerelease), dependencies,
			replacement.Publisher, replacement.CreatedAt.Unix(),
			replacement.Package, replacement.Version,
			string(registry.StatusPending), staleBefore.Unix(),
		}})
	if err != nil {
		return false, &registry.TransientStorageError{Op: "reclaim pending version", Err: err}
	}
	return conn.Changes() > 0, nil
}

func (s *SQLite) CommitVersion(ctx context.Context, pkg, version string, claimedAt, now time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return &registry.TransientStorageError{Op: "commit version", Err: err}
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return &registry.TransientStorageError{Op: "commit version", Err: err}
	}
	defer endTransaction(&err)

	// created_at identifies the claim, not just the slot: a reclaim
	// moves it forward, so a publisher whose claim was reclaimed
	// matches zero rows here instead of flipping the reclaimer's row.
	err = sqlitex.Execute(conn, `
		UPDATE versions SET status = ?
		WHERE package = ? AND version = ? AND status = ? AND created_at = ?`,
		&sqlitex.ExecOptions{Args: []any{
			string(registry.StatusCommitted), pkg, version,
			string(registry.StatusPending), claimedAt.Unix(),
		}})
	if err != nil {
		return &registry.TransientStorageError{Op: "commit version", Err: err}
	}
	if conn.Changes() == 0 {
		return &registry.ConflictError{Package: pkg, Version: version,
			Reason: "version is not pending under this claim"}
	}

	err = sqlitex.Execute(conn,
		`UPDATE packages SET updated_at = ? WHERE name = ?`,
		&sqlitex.ExecOptions{Args: []any{now.Unix(), pkg}})
	if err != nil {
		return &registry.TransientStorageError{Op: "commit version", Err: err}
	}
	return nil
}

func (s *SQLite) DeletePendingVersion(ctx context.Context, pkg, version string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return &registry.TransientStorageError{Op: "delete pending version", Err: err}
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		DELETE FROM versions WHERE package = ? AND version = ? AND status = ?`,
		&sqlitex.ExecOptions{Args: []any{pkg, version, string(registry.StatusPending)}})
	if err != nil {
		return &registry.TransientStorageError{Op: "delete pending version", Err: err}
	}
	return nil
}

func (s *SQLite) MarkVersionBroken(ctx context.Context, pkg, version string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return &registry.TransientStorageError{Op: "mark version broken", Err: err}
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE versions SET status = ? WHERE package = ? AND version = ? AND status = ?`,
		&sqlitex.ExecOptions{Args: []any{
			string(registry.StatusBroken), pkg, version, string(registry.StatusCommitted),
		}})
	if err != nil {
		return &registry.TransientStorageError{Op: "mark version broken", Err: err}
	}
	if conn.Changes() == 0 {
		return &registry.NotFoundError{Kind: "version", Key: pkg + "@" + version}
	}
	return nil
}

const versionColumns = `package, version, status, manifest, description,
	content_hash, size, prerelease, dependencies, publisher, created_at`

func (s *SQLite) GetVersion(ctx context.Context, pkg, version string) (*registry.Version, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "get version", Err: err}
	}
	defer s.pool.Put(conn)
	return getVersion(conn, pkg, version)
}

func getVersion(conn *sqlite.Conn, pkg, version string) (*registry.Version, error) {
	var row *registry.Version
	err := sqlitex.Execute(conn,
		`SELECT `+versionColumns+` FROM versions WHERE package = ? AND version = ?`,
		&sqlitex.ExecOptions{
			Args: []any{pkg, version},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var readErr error
				row, readErr = readVersion(stmt)
				return readErr
			},
		})
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "get version", Err: err}
	}
	if row == nil {
		return nil, &registry.NotFoundError{Kind: "version", Key: pkg + "@" + version}
	}
	return row, nil
}

func (s *SQLite) ListVersions(ctx context.Context, pkg string, includePrereleases bool) ([]*registry.Version, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "list versions", Err: err}
	}
	defer s.pool.Put(conn)

	query := `SELECT ` + versionColumns + ` FROM versions
		WHERE package = ? AND status = ? ORDER BY created_at DESC, version DESC`
	if !includePrereleases {
		query = `SELECT ` + versionColumns + ` FROM versions
		WHERE package = ? AND status = ? AND prerelease = 0
		ORDER BY created_at DESC, version DESC`
	}

	var versions []*registry.Version
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{pkg, string(registry.StatusCommitted)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			row, readErr := readVersion(stmt)
			if readErr != nil {
				return readErr
			}
			versions = append(versions, row)
			return nil
		},
	})
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "list versions", Err: err}
	}
	return versions, nil
}

func (s *SQLite) CASUpdateLatest(ctx context.Context, name, expected, next string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, &registry.TransientStorageError{Op: "cas latest", Err: err}
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE packages SET latest = ? WHERE name = ? AND latest = ?`,
		&sqlitex.ExecOptions{Args: []any{next, name, expected}})
	if err != nil {
		return false, &registry.TransientStorageError{Op: "cas latest", Err: err}
	}
	return conn.Changes() > 0, nil
}

func (s *SQLite) StalePendingVersions(ctx context.Context, cutoff time.Time) ([]*registry.Version, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "stale pending scan", Err: err}
	}
	defer s.pool.Put(conn)

	var versions []*registry.Version
	err = sqlitex.Execute(conn,
		`SELECT `+versionColumns+` FROM versions WHERE status = ? AND created_at < ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(registry.StatusPending), cutoff.Unix()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row, readErr := readVersion(stmt)
				if readErr != nil {
					return readErr
				}
				versions = append(versions, row)
				return nil
			},
		})
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "stale pending scan", Err: err}
	}
	return versions, nil
}

func (s *SQLite) ReferencedHashes(ctx context.Context) (map[string]struct{}, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "blob reference scan", Err: err}
	}
	defer s.pool.Put(conn)

	hashes := make(map[string]struct{})
	err = sqlitex.Execute(conn,
		`SELECT DISTINCT content_hash FROM versions`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				hashes[stmt.ColumnText(0)] = struct{}{}
				return nil
			},
		})
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "blob reference scan", Err: err}
	}
	return hashes, nil
}

func (s *SQLite) RecordDownloadEvent(ctx context.Context, event *registry.DownloadEvent) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, &registry.TransientStorageError{Op: "record download", Err: err}
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO download_events (package, version, fingerprint, bucket, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(package, version, fingerprint, bucket) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{
			event.Package, event.Version, event.Fingerprint, event.Bucket,
			event.CreatedAt.Unix(),
		}})
	if err != nil {
		return false, &registry.TransientStorageError{Op: "record download", Err: err}
	}
	return conn.Changes() > 0, nil
}

func (s *SQLite) DownloadAggregates(ctx context.Context, previousStart, recentStart int64) ([]*registry.Aggregate, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "download aggregates", Err: err}
	}
	defer s.pool.Put(conn)

	var aggregates []*registry.Aggregate
	err = sqlitex.Execute(conn, `
		SELECT p.name,
			COUNT(e.package),
			COALESCE(SUM(CASE WHEN e.bucket >= ?2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.bucket >= ?1 AND e.bucket < ?2 THEN 1 ELSE 0 END), 0),
			p.updated_at
		FROM packages p
		LEFT JOIN download_events e ON e.package = p.name
		GROUP BY p.name`,
		&sqlitex.ExecOptions{
			Args: []any{previousStart, recentStart},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				aggregates = append(aggregates, &registry.Aggregate{
					Package:        stmt.ColumnText(0),
					TotalDownloads: stmt.ColumnInt64(1),
					RecentWindow:   stmt.ColumnInt64(2),
					PreviousWindow: stmt.ColumnInt64(3),
					LatestActivity: time.Unix(stmt.ColumnInt64(4), 0).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "download aggregates", Err: err}
	}
	return aggregates, nil
}

// readPackage decodes a row selected with packageColumns.
func readPackage(stmt *sqlite.Stmt) (*registry.Package, error) {
	keywords, err := unmarshalStrings(stmt.ColumnText(4))
	if err != nil {
		return nil, fmt.Errorf("metastore: package %s: %w", stmt.ColumnText(0), err)
	}
	return &registry.Package{
		Name:        stmt.ColumnText(0),
		Type:        registry.PackageType(stmt.ColumnText(1)),
		Owner:       stmt.ColumnText(2),
		Description: stmt.ColumnText(3),
		Keywords:    keywords,
		Latest:      stmt.ColumnText(5),
		CreatedAt:   time.Unix(stmt.ColumnInt64(6), 0).UTC(),
		UpdatedAt:   time.Unix(stmt.ColumnInt64(7), 0).UTC(),
	}, nil
}

// readVersion decodes a row selected with versionColumns.
func readVersion(stmt *sqlite.Stmt) (*registry.Version, error) {
	manifest := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, manifest)

	dependencies, err := unmarshalDependencies(stmt.ColumnText(8))
	if err != nil {
		return nil, fmt.Errorf("metastore: version %s@%s: %w",
			stmt.ColumnText(0), stmt.ColumnText(1), err)
	}

	return &registry.Version{
		Package:      stmt.ColumnText(0),
		Version:      stmt.ColumnText(1),
		Status:       registry.VersionStatus(stmt.ColumnText(2)),
		Manifest:     manifest,
		Description:  stmt.ColumnText(4),
		ContentHash:  stmt.ColumnText(5),
		Size:         stmt.ColumnInt64(6),
		Prerelease:   stmt.ColumnInt64(7) != 0,
		Dependencies: dependencies,
		Publisher:    stmt.ColumnText(9),
		CreatedAt:    time.Unix(stmt.ColumnInt64(10), 0).UTC(),
	}, nil
}

func marshalStrings(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("metastore: marshal string list: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(text), &values); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return values, nil
}

func marshalDependencies(deps []registry.Dependency) (any, error) {
	if len(deps) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(deps)
	if err != nil {
		return nil, fmt.Errorf("metastore: marshal dependencies: %w", err)
	}
	return string(data), nil
}

func unmarshalDependencies(text string) ([]registry.Dependency, error) {
	if text == "" {
		return nil, nil
	}
	var deps []registry.Dependency
	if err := json.Unmarshal([]byte(text), &deps); err != nil {
		return nil, fmt.Errorf("decode dependencies: %w", err)
	}
	return deps, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/agenthub-foundation/agenthub/lib/blobstore"
	"github.com/agenthub-foundation/agenthub/lib/codec"
	"github.com/agenthub-foundation/agenthub/lib/principal"
	"github.com/agenthub-foundation/agenthub/lib/publish"
	"github.com/agenthub-foundation/agenthub/lib/ranking"
	"github.com/agenthub-foundation/agenthub/lib/registry"
	"github.com/agenthub-foundation/agenthub/lib/semver"
	"github.com/agenthub-foundation/agenthub/lib/wire"
)

// Connection timeout constants.
const (
	// readTimeout is how long we wait for the client to send its
	// request frame. A well-behaved client sends the request
	// immediately after connecting.
	readTimeout = 30 * time.Second

	// writeTimeout is how long we wait for the response frame to be
	// written. Artifacts are embedded in frames, so this bounds the
	// whole reply.
	writeTimeout = 10 * time.Second
)

// serve starts accepting connections on the Unix socket and
// dispatches requests. Blocks until ctx is cancelled, then stops
// accepting new connections and waits for active handlers to
// complete.
func (rs *RegistryService) serve(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	rs.logger.Info("registry socket listening", "path", socketPath)

	var activeConnections sync.WaitGroup

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			rs.logger.Error("accept failed", "error", err)
			continue
		}

		activeConnections.Add(1)
		go func() {
			defer activeConnections.Done()
			rs.handleConnection(ctx, conn)
		}()
	}

	activeConnections.Wait()
	return nil
}

// handleConnection processes one client request on a connection. The
// request frame's action field selects the handler; each connection
// carries exactly one request and one response.
func (rs *RegistryService) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	raw, err := wire.ReadRawMessage(conn)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `json:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		rs.writeInvalid(conn, "action", "missing required field")
		return
	}

	switch header.Action {
	case "publish":
		rs.handlePublish(ctx, conn, raw)
	case "download":
		rs.handleDownload(ctx, conn, raw)
	case "get":
		rs.handleGet(ctx, conn, raw)
	case "get-version":
		rs.handleGetVersion(ctx, conn, raw)
	case "versions":
		rs.handleVersions(ctx, conn, raw)
	case "list":
		rs.handleList(ctx, conn, raw)
	case "search":
		rs.handleSearch(ctx, conn, raw)
	case "suggest":
		rs.handleSuggest(ctx, conn, raw)
	case "status":
		// Status is unauthenticated — pure liveness check that
		// reveals only uptime and the package count.
		rs.handleStatus(ctx, conn, raw)
	default:
		rs.writeInvalid(conn, "action", fmt.Sprintf("unknown action %q", header.Action))
	}
}

// --- Publish action ---

func (rs *RegistryService) handlePublish(ctx context.Context, conn net.Conn, raw []byte) {
	var request wire.PublishRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid publish request: %v", err))
		return
	}

	pkgType, err := registry.ParsePackageType(request.Type)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	result, err := rs.coordinator.Publish(ctx, publish.Request{
		Principal: rs.lookupPrincipal(request.Principal),
		Type:      pkgType,
		Manifest:  request.Manifest,
		Artifact:  request.Artifact,
	})
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	rs.writeResult(conn, wire.PublishResponse{
		Package: result.Package,
		Version: result.Version,
		Latest:  result.Latest,
	})
}

// lookupPrincipal maps the transport-established identity to its
// configured grants. An identity absent from the publishers map gets
// a grantless principal: the coordinator rejects its publishes with a
// permission error.
func (rs *RegistryService) lookupPrincipal(id string) *principal.Principal {
	if id == "" {
		return principal.Anonymous()
	}
	if p, ok := rs.publishers[id]; ok {
		return p
	}
	p, err := principal.New(id)
	if err != nil {
		return principal.Anonymous()
	}
	return p
}

// --- Download action ---

func (rs *RegistryService) handleDownload(ctx context.Context, conn net.Conn, raw []byte) {
	var request wire.DownloadRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid download request: %v", err))
		return
	}
	if request.Package == "" {
		rs.writeInvalid(conn, "package", "missing required field")
		return
	}

	record, err := rs.resolveVersion(ctx, request.Package, request.Version)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	hash, err := blobstore.ParseHash(record.ContentHash)
	if err != nil {
		rs.writeError(conn, fmt.Errorf("corrupt content hash for %s@%s: %w",
			record.Package, record.Version, err))
		return
	}

	data, err := rs.blobs.Get(ctx, hash)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	// Accounting is fire-and-forget: a full queue or a failed write
	// never fails the download response.
	rs.downloads.Record(record.Package, record.Version, request.Fingerprint)

	rs.writeResult(conn, wire.DownloadResponse{
		Package:     record.Package,
		Version:     record.Version,
		ContentHash: record.ContentHash,
		Data:        data,
	})
}

// resolveVersion maps a version selector to a committed version row.
// An empty selector means the package's latest pointer; an exact
// version is looked up directly; anything else is parsed as a
// constraint and resolved to the highest satisfying committed
// version.
func (rs *RegistryService) resolveVersion(ctx context.Context, pkg, selector string) (*registry.Version, error) {
	if selector == "" {
		record, err := rs.meta.GetPackage(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if record.Latest == "" {
			return nil, &registry.NotFoundError{Kind: "version", Key: pkg + " (no published version)"}
		}
		selector = record.Latest
	}

	if _, err := semver.Parse(selector); err == nil {
		record, err := rs.meta.GetVersion(ctx, pkg, selector)
		if err != nil {
			return nil, err
		}
		if record.Status != registry.StatusCommitted {
			return nil, &registry.NotFoundError{Kind: "version", Key: pkg + "@" + selector}
		}
		return record, nil
	}

	constraint, err := semver.ParseConstraint(selector)
	if err != nil {
		return nil, &registry.ValidationError{Violations: []registry.Violation{{
			Field:  "version",
			Reason: fmt.Sprintf("%q is neither a version nor a constraint: %v", selector, err),
		}}}
	}

	// Pre-releases are listed but only match constraints that name a
	// pre-release themselves, so a plain "^1.2.0" never resolves to
	// "1.3.0-rc.1".
	versions, err := rs.meta.ListVersions(ctx, pkg, true)
	if err != nil {
		return nil, err
	}

	byParsed := make(map[*semver.Version]*registry.Version, len(versions))
	candidates := make([]*semver.Version, 0, len(versions))
	for _, row := range versions {
		parsed, err := semver.Parse(row.Version)
		if err != nil {
			continue
		}
		byParsed[parsed] = row
		candidates = append(candidates, parsed)
	}

	best := semver.MaxSatisfying(candidates, constraint)
	if best == nil {
		return nil, &registry.NotFoundError{Kind: "version", Key: pkg + "@" + selector}
	}
	return byParsed[best], nil
}

// --- Metadata actions ---

func (rs *RegistryService) handleGet(ctx context.Context, conn net.Conn, raw []byte) {
	var request wire.GetRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid get request: %v", err))
		return
	}
	if request.Package == "" {
		rs.writeInvalid(conn, "package", "missing required field")
		return
	}

	record, err := rs.meta.GetPackage(ctx, request.Package)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	rs.writeResult(conn, wire.PackageInfoFrom(record))
}

func (rs *RegistryService) handleGetVersion(ctx context.Context, conn net.Conn, raw []byte) {
	var request wire.GetRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid get-version request: %v", err))
		return
	}
	if request.Package == "" {
		rs.writeInvalid(conn, "package", "missing required field")
		return
	}
	if request.Version == "" {
		rs.writeInvalid(conn, "version", "missing required field")
		return
	}

	record, err := rs.meta.GetVersion(ctx, request.Package, request.Version)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	rs.writeResult(conn, wire.VersionInfoFrom(record, true))
}

func (rs *RegistryService) handleVersions(ctx context.Context, conn net.Conn, raw []byte) {
	var request wire.VersionsRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid versions request: %v", err))
		return
	}
	if request.Package == "" {
		rs.writeInvalid(conn, "package", "missing required field")
		return
	}

	// Confirm the package exists so an unknown name reports
	// not-found instead of an empty listing.
	if _, err := rs.meta.GetPackage(ctx, request.Package); err != nil {
		rs.writeError(conn, err)
		return
	}

	versions, err := rs.meta.ListVersions(ctx, request.Package, request.IncludePrereleases)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	infos := make([]wire.VersionInfo, len(versions))
	for i, record := range versions {
		infos[i] = wire.VersionInfoFrom(record, false)
	}

	rs.writeResult(conn, wire.VersionsResponse{
		Package:  request.Package,
		Versions: infos,
	})
}

// --- List action ---

func (rs *RegistryService) handleList(ctx context.Context, conn net.Conn, raw []byte) {
	var request wire.ListRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid list request: %v", err))
		return
	}

	view, err := ranking.ParseView(request.View)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	filter, err := typeFilter(request.Type)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	entries, err := rs.ranking.List(ctx, view, filter, request.Limit)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	rows := make([]wire.ListEntry, len(entries))
	for i, entry := range entries {
		rows[i] = wire.ListEntry{
			Package:        wire.PackageInfoFrom(entry.Package),
			TotalDownloads: entry.TotalDownloads,
			RecentWindow:   entry.RecentWindow,
			TrendingScore:  entry.TrendingScore,
		}
	}

	rs.writeResult(conn, wire.ListResponse{
		View:    string(view),
		Entries: rows,
	})
}

// --- Search action ---

func (rs *RegistryService) handleSearch(ctx context.Context, conn net.Conn, raw []byte) {
	var request wire.SearchRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid search request: %v", err))
		return
	}
	if request.Query == "" {
		rs.writeInvalid(conn, "query", "missing required field")
		return
	}

	filter, err := typeFilter(request.Type)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	results, err := rs.search.Search(ctx, request.Query, filter, request.Limit)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	hits := make([]wire.SearchResult, len(results))
	for i, result := range results {
		hits[i] = wire.SearchResult{
			Package: wire.PackageInfoFrom(result.Package),
			Score:   result.Score,
		}
	}

	rs.writeResult(conn, wire.SearchResponse{
		Query:   request.Query,
		Results: hits,
	})
}

// --- Suggest action ---

func (rs *RegistryService) handleSuggest(ctx context.Context, conn net.Conn, raw []byte) {
	var request wire.SuggestRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		rs.writeInvalid(conn, "", fmt.Sprintf("invalid suggest request: %v", err))
		return
	}
	if request.Prefix == "" {
		rs.writeInvalid(conn, "prefix", "missing required field")
		return
	}

	names, err := rs.search.Suggest(ctx, request.Prefix, request.Limit)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	rs.writeResult(conn, wire.SuggestResponse{
		Prefix: request.Prefix,
		Names:  names,
	})
}

// --- Status action ---

func (rs *RegistryService) handleStatus(ctx context.Context, conn net.Conn, raw []byte) {
	packages, err := rs.meta.ListPackages(ctx, nil, 0)
	if err != nil {
		rs.writeError(conn, err)
		return
	}

	uptime := rs.clock.Now().Sub(rs.startedAt)

	rs.writeResult(conn, wire.StatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(uptime.Seconds()),
		Packages:      len(packages),
	})
}

// typeFilter parses an optional package type filter. Empty means no
// filter.
func typeFilter(s string) (*registry.PackageType, error) {
	if s == "" {
		return nil, nil
	}
	pkgType, err := registry.ParsePackageType(s)
	if err != nil {
		return nil, err
	}
	return &pkgType, nil
}

// --- Wire helpers ---

// writeError sends an ErrorResponse carrying the error's wire kind so
// clients can distinguish bad input, conflicts, and retryable
// failures without parsing message text.
func (rs *RegistryService) writeError(conn net.Conn, sendErr error) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	response := wire.ErrorResponse{
		Error: sendErr.Error(),
		Kind:  wire.KindOf(sendErr),
	}
	if err := wire.WriteMessage(conn, response); err != nil {
		rs.logger.Debug("failed to write error response", "error", err)
	}
}

// writeInvalid reports a malformed request as a validation error.
func (rs *RegistryService) writeInvalid(conn net.Conn, field, reason string) {
	rs.writeError(conn, &registry.ValidationError{Violations: []registry.Violation{{
		Field:  field,
		Reason: reason,
	}}})
}

// writeResult sends a success result to the client. The value is
// encoded directly as a CBOR message — no wrapping envelope.
func (rs *RegistryService) writeResult(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := wire.WriteMessage(conn, result); err != nil {
		rs.logger.Debug("failed to write result", "error", err)
	}
}

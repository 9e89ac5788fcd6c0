// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agenthub-foundation/agenthub/lib/blobstore"
	"github.com/agenthub-foundation/agenthub/lib/clock"
	"github.com/agenthub-foundation/agenthub/lib/codec"
	"github.com/agenthub-foundation/agenthub/lib/downloads"
	"github.com/agenthub-foundation/agenthub/lib/metastore"
	"github.com/agenthub-foundation/agenthub/lib/publish"
	"github.com/agenthub-foundation/agenthub/lib/ranking"
	"github.com/agenthub-foundation/agenthub/lib/search"
	"github.com/agenthub-foundation/agenthub/lib/wire"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type serviceFixture struct {
	service *RegistryService
	meta    metastore.Store
	clk     *clock.FakeClock
}

// testService creates a RegistryService backed by a real SQLite
// metastore and an in-memory blob store. The socket listener is not
// started — tests drive handleConnection directly over a net.Pipe.
func testService(t *testing.T) *serviceFixture {
	t.Helper()

	meta, err := metastore.Open(metastore.Config{
		Path: filepath.Join(t.TempDir(), "registry.db"),
	})
	if err != nil {
		t.Fatalf("metastore.Open: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	clk := clock.Fake(testEpoch)
	blobs := blobstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	searchIndex, err := search.NewIndex(search.Config{Store: meta})
	if err != nil {
		t.Fatalf("search.NewIndex: %v", err)
	}

	engine, err := ranking.NewEngine(ranking.Config{
		Store: meta,
		Clock: clk,
	})
	if err != nil {
		t.Fatalf("ranking.NewEngine: %v", err)
	}

	recorder, err := downloads.NewRecorder(downloads.Config{
		Store:      meta,
		Clock:      clk,
		RetryDelay: time.Nanosecond,
		OnCounted:  engine.Notify,
	})
	if err != nil {
		t.Fatalf("downloads.NewRecorder: %v", err)
	}
	t.Cleanup(recorder.Close)

	coordinator, err := publish.NewCoordinator(publish.Config{
		Meta:              meta,
		Blobs:             blobs,
		Clock:             clk,
		RetryInitialDelay: time.Nanosecond,
		OnPublished: func(pkg string) {
			engine.Notify(pkg)
			searchIndex.Invalidate()
		},
	})
	if err != nil {
		t.Fatalf("publish.NewCoordinator: %v", err)
	}

	publishers, err := buildPublishers(map[string][]string{
		"publisher:alice":  {"*"},
		"publisher:ci-bot": {"acme-*"},
	})
	if err != nil {
		t.Fatalf("buildPublishers: %v", err)
	}

	return &serviceFixture{
		service: &RegistryService{
			meta:        meta,
			blobs:       blobs,
			coordinator: coordinator,
			search:      searchIndex,
			ranking:     engine,
			downloads:   recorder,
			publishers:  publishers,
			clock:       clk,
			startedAt:   clk.Now(),
			logger:      logger,
		},
		meta: meta,
		clk:  clk,
	}
}

// roundtrip runs one request through handleConnection over a
// net.Pipe and returns the raw response frame. net.Pipe is
// synchronous, so the response must be read before waiting for the
// handler goroutine to exit.
func (f *serviceFixture) roundtrip(t *testing.T, request any) []byte {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	var done sync.WaitGroup
	done.Add(1)
	go func() {
		defer done.Done()
		f.service.handleConnection(context.Background(), serverConn)
	}()
	defer func() {
		clientConn.Close()
		done.Wait()
	}()

	if err := wire.WriteMessage(clientConn, request); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	raw, err := wire.ReadRawMessage(clientConn)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return raw
}

// do sends the request and decodes a success response, failing the
// test if the service replied with an error.
func (f *serviceFixture) do(t *testing.T, request, response any) {
	t.Helper()
	raw := f.roundtrip(t, request)

	var failure wire.ErrorResponse
	if err := codec.Unmarshal(raw, &failure); err == nil && failure.Error != "" {
		t.Fatalf("request failed: %s (kind %s)", failure.Error, failure.Kind)
	}
	if err := codec.Unmarshal(raw, response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

// doExpectError sends the request and decodes the error response.
func (f *serviceFixture) doExpectError(t *testing.T, request any) wire.ErrorResponse {
	t.Helper()
	raw := f.roundtrip(t, request)

	var failure wire.ErrorResponse
	if err := codec.Unmarshal(raw, &failure); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if failure.Error == "" {
		t.Fatal("expected an error response, got success")
	}
	return failure
}

func toolManifest(name, version, description string, keywords []string) []byte {
	return []byte(fmt.Sprintf(`name: %s
version: %s
description: %s
author: Acme Robotics
keywords: [%s]
tool:
  entrypoint: ./bin/run
  arguments:
    - name: input
      type: string
      description: input value
      required: true
`, name, version, description, strings.Join(keywords, ", ")))
}

func (f *serviceFixture) publishTool(t *testing.T, name, version string, artifact []byte) wire.PublishResponse {
	t.Helper()
	var response wire.PublishResponse
	f.do(t, wire.PublishRequest{
		Action:    "publish",
		Principal: "publisher:alice",
		Type:      "tool",
		Manifest:  toolManifest(name, version, "Fetch web pages and extract structured content", []string{"http", "scraping"}),
		Artifact:  artifact,
	}, &response)
	return response
}

// --- Publish and metadata actions ---

func TestPublishAndGetRoundtrip(t *testing.T) {
	f := testService(t)
	artifact := []byte("scraper artifact bytes v0.5.0")

	published := f.publishTool(t, "web-scraper", "0.5.0", artifact)
	if published.Version != "0.5.0" {
		t.Errorf("version = %q, want 0.5.0", published.Version)
	}
	if published.Latest != "0.5.0" {
		t.Errorf("latest = %q, want 0.5.0", published.Latest)
	}

	var pkg wire.PackageInfo
	f.do(t, wire.GetRequest{Action: "get", Package: "web-scraper"}, &pkg)
	if pkg.Type != "tool" {
		t.Errorf("type = %q, want tool", pkg.Type)
	}
	if pkg.Owner != "publisher:alice" {
		t.Errorf("owner = %q, want publisher:alice", pkg.Owner)
	}
	if pkg.Latest != "0.5.0" {
		t.Errorf("latest = %q, want 0.5.0", pkg.Latest)
	}

	var version wire.VersionInfo
	f.do(t, wire.GetRequest{Action: "get-version", Package: "web-scraper", Version: "0.5.0"}, &version)
	if version.Status != "committed" {
		t.Errorf("status = %q, want committed", version.Status)
	}
	if version.Size != int64(len(artifact)) {
		t.Errorf("size = %d, want %d", version.Size, len(artifact))
	}
	if len(version.Manifest) == 0 {
		t.Error("get-version should include the manifest bytes")
	}
}

func TestPublishRejectsUnknownPrincipal(t *testing.T) {
	f := testService(t)

	failure := f.doExpectError(t, wire.PublishRequest{
		Action:    "publish",
		Principal: "publisher:mallory",
		Type:      "tool",
		Manifest:  toolManifest("web-scraper", "1.0.0", "A scraper", []string{"http"}),
		Artifact:  []byte("bytes"),
	})
	if failure.Kind != wire.KindPermission {
		t.Errorf("kind = %q, want %q", failure.Kind, wire.KindPermission)
	}
}

func TestPublishRejectsUnknownType(t *testing.T) {
	f := testService(t)

	failure := f.doExpectError(t, wire.PublishRequest{
		Action:    "publish",
		Principal: "publisher:alice",
		Type:      "plugin",
		Manifest:  toolManifest("web-scraper", "1.0.0", "A scraper", []string{"http"}),
		Artifact:  []byte("bytes"),
	})
	if failure.Kind != wire.KindValidation {
		t.Errorf("kind = %q, want %q", failure.Kind, wire.KindValidation)
	}
}

// --- Download action ---

func TestDownloadResolvesSelectors(t *testing.T) {
	f := testService(t)

	oldest := []byte("artifact 1.0.0")
	middle := []byte("artifact 1.1.0")
	newest := []byte("artifact 2.0.0")
	f.publishTool(t, "web-scraper", "1.0.0", oldest)
	f.publishTool(t, "web-scraper", "1.1.0", middle)
	f.publishTool(t, "web-scraper", "2.0.0", newest)

	// Empty selector resolves the latest pointer.
	var response wire.DownloadResponse
	f.do(t, wire.DownloadRequest{Action: "download", Package: "web-scraper", Fingerprint: "client-a"}, &response)
	if response.Version != "2.0.0" {
		t.Errorf("latest download version = %q, want 2.0.0", response.Version)
	}
	if !bytes.Equal(response.Data, newest) {
		t.Error("latest download bytes do not match published artifact")
	}

	// Exact version.
	f.do(t, wire.DownloadRequest{Action: "download", Package: "web-scraper", Version: "1.0.0", Fingerprint: "client-a"}, &response)
	if !bytes.Equal(response.Data, oldest) {
		t.Error("exact download bytes do not match published artifact")
	}

	// Constraint resolves to the highest satisfying version.
	f.do(t, wire.DownloadRequest{Action: "download", Package: "web-scraper", Version: "^1.0", Fingerprint: "client-a"}, &response)
	if response.Version != "1.1.0" {
		t.Errorf("constraint download version = %q, want 1.1.0", response.Version)
	}

	// Unsatisfiable constraint reports not-found.
	failure := f.doExpectError(t, wire.DownloadRequest{Action: "download", Package: "web-scraper", Version: "^3.0", Fingerprint: "client-a"})
	if failure.Kind != wire.KindNotFound {
		t.Errorf("kind = %q, want %q", failure.Kind, wire.KindNotFound)
	}
}

func TestDownloadUnknownPackage(t *testing.T) {
	f := testService(t)

	failure := f.doExpectError(t, wire.DownloadRequest{Action: "download", Package: "no-such-package", Fingerprint: "client-a"})
	if failure.Kind != wire.KindNotFound {
		t.Errorf("kind = %q, want %q", failure.Kind, wire.KindNotFound)
	}
}

// --- Versions action ---

func TestVersionsPrereleaseFilter(t *testing.T) {
	f := testService(t)
	f.publishTool(t, "web-scraper", "1.0.0", []byte("stable"))
	f.publishTool(t, "web-scraper", "1.1.0-rc.1", []byte("candidate"))

	var response wire.VersionsResponse
	f.do(t, wire.VersionsRequest{Action: "versions", Package: "web-scraper"}, &response)
	if len(response.Versions) != 1 || response.Versions[0].Version != "1.0.0" {
		t.Fatalf("default versions = %v, want [1.0.0]", response.Versions)
	}

	f.do(t, wire.VersionsRequest{Action: "versions", Package: "web-scraper", IncludePrereleases: true}, &response)
	if len(response.Versions) != 2 {
		t.Fatalf("versions with prereleases = %d entries, want 2", len(response.Versions))
	}
	if response.Versions[0].Version != "1.1.0-rc.1" {
		t.Errorf("first version = %q, want newest first (1.1.0-rc.1)", response.Versions[0].Version)
	}
}

// --- Search action ---

func TestSearchOverSocket(t *testing.T) {
	f := testService(t)
	f.publishTool(t, "web-scraper", "1.0.0", []byte("scraper"))

	var other wire.PublishResponse
	f.do(t, wire.PublishRequest{
		Action:    "publish",
		Principal: "publisher:alice",
		Type:      "tool",
		Manifest:  toolManifest("sql-runner", "1.0.0", "Execute SQL statements against a database", []string{"sql", "database"}),
		Artifact:  []byte("runner"),
	}, &other)

	var response wire.SearchResponse
	f.do(t, wire.SearchRequest{Action: "search", Query: "scraping", Type: "tool"}, &response)
	if len(response.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(response.Results))
	}
	if response.Results[0].Package.Name != "web-scraper" {
		t.Errorf("top result = %q, want web-scraper", response.Results[0].Package.Name)
	}
	if response.Results[0].Score <= 0 {
		t.Errorf("score = %f, want > 0", response.Results[0].Score)
	}
}

func TestSuggestOverSocket(t *testing.T) {
	f := testService(t)
	f.publishTool(t, "web-scraper", "1.0.0", []byte("scraper"))
	f.publishTool(t, "web-archiver", "1.0.0", []byte("archiver"))
	f.publishTool(t, "sql-runner", "1.0.0", []byte("runner"))

	var response wire.SuggestResponse
	f.do(t, wire.SuggestRequest{Action: "suggest", Prefix: "web"}, &response)
	if len(response.Names) != 2 {
		t.Fatalf("names = %v, want the two web- packages", response.Names)
	}
	if response.Names[0] != "web-archiver" || response.Names[1] != "web-scraper" {
		t.Errorf("names = %v, want [web-archiver web-scraper]", response.Names)
	}

	failure := f.doExpectError(t, wire.SuggestRequest{Action: "suggest"})
	if failure.Kind != wire.KindValidation {
		t.Errorf("kind = %q, want %q", failure.Kind, wire.KindValidation)
	}
}

// --- Status and routing ---

func TestStatusAction(t *testing.T) {
	f := testService(t)
	f.publishTool(t, "web-scraper", "1.0.0", []byte("bytes"))
	f.clk.Advance(90 * time.Second)

	var response wire.StatusResponse
	f.do(t, wire.StatusRequest{Action: "status"}, &response)
	if response.Status != "ok" {
		t.Errorf("status = %q, want ok", response.Status)
	}
	if response.Packages != 1 {
		t.Errorf("packages = %d, want 1", response.Packages)
	}
	if response.UptimeSeconds != 90 {
		t.Errorf("uptime = %d, want 90", response.UptimeSeconds)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	f := testService(t)

	failure := f.doExpectError(t, wire.StatusRequest{Action: "frobnicate"})
	if failure.Kind != wire.KindValidation {
		t.Errorf("kind = %q, want %q", failure.Kind, wire.KindValidation)
	}
	if !strings.Contains(failure.Error, "frobnicate") {
		t.Errorf("error %q should name the unknown action", failure.Error)
	}
}

// --- End-to-end scenario ---

// TestRegistryScenario walks the canonical publish/download sequence:
// publish 0.5.0, then 0.4.0 (latest stays put), re-publish 0.5.0 with
// different bytes (write-once conflict), then ten downloads from one
// client in one bucket count exactly once toward the popular view.
func TestRegistryScenario(t *testing.T) {
	f := testService(t)

	published := f.publishTool(t, "web-scraper", "0.5.0", []byte("v0.5.0 bytes"))
	if published.Latest != "0.5.0" {
		t.Fatalf("latest after 0.5.0 = %q, want 0.5.0", published.Latest)
	}

	published = f.publishTool(t, "web-scraper", "0.4.0", []byte("v0.4.0 bytes"))
	if published.Latest != "0.5.0" {
		t.Fatalf("latest after 0.4.0 = %q, want 0.5.0", published.Latest)
	}

	failure := f.doExpectError(t, wire.PublishRequest{
		Action:    "publish",
		Principal: "publisher:alice",
		Type:      "tool",
		Manifest:  toolManifest("web-scraper", "0.5.0", "Fetch web pages and extract structured content", []string{"http", "scraping"}),
		Artifact:  []byte("different bytes"),
	})
	if failure.Kind != wire.KindConflict {
		t.Fatalf("re-publish kind = %q, want %q", failure.Kind, wire.KindConflict)
	}

	// Ten raw downloads from one client in one dedup bucket.
	for i := 0; i < 10; i++ {
		var response wire.DownloadResponse
		f.do(t, wire.DownloadRequest{
			Action:      "download",
			Package:     "web-scraper",
			Version:     "0.5.0",
			Fingerprint: "client-1",
		}, &response)
		if !bytes.Equal(response.Data, []byte("v0.5.0 bytes")) {
			t.Fatal("download bytes do not match published artifact")
		}
	}

	// Drain the accounting queue so every event has been written and
	// deduplicated before the popular view is recomputed.
	f.service.downloads.Close()
	if err := f.service.ranking.Recompute(context.Background()); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	var listing wire.ListResponse
	f.do(t, wire.ListRequest{Action: "list", View: "popular"}, &listing)
	if len(listing.Entries) == 0 {
		t.Fatal("popular view is empty")
	}
	for _, entry := range listing.Entries {
		if entry.Package.Name != "web-scraper" {
			continue
		}
		if entry.TotalDownloads != 1 {
			t.Errorf("total downloads = %d, want exactly 1", entry.TotalDownloads)
		}
		return
	}
	t.Fatal("web-scraper missing from popular view")
}

// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"time"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// Error kinds carried in ErrorResponse.Kind. They mirror the registry
// error taxonomy so clients can decide whether to fix input, retry, or
// give up without parsing message text.
const (
	KindValidation        = "validation"
	KindConflict          = "conflict"
	KindPublishInProgress = "publish-in-progress"
	KindPermission        = "permission"
	KindNotFound          = "not-found"
	KindTransient         = "transient"
	KindIntegrity         = "integrity"
	KindInternal          = "internal"
)

// KindOf maps an error to its wire kind.
func KindOf(err error) string {
	var (
		validation *registry.ValidationError
		conflict   *registry.ConflictError
		inProgress *registry.PublishInProgressError
		permission *registry.PermissionError
		notFound   *registry.NotFoundError
		transient  *registry.TransientStorageError
		integrity  *registry.IntegrityError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &inProgress):
		return KindPublishInProgress
	case errors.As(err, &permission):
		return KindPermission
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &transient):
		return KindTransient
	case errors.As(err, &integrity):
		return KindIntegrity
	default:
		return KindInternal
	}
}

// ErrorResponse is the failure reply for any action.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// PublishRequest publishes one version: the raw manifest document
// plus the artifact payload. The principal is established by the
// transport (socket peer) and names the publisher; the service maps
// it to its configured grants.
type PublishRequest struct {
	Action    string `json:"action"` // "publish"
	Principal string `json:"principal"`
	Type      string `json:"type"`
	Manifest  []byte `json:"manifest"`
	Artifact  []byte `json:"artifact"`
}

// PublishResponse reports a successful publish.
type PublishResponse struct {
	Package string `json:"package"`
	Version string `json:"version"`
	Latest  string `json:"latest"`
}

// DownloadRequest fetches artifact bytes. Version may be empty (the
// latest pointer), an exact version, or a constraint expression such
// as "^1.2.0"; constraints resolve to the highest satisfying
// committed version. Fingerprint identifies the client for download
// deduplication and is never interpreted beyond that.
type DownloadRequest struct {
	Action      string `json:"action"` // "download"
	Package     string `json:"package"`
	Version     string `json:"version,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// DownloadResponse carries the artifact.
type DownloadResponse struct {
	Package     string `json:"package"`
	Version     string `json:"version"`
	ContentHash string `json:"content_hash"`
	Data        []byte `json:"data"`
}

// GetRequest fetches package metadata ("get") or one version's
// record ("get-version").
type GetRequest struct {
	Action  string `json:"action"` // "get" | "get-version"
	Package string `json:"package"`
	Version string `json:"version,omitempty"`
}

// VersionsRequest lists a package's committed versions, newest
// first. Pre-releases are excluded unless requested.
type VersionsRequest struct {
	Action             string `json:"action"` // "versions"
	Package            string `json:"package"`
	IncludePrereleases bool   `json:"include_prereleases,omitempty"`
}

// ListRequest returns a ranked view of the catalog.
type ListRequest struct {
	Action string `json:"action"` // "list"
	View   string `json:"view"`   // "popular" | "recent" | "trending"
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// SearchRequest runs a free-text relevance query.
type SearchRequest struct {
	Action string `json:"action"` // "search"
	Query  string `json:"query"`
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// SuggestRequest completes a partial package name for interactive
// clients.
type SuggestRequest struct {
	Action string `json:"action"` // "suggest"
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit,omitempty"`
}

// SuggestResponse lists package names matching the prefix: direct
// name matches first, then keyword matches.
type SuggestResponse struct {
	Prefix string   `json:"prefix"`
	Names  []string `json:"names"`
}

// StatusRequest is the unauthenticated liveness probe.
type StatusRequest struct {
	Action string `json:"action"` // "status"
}

// PackageInfo is the wire form of a package record.
type PackageInfo struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Owner       string    `json:"owner"`
	Description string    `json:"description,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Latest      string    `json:"latest,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VersionInfo is the wire form of a version record. Manifest carries
// the document bytes exactly as published.
type VersionInfo struct {
	Package      string           `json:"package"`
	Version      string           `json:"version"`
	Status       string           `json:"status"`
	Description  string           `json:"description,omitempty"`
	ContentHash  string           `json:"content_hash"`
	Size         int64            `json:"size"`
	Prerelease   bool             `json:"prerelease,omitempty"`
	Dependencies []DependencyInfo `json:"dependencies,omitempty"`
	Manifest     []byte           `json:"manifest,omitempty"`
	Publisher    string           `json:"publisher"`
	CreatedAt    time.Time        `json:"created_at"`
}

// DependencyInfo is one declared (name, constraint) pair.
type DependencyInfo struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

// VersionsResponse lists version records, newest first.
type VersionsResponse struct {
	Package  string        `json:"package"`
	Versions []VersionInfo `json:"versions"`
}

// ListEntry is one row of a ranked view.
type ListEntry struct {
	Package        PackageInfo `json:"package"`
	TotalDownloads int64       `json:"total_downloads"`
	RecentWindow   int64       `json:"recent_window,omitempty"`
	TrendingScore  float64     `json:"trending_score,omitempty"`
}

// ListResponse is the reply to a list action.
type ListResponse struct {
	View    string      `json:"view"`
	Entries []ListEntry `json:"entries"`
}

// SearchResult is one search hit.
type SearchResult struct {
	Package PackageInfo `json:"package"`
	Score   float64     `json:"score"`
}

// SearchResponse is the reply to a search action.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// StatusResponse reports liveness. It reveals only uptime and gross
// catalog counts.
type StatusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Packages      int    `json:"packages"`
}

// PackageInfoFrom converts a registry package record to wire form.
func PackageInfoFrom(pkg *registry.Package) PackageInfo {
	return PackageInfo{
		Name:        pkg.Name,
		Type:        string(pkg.Type),
		Owner:       pkg.Owner,
		Description: pkg.Description,
		Keywords:    pkg.Keywords,
		Latest:      pkg.Latest,
		CreatedAt:   pkg.CreatedAt,
		UpdatedAt:   pkg.UpdatedAt,
	}
}

// VersionInfoFrom converts a registry version record to wire form.
// The manifest is included only when includeManifest is set; list
// replies omit it to keep frames small.
func VersionInfoFrom(v *registry.Version, includeManifest bool) VersionInfo {
	info := VersionInfo{
		Package:     v.Package,
		Version:     v.Version,
		Status:      string(v.Status),
		Description: v.Description,
		ContentHash: v.ContentHash,
		Size:        v.Size,
		Prerelease:  v.Prerelease,
		Publisher:   v.Publisher,
		CreatedAt:   v.CreatedAt,
	}
	if includeManifest {
		info.Manifest = v.Manifest
	}
	for _, d := range v.Dependencies {
		info.Dependencies = append(info.Dependencies, DependencyInfo{
			Name:       d.Name,
			Constraint: d.Constraint,
		})
	}
	return info
}

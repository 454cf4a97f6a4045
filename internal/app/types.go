package app

import "github.com/opencontainers/go-digest"

type CleanupRequest struct {
	Owner            string
	Token            string
	Packages         []string
	Only             []string
	Keep             int
	DryRun           bool
	IgnoreSkipTagged bool
	PageSize         int
	PaceMs           int
	APIBaseURL       string
	RegistryBaseURL  string
	HTTPTimeoutSec   int
	ReportPath       string
}

type PackageCleanupSummary struct {
	Package   string
	Retained  []int64
	Protected []int64
	Queued    []int64
}

type CleanupResult struct {
	DryRun         bool
	Deleted        int
	QueuedURLs     []string
	ExcludedLayers []digest.Digest
	Packages       []PackageCleanupSummary
}

type ListRequest struct {
	Owner          string
	Token          string
	Packages       []string
	PageSize       int
	APIBaseURL     string
	HTTPTimeoutSec int
}

type ListedVersion struct {
	Package   string
	ID        int64
	Tags      []string
	Protected bool
}

type ListResult struct {
	Versions []ListedVersion
}

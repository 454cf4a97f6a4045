package types

import "time"

// CleanupReport is the YAML document written by the optional report
// output of a cleanup run.
type CleanupReport struct {
	GeneratedAt    time.Time       `yaml:"generated_at"`
	Owner          string          `yaml:"owner"`
	Keep           int             `yaml:"keep"`
	DryRun         bool            `yaml:"dry_run"`
	Packages       []PackageReport `yaml:"packages"`
	ExcludedLayers []string        `yaml:"excluded_layers,omitempty"`
	QueuedURLs     []string        `yaml:"queued_urls,omitempty"`
	Deleted        int             `yaml:"deleted"`
}

type PackageReport struct {
	Name      string  `yaml:"name"`
	Retained  []int64 `yaml:"retained,omitempty"`
	Protected []int64 `yaml:"protected,omitempty"`
	Queued    []int64 `yaml:"queued,omitempty"`
}

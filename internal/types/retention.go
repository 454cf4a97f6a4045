package types

import "time"

// PackageVersion is one stored instance of a container image within a
// named package repository. Versions are immutable once fetched; IDs
// are opaque ordinals that increase with creation order.
type PackageVersion struct {
	Package   string
	ID        int64
	Tags      []string
	CreatedAt time.Time
}

type RetentionPolicy struct {
	Keep             int
	DryRun           bool
	IgnoreSkipTagged bool
}

// RetentionPlan classifies the versions of one listing page.
// Retained versions are kept by the count rule, Protected versions are
// kept by the tag rule (and contribute layer digests to the exclusion
// set), Delete versions are queued for removal.
type RetentionPlan struct {
	Retained  []PackageVersion
	Protected []PackageVersion
	Delete    []PackageVersion
}

func (p *RetentionPlan) Merge(other RetentionPlan) {
	p.Retained = append(p.Retained, other.Retained...)
	p.Protected = append(p.Protected, other.Protected...)
	p.Delete = append(p.Delete, other.Delete...)
}

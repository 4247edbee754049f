package database

import (
	"context"
	"slices"
)

// RunDiff describes how the pages of two runs differ.
// All URL lists are sorted.
type RunDiff struct {
	// Added lists URLs recorded only by the newer run.
	Added []string

	// Removed lists URLs recorded only by the older run.
	Removed []string

	// Changed lists URLs recorded by both runs whose content hash differs.
	Changed []string

	// Unchanged counts URLs recorded by both runs with the same hash.
	Unchanged int
}

// Empty reports whether the runs recorded the same URLs with the same content.
func (d *RunDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// CompareRuns diffs the pages recorded by oldID against those of newID.
func (cdb *CrawlDB) CompareRuns(ctx context.Context, oldID, newID string) (*RunDiff, error) {
	oldPages, err := cdb.RunPages(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newPages, err := cdb.RunPages(ctx, newID)
	if err != nil {
		return nil, err
	}
	return DiffPages(oldPages, newPages), nil
}

// DiffPages compares two URL to hash mappings.
func DiffPages(oldPages, newPages map[string]string) *RunDiff {
	d := &RunDiff{}
	for url, newHash := range newPages {
		oldHash, ok := oldPages[url]
		switch {
		case !ok:
			d.Added = append(d.Added, url)
		case oldHash != newHash:
			d.Changed = append(d.Changed, url)
		default:
			d.Unchanged++
		}
	}
	for url := range oldPages {
		if _, ok := newPages[url]; !ok {
			d.Removed = append(d.Removed, url)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	return d
}

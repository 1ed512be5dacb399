package service

import (
	"context"
	"sort"
	"time"
)

// DefaultPruneGrace covers an upload between writing its file and
// inserting its document row.
const DefaultPruneGrace = 10 * time.Minute

type Report struct {
	// OrphanFiles are stored files no document references.
	OrphanFiles []string `json:"orphan_files"`
	// MissingFiles are storage keys referenced by a document whose file is gone.
	MissingFiles []string `json:"missing_files"`
	Pruned       int      `json:"pruned"`
	// Recent counts orphans left in place because they are younger than
	// the grace period.
	Recent int `json:"recent"`
}

// Reconcile compares the upload directory with document rows. With prune
// set, orphan files last modified more than grace ago are removed.
func (s *DocumentService) Reconcile(ctx context.Context, prune bool, grace time.Duration) (Report, error) {
	rep := Report{OrphanFiles: []string{}, MissingFiles: []string{}}
	onDisk, err := s.disk.List()
	if err != nil {
		return rep, err
	}
	referenced, err := s.repo.ListStorageKeys(ctx)
	if err != nil {
		return rep, err
	}

	known := make(map[string]bool, len(referenced))
	for _, k := range referenced {
		known[k] = true
		if !s.disk.Exists(k) {
			rep.MissingFiles = append(rep.MissingFiles, k)
		}
	}
	cutoff := time.Now().Add(-grace)
	for _, f := range onDisk {
		if known[f.Key] {
			continue
		}
		rep.OrphanFiles = append(rep.OrphanFiles, f.Key)
		if !prune {
			continue
		}
		if f.ModTime.After(cutoff) {
			rep.Recent++
			continue
		}
		if err := s.disk.Remove(f.Key); err != nil {
			s.log.Warnf("prune %s: %v", f.Key, err)
			continue
		}
		rep.Pruned++
	}
	sort.Strings(rep.MissingFiles)
	return rep, nil
}

package core

import (
	"context"
	"eegrecords/internal/blob"
	"errors"
	"time"
)

// DefaultOrphanMinAge keeps the orphan sweep away from bytes written by a
// transaction that is still running.
const DefaultOrphanMinAge = time.Hour

// FindOrphanFiles lists stored objects that no result file or analysis
// visualization references. Objects modified less than minAge ago are
// skipped. Ages use the wall clock because backends stamp objects with it.
func (s *Service) FindOrphanFiles(ctx context.Context, minAge time.Duration) ([]blob.Info, error) {
	var orphans []blob.Info
	err := s.run(ctx, "find_orphan_files", func(ctx context.Context) error {
		var err error
		orphans, err = s.findOrphans(ctx, minAge)
		return err
	})
	return orphans, err
}

// RemoveOrphanFiles deletes the objects FindOrphanFiles reports and returns
// the ones it removed. Failed removals are joined into the error.
func (s *Service) RemoveOrphanFiles(ctx context.Context, minAge time.Duration) ([]blob.Info, error) {
	var removed []blob.Info
	err := s.run(ctx, "remove_orphan_files", func(ctx context.Context) error {
		orphans, err := s.findOrphans(ctx, minAge)
		if err != nil {
			return err
		}
		var errs []error
		for _, info := range orphans {
			if err := s.files.Remove(ctx, FileHandle{Key: info.Key}); err != nil {
				errs = append(errs, err)
				continue
			}
			removed = append(removed, info)
		}
		if len(removed) > 0 {
			s.logger.Info("removed orphan files", "files", len(removed))
		}
		return errors.Join(errs...)
	})
	return removed, err
}

func (s *Service) findOrphans(ctx context.Context, minAge time.Duration) ([]blob.Info, error) {
	// list before reading the records: anything committed in between counts as referenced
	var stored []blob.Info
	for _, kind := range FileKinds() {
		infos, err := s.files.List(ctx, kind)
		if err != nil {
			return nil, err
		}
		stored = append(stored, infos...)
	}
	referenced := make(map[string]struct{})
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, f := range view.ListResultFiles() {
			referenced[f.File.Key] = struct{}{}
		}
		for _, a := range view.ListAnalysisResults() {
			if a.Visualization != nil {
				referenced[a.Visualization.Key] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var orphans []blob.Info
	for _, info := range stored {
		if _, ok := referenced[info.Key]; ok {
			continue
		}
		if minAge > 0 && !info.LastModified.IsZero() && time.Since(info.LastModified) < minAge {
			continue
		}
		orphans = append(orphans, info)
	}
	return orphans, nil
}

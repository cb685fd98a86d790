package core

import (
	"context"
	"eegrecords/pkg/domain"
	"fmt"
)

const placeholderSingularityRule = "placeholder_singularity"

// NewPlaceholderSingularityRule blocks commits that leave a session with more
// than one placeholder result file. Only sessions touched by the transaction
// are inspected.
func NewPlaceholderSingularityRule() domain.Rule {
	return placeholderRule{}
}

type placeholderRule struct{}

func (placeholderRule) Name() string { return placeholderSingularityRule }

func (placeholderRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityResultFile {
			continue
		}
		if f, ok := change.After.(domain.ResultFile); ok && f.IsPlaceholder {
			touched[f.SessionID] = struct{}{}
		}
	}
	res := domain.Result{}
	for sessionID := range touched {
		count := 0
		for _, f := range view.FilesForSession(sessionID) {
			if f.IsPlaceholder {
				count++
			}
		}
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     placeholderSingularityRule,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("session %s has %d placeholder files", sessionID, count),
				Entity:   domain.EntitySession,
				EntityID: sessionID,
			})
		}
	}
	return res, nil
}

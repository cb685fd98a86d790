package core

import (
	"context"
	"eegrecords/pkg/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubView struct {
	domain.RuleView
	files map[string][]ResultFile
}

func (v stubView) FilesForSession(id string) []ResultFile { return v.files[id] }

func TestPlaceholderSingularityRule(t *testing.T) {
	rule := NewPlaceholderSingularityRule()
	assert.Equal(t, "placeholder_singularity", rule.Name())

	placeholder := ResultFile{Base: domain.Base{ID: "f1"}, SessionID: "s1", IsPlaceholder: true}
	changes := []Change{{Entity: domain.EntityResultFile, Action: domain.ActionCreate, After: placeholder}}

	res, err := rule.Evaluate(context.Background(), stubView{files: map[string][]ResultFile{"s1": {placeholder}}}, changes)
	require.NoError(t, err)
	assert.False(t, res.HasBlocking())

	dup := placeholder
	dup.ID = "f2"
	res, err = rule.Evaluate(context.Background(), stubView{files: map[string][]ResultFile{"s1": {placeholder, dup}}}, changes)
	require.NoError(t, err)
	require.True(t, res.HasBlocking())
	assert.Equal(t, "s1", res.Violations[0].EntityID)
}

func TestPlaceholderSingularityIgnoresOtherChanges(t *testing.T) {
	rule := NewPlaceholderSingularityRule()
	changes := []Change{
		{Entity: domain.EntitySession, Action: domain.ActionCreate, After: Session{}},
		{Entity: domain.EntityResultFile, Action: domain.ActionDelete, Before: ResultFile{SessionID: "s1", IsPlaceholder: true}},
	}
	res, err := rule.Evaluate(context.Background(), stubView{}, changes)
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
}

func TestDefaultRulesEngine(t *testing.T) {
	engine := NewDefaultRulesEngine()
	require.Len(t, engine.Rules(), 1)
	assert.Empty(t, NewRulesEngine().Rules())
}

package core

import "eegrecords/pkg/domain"

type (
	Patient         = domain.Patient
	Session         = domain.Session
	ResultFile      = domain.ResultFile
	AnalysisResult  = domain.AnalysisResult
	FileHandle      = domain.FileHandle
	EmotionLabel    = domain.EmotionLabel
	Change          = domain.Change
	Result          = domain.Result
	Violation       = domain.Violation
	Rule            = domain.Rule
	RulesEngine     = domain.RulesEngine
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

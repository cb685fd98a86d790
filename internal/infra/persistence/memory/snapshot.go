package memory

import (
	"eegrecords/pkg/domain"
	"sort"
)

type memoryState struct {
	patients map[string]Patient
	sessions map[string]Session
	files    map[string]ResultFile
	analyses map[string]AnalysisResult
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Patients        map[string]Patient        `json:"patients"`
	Sessions        map[string]Session        `json:"sessions"`
	ResultFiles     map[string]ResultFile     `json:"result_files"`
	AnalysisResults map[string]AnalysisResult `json:"analysis_results"`
}

func newMemoryState() memoryState {
	return memoryState{
		patients: make(map[string]Patient),
		sessions: make(map[string]Session),
		files:    make(map[string]ResultFile),
		analyses: make(map[string]AnalysisResult),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Patients:        make(map[string]Patient, len(state.patients)),
		Sessions:        make(map[string]Session, len(state.sessions)),
		ResultFiles:     make(map[string]ResultFile, len(state.files)),
		AnalysisResults: make(map[string]AnalysisResult, len(state.analyses)),
	}
	for k, v := range state.patients {
		s.Patients[k] = clonePatient(v)
	}
	for k, v := range state.sessions {
		s.Sessions[k] = cloneSession(v)
	}
	for k, v := range state.files {
		s.ResultFiles[k] = cloneResultFile(v)
	}
	for k, v := range state.analyses {
		s.AnalysisResults[k] = cloneAnalysis(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Patients {
		state.patients[k] = clonePatient(v)
	}
	for k, v := range s.Sessions {
		state.sessions[k] = cloneSession(v)
	}
	for k, v := range s.ResultFiles {
		state.files[k] = cloneResultFile(v)
	}
	for k, v := range s.AnalysisResults {
		state.analyses[k] = cloneAnalysis(v)
	}
	return state
}

// migrateSnapshot repairs snapshots written by older builds or edited by hand:
// nil buckets become empty, ids are realigned with their map keys and records
// whose owner no longer exists are dropped so the ownership tree stays strict.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Patients == nil {
		snapshot.Patients = map[string]Patient{}
	}
	if snapshot.Sessions == nil {
		snapshot.Sessions = map[string]Session{}
	}
	if snapshot.ResultFiles == nil {
		snapshot.ResultFiles = map[string]ResultFile{}
	}
	if snapshot.AnalysisResults == nil {
		snapshot.AnalysisResults = map[string]AnalysisResult{}
	}

	for id, patient := range snapshot.Patients {
		patient.ID = id
		snapshot.Patients[id] = patient
	}

	for id, session := range snapshot.Sessions {
		if _, ok := snapshot.Patients[session.PatientID]; !ok {
			delete(snapshot.Sessions, id)
			continue
		}
		session.ID = id
		if session.DurationMinutes <= 0 {
			session.DurationMinutes = domain.DefaultSessionDurationMinutes
		}
		snapshot.Sessions[id] = session
	}

	for id, file := range snapshot.ResultFiles {
		if _, ok := snapshot.Sessions[file.SessionID]; !ok {
			delete(snapshot.ResultFiles, id)
			continue
		}
		file.ID = id
		snapshot.ResultFiles[id] = file
	}

	for id, analysis := range snapshot.AnalysisResults {
		if _, ok := snapshot.Sessions[analysis.SessionID]; !ok {
			delete(snapshot.AnalysisResults, id)
			continue
		}
		analysis.ID = id
		if analysis.Metrics == nil {
			analysis.Metrics = map[string]any{}
		}
		snapshot.AnalysisResults[id] = analysis
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.patients {
		cloned.patients[k] = clonePatient(v)
	}
	for k, v := range s.sessions {
		cloned.sessions[k] = cloneSession(v)
	}
	for k, v := range s.files {
		cloned.files[k] = cloneResultFile(v)
	}
	for k, v := range s.analyses {
		cloned.analyses[k] = cloneAnalysis(v)
	}
	return cloned
}

func clonePatient(p Patient) Patient          { return p }
func cloneSession(s Session) Session          { return s }
func cloneResultFile(f ResultFile) ResultFile { return f }

func cloneAnalysis(a AnalysisResult) AnalysisResult {
	cp := a
	if a.Metrics != nil {
		cp.Metrics = cloneMetrics(a.Metrics)
	}
	if a.Visualization != nil {
		v := *a.Visualization
		cp.Visualization = &v
	}
	return cp
}

func cloneMetrics(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMetrics(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []float64:
		return append([]float64(nil), typed...)
	case []string:
		return append([]string(nil), typed...)
	default:
		return v
	}
}

func sortPatients(patients []Patient) {
	sort.Slice(patients, func(i, j int) bool {
		if patients[i].FullName != patients[j].FullName {
			return patients[i].FullName < patients[j].FullName
		}
		return patients[i].ID < patients[j].ID
	})
}

func sortSessions(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].StartedAt.After(sessions[j].StartedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

func sortResultFiles(files []ResultFile) {
	sort.Slice(files, func(i, j int) bool {
		if !files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].UploadedAt.After(files[j].UploadedAt)
		}
		return files[i].ID < files[j].ID
	})
}

func sortAnalyses(analyses []AnalysisResult) {
	sort.Slice(analyses, func(i, j int) bool {
		if !analyses[i].CreatedAt.Equal(analyses[j].CreatedAt) {
			return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
		}
		return analyses[i].ID < analyses[j].ID
	})
}

func patientsOf(state *memoryState) []Patient {
	out := make([]Patient, 0, len(state.patients))
	for _, p := range state.patients {
		out = append(out, clonePatient(p))
	}
	sortPatients(out)
	return out
}

func sessionsOf(state *memoryState, patientID string) []Session {
	var out []Session
	for _, s := range state.sessions {
		if patientID == "" || s.PatientID == patientID {
			out = append(out, cloneSession(s))
		}
	}
	sortSessions(out)
	return out
}

func filesOf(state *memoryState, sessionID string) []ResultFile {
	var out []ResultFile
	for _, f := range state.files {
		if sessionID == "" || f.SessionID == sessionID {
			out = append(out, cloneResultFile(f))
		}
	}
	sortResultFiles(out)
	return out
}

func analysesOf(state *memoryState, sessionID string) []AnalysisResult {
	var out []AnalysisResult
	for _, a := range state.analyses {
		if sessionID == "" || a.SessionID == sessionID {
			out = append(out, cloneAnalysis(a))
		}
	}
	sortAnalyses(out)
	return out
}

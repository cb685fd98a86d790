package memory

import (
	"eegrecords/pkg/domain"
	"fmt"
)

// FindPatient exposes patient lookup within the transaction scope.
func (tx *transaction) FindPatient(id string) (Patient, bool) {
	p, ok := tx.state.patients[id]
	if !ok {
		return Patient{}, false
	}
	return clonePatient(p), true
}

// FindPatientByKey looks a patient up by full name.
func (tx *transaction) FindPatientByKey(key domain.PatientKey) (Patient, bool) {
	for _, p := range tx.state.patients {
		if p.FullName == key.FullName {
			return clonePatient(p), true
		}
	}
	return Patient{}, false
}

func (tx *transaction) checkPatientKey(p Patient) error {
	for _, existing := range tx.state.patients {
		if existing.ID != p.ID && existing.FullName == p.FullName {
			return domain.ConflictError{Entity: domain.EntityPatient, Key: fmt.Sprintf("full_name=%q", p.FullName)}
		}
	}
	return nil
}

// CreatePatient stores a new patient within the transaction.
func (tx *transaction) CreatePatient(p Patient) (Patient, error) {
	if p.ID == "" {
		p.ID = tx.newID()
	}
	if _, exists := tx.state.patients[p.ID]; exists {
		return Patient{}, domain.ConflictError{Entity: domain.EntityPatient, Key: fmt.Sprintf("id=%q", p.ID)}
	}
	domain.NormalizePatient(&p)
	if err := domain.ValidatePatient(p); err != nil {
		return Patient{}, err
	}
	if err := tx.checkPatientKey(p); err != nil {
		return Patient{}, err
	}
	p.UpdatedAt = tx.now
	tx.state.patients[p.ID] = clonePatient(p)
	tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: clonePatient(p)})
	return clonePatient(p), nil
}

// UpdatePatient mutates a patient using the provided mutator function.
func (tx *transaction) UpdatePatient(id string, mutator func(*Patient) error) (Patient, error) {
	current, ok := tx.state.patients[id]
	if !ok {
		return Patient{}, domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
	}
	before := clonePatient(current)
	if err := mutator(&current); err != nil {
		return Patient{}, err
	}
	current.ID = id
	domain.NormalizePatient(&current)
	if err := domain.ValidatePatient(current); err != nil {
		return Patient{}, err
	}
	if err := tx.checkPatientKey(current); err != nil {
		return Patient{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.patients[id] = clonePatient(current)
	tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionUpdate, Before: before, After: clonePatient(current)})
	return clonePatient(current), nil
}

// DeletePatient removes a patient together with every session it owns.
// Deleting an absent patient is a no-op.
func (tx *transaction) DeletePatient(id string) error {
	current, ok := tx.state.patients[id]
	if !ok {
		return nil
	}
	for _, session := range sessionsOf(&tx.state, id) {
		if err := tx.DeleteSession(session.ID); err != nil {
			return err
		}
	}
	delete(tx.state.patients, id)
	tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionDelete, Before: clonePatient(current)})
	return nil
}

// FindSession exposes session lookup within the transaction scope.
func (tx *transaction) FindSession(id string) (Session, bool) {
	s, ok := tx.state.sessions[id]
	if !ok {
		return Session{}, false
	}
	return cloneSession(s), true
}

// FindSessionByKey looks a session up by owner and start instant.
func (tx *transaction) FindSessionByKey(key domain.SessionKey) (Session, bool) {
	for _, s := range tx.state.sessions {
		if key.Matches(s) {
			return cloneSession(s), true
		}
	}
	return Session{}, false
}

func (tx *transaction) checkSession(s Session) error {
	if err := domain.ValidateSession(s); err != nil {
		return err
	}
	if _, ok := tx.state.patients[s.PatientID]; !ok {
		return domain.MissingOwner(domain.EntitySession, "patient_id", domain.EntityPatient, s.PatientID)
	}
	key := domain.SessionKey{PatientID: s.PatientID, StartedAt: s.StartedAt}
	for _, existing := range tx.state.sessions {
		if existing.ID != s.ID && key.Matches(existing) {
			return domain.ConflictError{
				Entity: domain.EntitySession,
				Key:    fmt.Sprintf("patient_id=%q start_datetime=%s", s.PatientID, s.StartedAt.Format("2006-01-02T15:04:05.999999999Z07:00")),
			}
		}
	}
	return nil
}

// CreateSession stores a new session for an existing patient.
func (tx *transaction) CreateSession(s Session) (Session, error) {
	if s.ID == "" {
		s.ID = tx.newID()
	}
	if _, exists := tx.state.sessions[s.ID]; exists {
		return Session{}, domain.ConflictError{Entity: domain.EntitySession, Key: fmt.Sprintf("id=%q", s.ID)}
	}
	domain.NormalizeSession(&s)
	if err := tx.checkSession(s); err != nil {
		return Session{}, err
	}
	s.UpdatedAt = tx.now
	tx.state.sessions[s.ID] = cloneSession(s)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionCreate, After: cloneSession(s)})
	return cloneSession(s), nil
}

// UpdateSession mutates an existing session.
func (tx *transaction) UpdateSession(id string, mutator func(*Session) error) (Session, error) {
	current, ok := tx.state.sessions[id]
	if !ok {
		return Session{}, domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	before := cloneSession(current)
	if err := mutator(&current); err != nil {
		return Session{}, err
	}
	current.ID = id
	domain.NormalizeSession(&current)
	if err := tx.checkSession(current); err != nil {
		return Session{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.sessions[id] = cloneSession(current)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionUpdate, Before: before, After: cloneSession(current)})
	return cloneSession(current), nil
}

// DeleteSession removes a session, its result files and its analysis results.
// Deleting an absent session is a no-op.
func (tx *transaction) DeleteSession(id string) error {
	current, ok := tx.state.sessions[id]
	if !ok {
		return nil
	}
	for _, file := range filesOf(&tx.state, id) {
		if err := tx.DeleteResultFile(file.ID); err != nil {
			return err
		}
	}
	for _, analysis := range analysesOf(&tx.state, id) {
		if err := tx.DeleteAnalysisResult(analysis.ID); err != nil {
			return err
		}
	}
	delete(tx.state.sessions, id)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionDelete, Before: cloneSession(current)})
	return nil
}

// FindResultFile exposes result file lookup within the transaction scope.
func (tx *transaction) FindResultFile(id string) (ResultFile, bool) {
	f, ok := tx.state.files[id]
	if !ok {
		return ResultFile{}, false
	}
	return cloneResultFile(f), true
}

// HasPlaceholderFile reports whether the session already owns a placeholder file.
func (tx *transaction) HasPlaceholderFile(sessionID string) bool {
	for _, f := range tx.state.files {
		if f.SessionID == sessionID && f.IsPlaceholder {
			return true
		}
	}
	return false
}

func (tx *transaction) checkResultFile(f ResultFile) error {
	if err := domain.ValidateResultFile(f); err != nil {
		return err
	}
	if _, ok := tx.state.sessions[f.SessionID]; !ok {
		return domain.MissingOwner(domain.EntityResultFile, "session_id", domain.EntitySession, f.SessionID)
	}
	if !f.IsPlaceholder {
		return nil
	}
	for _, existing := range tx.state.files {
		if existing.ID != f.ID && existing.SessionID == f.SessionID && existing.IsPlaceholder {
			return domain.ConflictError{Entity: domain.EntityResultFile, Key: fmt.Sprintf("placeholder session_id=%q", f.SessionID)}
		}
	}
	return nil
}

// CreateResultFile attaches a stored file to an existing session.
func (tx *transaction) CreateResultFile(f ResultFile) (ResultFile, error) {
	if f.ID == "" {
		f.ID = tx.newID()
	}
	if _, exists := tx.state.files[f.ID]; exists {
		return ResultFile{}, domain.ConflictError{Entity: domain.EntityResultFile, Key: fmt.Sprintf("id=%q", f.ID)}
	}
	if err := tx.checkResultFile(f); err != nil {
		return ResultFile{}, err
	}
	f.UploadedAt = tx.now
	tx.state.files[f.ID] = cloneResultFile(f)
	tx.recordChange(Change{Entity: domain.EntityResultFile, Action: domain.ActionCreate, After: cloneResultFile(f)})
	return cloneResultFile(f), nil
}

// UpdateResultFile mutates a result file. The upload timestamp never changes.
func (tx *transaction) UpdateResultFile(id string, mutator func(*ResultFile) error) (ResultFile, error) {
	current, ok := tx.state.files[id]
	if !ok {
		return ResultFile{}, domain.NotFoundError{Entity: domain.EntityResultFile, ID: id}
	}
	before := cloneResultFile(current)
	if err := mutator(&current); err != nil {
		return ResultFile{}, err
	}
	current.ID = id
	current.UploadedAt = before.UploadedAt
	if err := tx.checkResultFile(current); err != nil {
		return ResultFile{}, err
	}
	tx.state.files[id] = cloneResultFile(current)
	tx.recordChange(Change{Entity: domain.EntityResultFile, Action: domain.ActionUpdate, Before: before, After: cloneResultFile(current)})
	return cloneResultFile(current), nil
}

// DeleteResultFile removes a result file. Deleting an absent file is a no-op.
func (tx *transaction) DeleteResultFile(id string) error {
	current, ok := tx.state.files[id]
	if !ok {
		return nil
	}
	delete(tx.state.files, id)
	tx.recordChange(Change{Entity: domain.EntityResultFile, Action: domain.ActionDelete, Before: cloneResultFile(current)})
	return nil
}

// FindAnalysisResult exposes analysis result lookup within the transaction scope.
func (tx *transaction) FindAnalysisResult(id string) (AnalysisResult, bool) {
	a, ok := tx.state.analyses[id]
	if !ok {
		return AnalysisResult{}, false
	}
	return cloneAnalysis(a), true
}

func (tx *transaction) checkAnalysis(a AnalysisResult) error {
	if err := domain.ValidateAnalysisResult(a); err != nil {
		return err
	}
	if _, ok := tx.state.sessions[a.SessionID]; !ok {
		return domain.MissingOwner(domain.EntityAnalysisResult, "session_id", domain.EntitySession, a.SessionID)
	}
	return nil
}

// CreateAnalysisResult records an externally computed classification for a session.
func (tx *transaction) CreateAnalysisResult(a AnalysisResult) (AnalysisResult, error) {
	if a.ID == "" {
		a.ID = tx.newID()
	}
	if _, exists := tx.state.analyses[a.ID]; exists {
		return AnalysisResult{}, domain.ConflictError{Entity: domain.EntityAnalysisResult, Key: fmt.Sprintf("id=%q", a.ID)}
	}
	if a.Metrics == nil {
		a.Metrics = map[string]any{}
	}
	if err := tx.checkAnalysis(a); err != nil {
		return AnalysisResult{}, err
	}
	a.CreatedAt = tx.now
	tx.state.analyses[a.ID] = cloneAnalysis(a)
	tx.recordChange(Change{Entity: domain.EntityAnalysisResult, Action: domain.ActionCreate, After: cloneAnalysis(a)})
	return cloneAnalysis(a), nil
}

// UpdateAnalysisResult mutates an analysis result. The creation timestamp never changes.
func (tx *transaction) UpdateAnalysisResult(id string, mutator func(*AnalysisResult) error) (AnalysisResult, error) {
	current, ok := tx.state.analyses[id]
	if !ok {
		return AnalysisResult{}, domain.NotFoundError{Entity: domain.EntityAnalysisResult, ID: id}
	}
	before := cloneAnalysis(current)
	working := cloneAnalysis(current)
	if err := mutator(&working); err != nil {
		return AnalysisResult{}, err
	}
	working.ID = id
	working.CreatedAt = before.CreatedAt
	if working.Metrics == nil {
		working.Metrics = map[string]any{}
	}
	if err := tx.checkAnalysis(working); err != nil {
		return AnalysisResult{}, err
	}
	tx.state.analyses[id] = cloneAnalysis(working)
	tx.recordChange(Change{Entity: domain.EntityAnalysisResult, Action: domain.ActionUpdate, Before: before, After: cloneAnalysis(working)})
	return cloneAnalysis(working), nil
}

// DeleteAnalysisResult removes an analysis result. Deleting an absent result is a no-op.
func (tx *transaction) DeleteAnalysisResult(id string) error {
	current, ok := tx.state.analyses[id]
	if !ok {
		return nil
	}
	delete(tx.state.analyses, id)
	tx.recordChange(Change{Entity: domain.EntityAnalysisResult, Action: domain.ActionDelete, Before: cloneAnalysis(current)})
	return nil
}

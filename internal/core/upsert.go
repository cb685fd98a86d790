package core

import "eegrecords/pkg/domain"

// UpsertPatient inserts p when no patient carries its full name and otherwise
// replaces every mutable field of the existing record with p's values. The
// identifier and timestamps of an existing record are kept. Errors from the
// store surface unchanged.
func UpsertPatient(tx Transaction, p Patient) (Patient, bool, error) {
	domain.NormalizePatient(&p)
	existing, ok := tx.FindPatientByKey(domain.PatientKey{FullName: p.FullName})
	if !ok {
		created, err := tx.CreatePatient(p)
		if err != nil {
			return Patient{}, false, err
		}
		return created, true, nil
	}
	updated, err := tx.UpdatePatient(existing.ID, func(current *Patient) error {
		current.FullName = p.FullName
		current.BirthDate = p.BirthDate
		current.ContactInfo = p.ContactInfo
		return nil
	})
	if err != nil {
		return Patient{}, false, err
	}
	return updated, false, nil
}

// UpsertSession inserts s when its owner has no session starting at the same
// instant and otherwise replaces the existing session's mutable fields.
func UpsertSession(tx Transaction, s Session) (Session, bool, error) {
	domain.NormalizeSession(&s)
	existing, ok := tx.FindSessionByKey(domain.SessionKey{PatientID: s.PatientID, StartedAt: s.StartedAt})
	if !ok {
		created, err := tx.CreateSession(s)
		if err != nil {
			return Session{}, false, err
		}
		return created, true, nil
	}
	updated, err := tx.UpdateSession(existing.ID, func(current *Session) error {
		current.PatientID = s.PatientID
		current.StartedAt = s.StartedAt
		current.DurationMinutes = s.DurationMinutes
		current.Technician = s.Technician
		current.Conclusion = s.Conclusion
		return nil
	})
	if err != nil {
		return Session{}, false, err
	}
	return updated, false, nil
}

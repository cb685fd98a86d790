package memory

import (
	"encoding/json"
	"fmt"
)

// Snapshot bucket names used by the durable backends' state table.
const (
	BucketPatients        = "patients"
	BucketSessions        = "sessions"
	BucketResultFiles     = "result_files"
	BucketAnalysisResults = "analysis_results"
)

// Buckets lists every bucket in write order, owners before dependents.
func Buckets() []string {
	return []string{BucketPatients, BucketSessions, BucketResultFiles, BucketAnalysisResults}
}

// EncodeBucket marshals one bucket of the snapshot to JSON.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketPatients:
		return json.Marshal(s.Patients)
	case BucketSessions:
		return json.Marshal(s.Sessions)
	case BucketResultFiles:
		return json.Marshal(s.ResultFiles)
	case BucketAnalysisResults:
		return json.Marshal(s.AnalysisResults)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket fills one bucket of the snapshot from its JSON payload.
// Unknown buckets are ignored so older tables keep loading.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketPatients:
		target = &s.Patients
	case BucketSessions:
		target = &s.Sessions
	case BucketResultFiles:
		target = &s.ResultFiles
	case BucketAnalysisResults:
		target = &s.AnalysisResults
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error taxonomy shared by the pipeline stages.
var (
	ErrInvalidURL              = errors.New("invalid url")
	ErrAdmissionRejected       = errors.New("admission rejected")
	ErrExtractionFailed        = errors.New("extraction failed")
	ErrClassificationMalformed = errors.New("classification malformed")
	ErrSummaryMalformed        = errors.New("summary malformed")
	ErrStoreConflict           = errors.New("store conflict")
	ErrEmbeddingFailed         = errors.New("embedding failed")
	ErrNotFound                = errors.New("not found")
)

// MarshalPayload encodes a job payload.
func MarshalPayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// DecodePayload decodes a job payload into v.
func DecodePayload(job Job, v any) error {
	if len(job.Payload) == 0 {
		return fmt.Errorf("job %d: empty payload", job.ID)
	}
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("job %d: decode %s payload: %w", job.ID, job.Type, err)
	}
	return nil
}

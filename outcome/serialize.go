package outcome

import (
	"encoding/json"
	"fmt"
)

// MarshalAttempt serialises an attempt as one JSON line.
func MarshalAttempt(a *Attempt) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("outcome: marshal attempt: %w", err)
	}
	return data, nil
}

// UnmarshalAttempt is the inverse of MarshalAttempt.
func UnmarshalAttempt(data []byte) (*Attempt, error) {
	var a Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("outcome: unmarshal attempt: %w", err)
	}
	return &a, nil
}

// MarshalDiagnosis serialises a diagnosis.
func MarshalDiagnosis(d *Diagnosis) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("outcome: marshal diagnosis: %w", err)
	}
	return data, nil
}

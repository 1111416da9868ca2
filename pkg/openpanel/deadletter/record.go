package deadletter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record describes one delivery that failed terminally.
type Record struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	FailedAt  time.Time       `json:"failed_at"`
}

// NewRecord builds a Record for a failed delivery. An empty id is
// replaced with a fresh UUID.
func NewRecord(id, eventType string, payload []byte, cause error, attempts int) Record {
	if id == "" {
		id = uuid.NewString()
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return Record{
		ID:        id,
		EventType: eventType,
		Payload:   append(json.RawMessage(nil), payload...),
		Error:     msg,
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}
}

// Marshal serializes a record to JSON.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal deserializes a record from JSON.
func Unmarshal(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

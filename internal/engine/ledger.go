package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crisisline/internal/domain"
)

// Ledger actions.
const (
	ActionCreated      = "created"
	ActionUpdated      = "updated"
	ActionRecalculated = "recalculated"
	ActionManualUpdate = "manual_update"
)

// NewChangeRecord builds one immutable ledger entry. It always succeeds; the
// timestamp is captured from the supplied clock in UTC.
func NewChangeRecord(action, field string, oldValue, newValue *string, actorID string, now time.Time) domain.ChangeRecord {
	return domain.ChangeRecord{
		ID:         uuid.New().String()[:8],
		Timestamp:  now.UTC().Format(time.RFC3339),
		Action:     action,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		ModifiedBy: actorID,
	}
}

// canonicalValue serializes an arbitrary field value to the ledger's uniform
// string representation: JSON for slices and maps, plain formatting for
// scalars, nil for nil.
func canonicalValue(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case *string:
		return t
	case *float64:
		if t == nil {
			return nil
		}
		s := formatFloat(*t)
		return &s
	case float64:
		s := formatFloat(t)
		return &s
	case int:
		s := fmt.Sprintf("%d", t)
		return &s
	case []string:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		s := string(b)
		return &s
	default:
		b, err := json.Marshal(t)
		if err != nil {
			s := fmt.Sprintf("%v", t)
			return &s
		}
		s := string(b)
		return &s
	}
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

// valueChanged compares canonical representations, so []string{"a"} equals a
// fresh slice with the same contents.
func valueChanged(oldValue, newValue any) bool {
	o := canonicalValue(oldValue)
	n := canonicalValue(newValue)
	if o == nil || n == nil {
		return (o == nil) != (n == nil)
	}
	return *o != *n
}

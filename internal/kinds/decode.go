package kinds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/utils"
)

// Members shared by every kind.
const (
	MemberUUID        = "uuid"
	MemberLastChanged = "lastChanged"
	MemberDeleted     = "deleted"
)

// Patch is a validated partial change to a record's fields.
type Patch struct {
	// Set holds canonical values keyed by field name.
	Set domain.Fields
	// Clear lists optional references to remove.
	Clear []string
}

// Envelope is a decoded write payload.
type Envelope struct {
	// UUID is the canonical identity, or "" when the body carries none.
	UUID        string
	LastChanged *time.Time
	Patch       Patch
}

// Decode validates a JSON object against the schema. JSON null is treated
// as an absent member.
func (s *Schema) Decode(body map[string]json.RawMessage) (Envelope, error) {
	env := Envelope{Patch: Patch{Set: domain.Fields{}}}
	cleared := map[string]bool{}

	for key, raw := range body {
		if isNull(raw) {
			continue
		}
		switch key {
		case MemberUUID:
			id, err := decodeUUID(raw)
			if err != nil {
				return Envelope{}, err
			}
			env.UUID = id
			continue
		case MemberLastChanged:
			var str string
			if err := json.Unmarshal(raw, &str); err != nil {
				return Envelope{}, fmt.Errorf("%w: lastChanged must be a string", utils.ErrInvalidTime)
			}
			ts, err := utils.ParseTime(str)
			if err != nil {
				return Envelope{}, err
			}
			env.LastChanged = &ts
			continue
		case MemberDeleted:
			var del bool
			if err := json.Unmarshal(raw, &del); err != nil {
				return Envelope{}, fmt.Errorf("%w: deleted must be a bool", ErrInvalidData)
			}
			if del {
				return Envelope{}, fmt.Errorf("%w: deleted may not be set on writes", ErrInvalidData)
			}
			continue
		}

		if f, ok := s.flags[key]; ok {
			var on bool
			if err := json.Unmarshal(raw, &on); err != nil {
				return Envelope{}, fmt.Errorf("%w: %s must be a bool", ErrInvalidData, key)
			}
			if on {
				cleared[f.Name] = true
			}
			continue
		}

		f, ok := s.byName[key]
		if !ok {
			return Envelope{}, fmt.Errorf("%w: unknown field %s", ErrInvalidData, key)
		}
		v, err := decodeValue(f, raw)
		if err != nil {
			return Envelope{}, err
		}
		env.Patch.Set[f.Name] = v
	}

	// A clear flag wins over a value sent alongside it.
	for _, f := range s.Fields {
		if cleared[f.Name] {
			delete(env.Patch.Set, f.Name)
			env.Patch.Clear = append(env.Patch.Clear, f.Name)
		}
	}
	return env, nil
}

func decodeValue(f *Field, raw json.RawMessage) (any, error) {
	switch f.Type {
	case String:
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidData, f.Name)
		}
		str = NormalizeText(str)
		if f.NonEmpty && str == "" {
			return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidData, f.Name)
		}
		return str, nil

	case Number:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidData, f.Name)
		}
		if f.HasMin && n < f.Min {
			return nil, fmt.Errorf("%w: %s must be >= %g", ErrInvalidData, f.Name, f.Min)
		}
		return n, nil

	case Integer:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidData, f.Name)
		}
		i, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidData, f.Name)
		}
		return i, nil

	case Bool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("%w: %s must be a bool", ErrInvalidData, f.Name)
		}
		return b, nil

	case Reference:
		return decodeUUID(raw)
	}
	return nil, fmt.Errorf("%w: unsupported field type %s", ErrInvalidData, f.Type)
}

func decodeUUID(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return "", fmt.Errorf("%w: expected a uuid string", ErrInvalidUUID)
	}
	return CanonicalUUID(str)
}

// CanonicalUUID parses s and returns its lower-case hyphenated form.
func CanonicalUUID(s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidUUID, s)
	}
	return id.String(), nil
}

// NormalizeText trims s and converts it to Unicode NFC so visually equal
// names from different clients compare equal.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

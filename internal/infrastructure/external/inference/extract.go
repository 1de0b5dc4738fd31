package inference

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/people-hub/peoplehub/internal/domain/person"
)

// Extractor pulls one typed value out of a decoded response object.
// ok = false means the service had no answer. A non-nil error marks the
// payload as malformed and makes the attempt retryable.
type Extractor[T any] func(fields map[string]json.RawMessage) (value T, ok bool, err error)

func field(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

// ExtractGender reads {"gender": "male" | "female" | null}.
func ExtractGender(fields map[string]json.RawMessage) (person.Gender, bool, error) {
	raw, ok := field(fields, "gender")
	if !ok {
		return person.GenderUnknown, false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return person.GenderUnknown, false, payloadError("gender is not a string: %v", err)
	}
	g, known := person.ParseGender(s)
	return g, known, nil
}

// ExtractAge reads {"age": 42 | null}.
func ExtractAge(fields map[string]json.RawMessage) (int, bool, error) {
	raw, ok := field(fields, "age")
	if !ok {
		return 0, false, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false, payloadError("age is not a number: %v", err)
	}
	if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false, nil
	}
	return int(n), true, nil
}

type countryCandidate struct {
	CountryID   string  `json:"country_id"`
	Probability float64 `json:"probability"`
}

// ExtractNationality reads {"country": [{"country_id": "US", "probability": 0.3}, ...]}
// and picks the most probable candidate. The first candidate wins ties.
func ExtractNationality(fields map[string]json.RawMessage) (person.CountryCode, bool, error) {
	raw, ok := field(fields, "country")
	if !ok {
		return "", false, nil
	}
	var candidates []countryCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return "", false, payloadError("country is not a candidate list: %v", err)
	}
	if len(candidates) == 0 {
		return "", false, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Probability > best.Probability {
			best = c
		}
	}

	code := strings.ToUpper(strings.TrimSpace(best.CountryID))
	if code == "" {
		return "", false, nil
	}
	return person.CountryCode(code), true, nil
}

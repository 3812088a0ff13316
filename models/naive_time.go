package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NaiveTimeLayout is the wire and storage format for timestamps without a
// zone. Fractional seconds are optional on input and trimmed on output.
const NaiveTimeLayout = "2006-01-02T15:04:05.999999"

var naiveInputLayouts = []string{
	NaiveTimeLayout,
	"2006-01-02 15:04:05.999999",
	time.RFC3339Nano,
}

// NaiveTime is a wall-clock timestamp. Values carrying a zone are accepted
// but the zone is discarded; everything is kept in UTC internally so that
// comparisons stay consistent.
type NaiveTime struct {
	time.Time
}

func NewNaiveTime(t time.Time) NaiveTime {
	return NaiveTime{Time: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)}
}

// ParseNaiveTime parses any of the accepted layouts.
func ParseNaiveTime(raw string) (NaiveTime, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range naiveInputLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return NewNaiveTime(t), nil
		}
	}
	return NaiveTime{}, fmt.Errorf("invalid timestamp %q", raw)
}

func (t NaiveTime) String() string {
	return t.Time.Format(NaiveTimeLayout)
}

func (t NaiveTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *NaiveTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseNaiveTime(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

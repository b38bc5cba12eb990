package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Location is either a coordinate pair, free text, or both.
type Location struct {
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
	Text string   `json:"text,omitempty"`
}

var (
	latKeys  = []string{"lat", "latitude", "latDegrees"}
	lonKeys  = []string{"lon", "lng", "longitude", "lonDegrees"}
	textKeys = []string{"text", "address", "label"}
)

// ParseLocation is the single parser for location payloads. It accepts JSON
// null, a plain string, or an object using any of the common coordinate key
// spellings. A nil result means "no location".
func ParseLocation(raw []byte) (*Location, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid location: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		return &Location{Text: s}, nil
	case '{':
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("invalid location: %w", err)
		}
		loc := &Location{}
		if v, ok := firstNumber(fields, latKeys); ok {
			loc.Lat = &v
		}
		if v, ok := firstNumber(fields, lonKeys); ok {
			loc.Lon = &v
		}
		for _, k := range textKeys {
			if s, ok := fields[k].(string); ok && strings.TrimSpace(s) != "" {
				loc.Text = strings.TrimSpace(s)
				break
			}
		}
		if (loc.Lat == nil) != (loc.Lon == nil) {
			return nil, fmt.Errorf("invalid location: latitude and longitude must be given together")
		}
		if loc.Lat != nil && (*loc.Lat < -90 || *loc.Lat > 90 || *loc.Lon < -180 || *loc.Lon > 180) {
			return nil, fmt.Errorf("invalid location: coordinates out of range")
		}
		if loc.Lat == nil && loc.Text == "" {
			return nil, nil
		}
		return loc, nil
	default:
		return nil, fmt.Errorf("invalid location: expected string or object")
	}
}

func firstNumber(fields map[string]interface{}, keys []string) (float64, bool) {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func (l *Location) HasCoordinates() bool {
	return l != nil && l.Lat != nil && l.Lon != nil
}

func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.HasCoordinates() {
		return fmt.Sprintf("Lat %.5f, Lon %.5f", *l.Lat, *l.Lon)
	}
	return l.Text
}

// Clone returns a deep copy so stored documents never share pointers.
func (l *Location) Clone() *Location {
	if l == nil {
		return nil
	}
	out := &Location{Text: l.Text}
	if l.Lat != nil {
		lat := *l.Lat
		out.Lat = &lat
	}
	if l.Lon != nil {
		lon := *l.Lon
		out.Lon = &lon
	}
	return out
}

func (l *Location) UnmarshalJSON(data []byte) error {
	parsed, err := ParseLocation(data)
	if err != nil {
		return err
	}
	if parsed == nil {
		*l = Location{}
		return nil
	}
	*l = *parsed
	return nil
}

// Scan implements sql.Scanner for JSONB columns.
func (l *Location) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = Location{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Location", src)
	}
	return l.UnmarshalJSON(raw)
}

// Value implements driver.Valuer.
func (l *Location) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	type plain Location
	b, err := json.Marshal((*plain)(l))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// IsEmpty reports whether the location carries neither coordinates nor text.
func (l *Location) IsEmpty() bool {
	return l == nil || (!l.HasCoordinates() && l.Text == "")
}

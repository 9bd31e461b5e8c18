// Package prefs holds the user preferences that gate alert delivery and presentation.
package prefs

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Preference keys.
const (
	KeyEnableEmergencyAlerts          = "enable_emergency_alerts"
	KeyEnableChannel50Alerts          = "enable_channel_50_alerts"
	KeyEnableEtwsTestAlerts           = "enable_etws_test_alerts"
	KeyEnableCmasImminentThreatAlerts = "enable_cmas_imminent_threat_alerts"
	KeyEnableCmasAmberAlerts          = "enable_cmas_amber_alerts"
	KeyEnableCmasTestAlerts           = "enable_cmas_test_alerts"
	KeyEnableAlertSpeech              = "enable_alert_speech"
	KeyAlertSoundDuration             = "alert_sound_duration"
)

type kind int

const (
	kindBool kind = iota
	kindSeconds
)

type definition struct {
	kind     kind
	fallback string
}

var definitions = map[string]definition{
	KeyEnableEmergencyAlerts:          {kindBool, "true"},
	KeyEnableChannel50Alerts:          {kindBool, "true"},
	KeyEnableEtwsTestAlerts:           {kindBool, "false"},
	KeyEnableCmasImminentThreatAlerts: {kindBool, "true"},
	KeyEnableCmasAmberAlerts:          {kindBool, "false"},
	KeyEnableCmasTestAlerts:           {kindBool, "false"},
	KeyEnableAlertSpeech:              {kindBool, "true"},
	KeyAlertSoundDuration:             {kindSeconds, "4"},
}

// Keys returns the known preference keys, sorted.
func Keys() []string {
	return slices.Sorted(maps.Keys(definitions))
}

// Default returns the documented default of key.
func Default(key string) (string, bool) {
	d, ok := definitions[key]
	return d.fallback, ok
}

// Validate checks that key is known and value parses for its type.
func Validate(key, value string) error {
	d, ok := definitions[key]
	if !ok {
		return fmt.Errorf("unknown preference %q", key)
	}
	switch d.kind {
	case kindBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("preference %q: %q is not a boolean", key, value)
		}
	case kindSeconds:
		if n, err := strconv.Atoi(value); err != nil || n < 0 {
			return fmt.Errorf("preference %q: %q is not a number of seconds", key, value)
		}
	}
	return nil
}

// Snapshot is an immutable view of the preferences, taken once per batch.
// Keys that are missing or hold unparseable values read as their default.
type Snapshot struct {
	values map[string]string
}

// NewSnapshot copies values into a snapshot.
func NewSnapshot(values map[string]string) Snapshot {
	return Snapshot{values: maps.Clone(values)}
}

// Defaults returns a snapshot holding no values.
func Defaults() Snapshot {
	return Snapshot{}
}

// Bool returns the boolean value of key.
func (s Snapshot) Bool(key string) bool {
	if v, ok := s.values[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	b, _ := strconv.ParseBool(definitions[key].fallback)
	return b
}

// Int returns the integer value of key.
func (s Snapshot) Int(key string) int {
	if v, ok := s.values[key]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	n, _ := strconv.Atoi(definitions[key].fallback)
	return n
}

// Effective returns every known key with the value it reads as.
func (s Snapshot) Effective() map[string]string {
	out := make(map[string]string, len(definitions))
	for key, d := range definitions {
		switch d.kind {
		case kindBool:
			out[key] = strconv.FormatBool(s.Bool(key))
		case kindSeconds:
			out[key] = strconv.Itoa(s.Int(key))
		}
	}
	return out
}

// Source loads and stores preferences. Implementations guard their own state.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Set(ctx context.Context, key, value string) error
}

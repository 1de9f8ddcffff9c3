// Package timewindow normalizes the free-text "visit time window" field.
//
// A value is either one of five preset labels, a single HH:MM clock time, or a
// list of clock times. Multi-valued windows are stored joined with Separator in
// both the primary and the options field; the same rule applies on every table
// that carries a copy (clients, schedule_entries, visits).
package timewindow

import (
	"regexp"
	"strings"
)

// Separator joins two or more custom times for storage.
const Separator = " • "

const (
	PresetMorning       = "Morning"
	PresetAfternoon     = "Afternoon"
	PresetEvening       = "Evening"
	PresetBusinessHours = "Business hours"
	PresetAnyTime       = "Any time"
)

// TagCustom 自定义时间标签：匹配任何包含 HH:MM 的原始文本
const TagCustom = "Custom time"

// Presets lists the preset labels in display order.
var Presets = []string{
	PresetMorning,
	PresetAfternoon,
	PresetEvening,
	PresetBusinessHours,
	PresetAnyTime,
}

// clockToken 一个 HH:MM，前后不能紧挨数字
const clockToken = `([01][0-9]|2[0-3]):[0-5][0-9]`

// ClockPattern is the storage-side form of the clock-time rule (POSIX, for SQL ~).
const ClockPattern = `(^|[^0-9])` + clockToken + `([^0-9]|$)`

// RE2 has no lookahead, so the trailing boundary is checked in clockTimes.
var clockPattern = regexp.MustCompile(`(?:^|[^0-9])(` + clockToken + `)`)

func clockTimes(text string) []string {
	var out []string
	for _, m := range clockPattern.FindAllStringSubmatchIndex(text, -1) {
		end := m[3]
		if end < len(text) && text[end] >= '0' && text[end] <= '9' {
			continue
		}
		out = append(out, text[m[2]:end])
	}
	return out
}

// Normalize trims only.
func Normalize(text string) string {
	return strings.TrimSpace(text)
}

// IsPreset checks literal membership in the preset set.
func IsPreset(text string) bool {
	for _, p := range Presets {
		if text == p {
			return true
		}
	}
	return false
}

// ExtractCustomTimes returns every HH:MM token in order of appearance,
// deduplicated.
func ExtractCustomTimes(text string) []string {
	matches := clockTimes(text)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// HasCustomTime reports whether text contains at least one HH:MM token.
func HasCustomTime(text string) bool {
	return len(clockTimes(text)) > 0
}

// Join joins custom times with Separator.
func Join(times []string) string {
	return strings.Join(times, Separator)
}

// Fields 时间窗口在表间传递时的存储形式
type Fields struct {
	Primary string // time_window
	Options string // time_window_options; empty unless two or more custom times
}

// Split applies the joining rule to a raw value:
//   - two or more custom times: Primary and Options both hold the joined list
//   - exactly one custom time: Primary holds it, Options stays empty
//   - none: the trimmed text passes through as Primary (preset or free label)
func Split(text string) Fields {
	times := ExtractCustomTimes(text)
	switch {
	case len(times) >= 2:
		joined := Join(times)
		return Fields{Primary: joined, Options: joined}
	case len(times) == 1:
		return Fields{Primary: times[0]}
	default:
		return Fields{Primary: Normalize(text)}
	}
}

// OptionList returns the choices offered when completing a visit: the custom
// times of the options field when present, otherwise the presets.
func OptionList(fields Fields) []string {
	if times := ExtractCustomTimes(fields.Options); len(times) > 0 {
		return times
	}
	if times := ExtractCustomTimes(fields.Primary); len(times) > 0 {
		return times
	}
	out := make([]string, len(Presets))
	copy(out, Presets)
	return out
}

// Tag classifies a raw value for the grid filter: TagCustom when it carries a
// clock time, the preset label for presets (trimmed, any case), otherwise the
// trimmed text.
func Tag(text string) string {
	if HasCustomTime(text) {
		return TagCustom
	}
	t := Normalize(text)
	if p, ok := PresetFold(t); ok {
		return p
	}
	return t
}

// PresetFold returns the preset equal to text ignoring case.
func PresetFold(text string) (string, bool) {
	for _, p := range Presets {
		if strings.EqualFold(text, p) {
			return p, true
		}
	}
	return "", false
}

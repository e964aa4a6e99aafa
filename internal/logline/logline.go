// Package logline extracts the timestamp, level, source and message of a
// single free-form log line.
package logline

import (
	"regexp"
	"strings"
	"time"
)

const (
	LevelDebug    = 0
	LevelInfo     = 1
	LevelWarn     = 2
	LevelError    = 3
	LevelCritical = 4
	LevelUnknown  = 255
)

// Entry is the structured view of one log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	Level     uint8     `json:"level"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message"`
}

type timestampFormat struct {
	re     *regexp.Regexp
	layout string
}

var timestampFormats = []timestampFormat{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}`), "2006-01-02 15:04:05"},
	{regexp.MustCompile(`[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`), "Jan 2 15:04:05"},
	{regexp.MustCompile(`\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2}`), "01/02/2006 15:04:05"},
}

var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\w+)\[\d+\]:`), // process[pid]:
	regexp.MustCompile(`(\w+):\s`),      // module:
	regexp.MustCompile(`\[(\w+)\]`),     // [module]
}

var prefixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}[.\d]*\s*`),
	regexp.MustCompile(`^\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}\s*`),
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2}\s*`),
	regexp.MustCompile(`^\w+\[\d+\]:\s*`),
	regexp.MustCompile(`^\[\w+\]\s*`),
}

// Keyword groups are checked in order; the first group with a hit wins.
var levelKeywords = []struct {
	level uint8
	words []string
}{
	{LevelError, []string{"error", "err", "fatal"}},
	{LevelWarn, []string{"warn"}},
	{LevelInfo, []string{"info"}},
	{LevelDebug, []string{"debug", "dbg"}},
	{LevelCritical, []string{"critical", "crit", "panic"}},
}

// Parse extracts what it can from line. Missing parts are left zero and the
// level falls back to LevelUnknown.
func Parse(line string) Entry {
	return Entry{
		Timestamp: ParseTimestamp(line),
		Level:     DetectLevel(line),
		Source:    DetectSource(line),
		Message:   StripPrefix(line),
	}
}

// ParseTimestamp returns the first recognised timestamp in line, or the
// zero time. Syslog stamps carry no year and are reported in year 0.
func ParseTimestamp(line string) time.Time {
	for _, f := range timestampFormats {
		m := f.re.FindString(line)
		if m == "" {
			continue
		}
		m = strings.Join(strings.Fields(m), " ")
		if ts, err := time.Parse(f.layout, m); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// DetectLevel classifies a line by keyword.
func DetectLevel(line string) uint8 {
	lower := strings.ToLower(line)
	for _, group := range levelKeywords {
		for _, w := range group.words {
			if strings.Contains(lower, w) {
				return group.level
			}
		}
	}
	return LevelUnknown
}

// DetectSource returns the process or module name of a line, if any.
func DetectSource(line string) string {
	for _, re := range sourcePatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// StripPrefix removes leading timestamps and source tags from line.
func StripPrefix(line string) string {
	msg := line
	for _, re := range prefixPatterns {
		msg = re.ReplaceAllString(msg, "")
	}
	return strings.TrimSpace(msg)
}

// EncodeLevel converts a level name to its code.
func EncodeLevel(l string) uint8 {
	switch strings.ToUpper(l) {
	case "DEBUG", "DBG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR", "ERR", "FATAL":
		return LevelError
	case "CRITICAL", "CRIT", "PANIC":
		return LevelCritical
	default:
		return LevelUnknown
	}
}

// DecodeLevel converts a level code to its name.
func DecodeLevel(l uint8) string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

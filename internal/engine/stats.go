package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coffersTech/nanorule/internal/logline"
)

// maxTopSources bounds FileStats.TopSources.
const maxTopSources = 10

// FileStats describes the lines of one analyzed file.
type FileStats struct {
	TotalLines int            `json:"total_lines"`
	LevelDist  map[string]int `json:"level_dist"`  // e.g. "ERROR": 12
	TopSources map[string]int `json:"top_sources"` // e.g. "kernel": 40
}

func computeFileStats(c *Content) FileStats {
	stats := FileStats{
		TotalLines: c.LineCount(),
		LevelDist:  make(map[string]int),
		TopSources: make(map[string]int),
	}

	sources := make(map[string]int)
	for _, line := range c.Lines {
		if line == "" {
			continue
		}
		stats.LevelDist[logline.DecodeLevel(logline.DetectLevel(line))]++
		if src := logline.DetectSource(line); src != "" {
			sources[src]++
		}
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if sources[names[i]] != sources[names[j]] {
			return sources[names[i]] > sources[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > maxTopSources {
		names = names[:maxTopSources]
	}
	for _, name := range names {
		stats.TopSources[name] = sources[name]
	}
	return stats
}

// PersistentStats holds cumulative statistics that survive restarts.
type PersistentStats struct {
	FilesAnalyzed  int64            `json:"files_analyzed"`
	LinesScanned   int64            `json:"lines_scanned"`
	HighSeverity   int64            `json:"high_severity"`
	MediumSeverity int64            `json:"medium_severity"`
	RuleHits       map[string]int64 `json:"rule_hits"` // rule ID -> issues
}

// statsFileName is the filename for persisted stats
const statsFileName = ".nanorule.stats"

// StatsCollector accumulates report totals and persists them in the data
// directory.
type StatsCollector struct {
	mu      sync.RWMutex
	dataDir string
	stats   PersistentStats
}

// NewStatsCollector loads previously saved totals from dataDir.
func NewStatsCollector(dataDir string) *StatsCollector {
	s := &StatsCollector{dataDir: dataDir}
	s.load()
	return s
}

// Record adds a report to the totals.
func (s *StatsCollector) Record(r *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.FilesAnalyzed++
	s.stats.LinesScanned += int64(r.Stats.TotalLines)
	s.stats.HighSeverity += int64(r.Summary.HighSeverity)
	s.stats.MediumSeverity += int64(r.Summary.MediumSeverity)
	for _, issue := range r.Issues {
		s.stats.RuleHits[issue.RuleID]++
	}
}

// Snapshot returns a copy of the totals.
func (s *StatsCollector) Snapshot() PersistentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.stats
	out.RuleHits = make(map[string]int64, len(s.stats.RuleHits))
	for k, v := range s.stats.RuleHits {
		out.RuleHits[k] = v
	}
	return out
}

// Save writes the totals to the data directory, replacing the previous
// file through a rename.
func (s *StatsCollector) Save() error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	path := s.path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return os.Rename(tmp, path)
}

func (s *StatsCollector) path() string {
	return filepath.Join(s.dataDir, statsFileName)
}

// load restores saved totals. A missing or unreadable file starts from zero.
func (s *StatsCollector) load() {
	s.stats = PersistentStats{}
	if data, err := os.ReadFile(s.path()); err == nil {
		if json.Unmarshal(data, &s.stats) != nil {
			s.stats = PersistentStats{}
		}
	}
	if s.stats.RuleHits == nil {
		s.stats.RuleHits = make(map[string]int64)
	}
}

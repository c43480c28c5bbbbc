package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"faultfs/internal/fs"
	"faultfs/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("report")
)

// Journal accumulates injected faults in memory and writes them to the
// report file on Save.
type Journal struct {
	reportPath  string
	backupDir   string
	backupCount int
	target      string

	mu     sync.Mutex
	report *Report
	dirty  bool
}

var _ fs.FaultRecorder = (*Journal)(nil)

// NewJournal creates a journal writing to reportPath for faults under
// target. Nothing touches the disk until Open.
func NewJournal(reportPath, target string) (*Journal, error) {
	logger.Debug("Creating fault journal with path: %s", reportPath)

	absPath, err := filepath.Abs(reportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve report path %s: %w", reportPath, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target %s: %w", target, err)
	}

	now := time.Now()
	return &Journal{
		reportPath:  absPath,
		backupDir:   filepath.Join(filepath.Dir(absPath), ".faultfs-backups"),
		backupCount: 5,
		target:      absTarget,
		report: &Report{
			Target:  absTarget,
			Started: now,
			Updated: now,
			Files:   make(map[string]*FileFaults),
			Version: Version,
		},
	}, nil
}

// Open prepares the report location. A report left by a previous run is
// moved to the backup directory, and the current report is written to
// check that the location is writable.
func (j *Journal) Open() error {
	reportDir := filepath.Dir(j.reportPath)
	logger.Debug("Ensuring report directory exists: %s", reportDir)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", reportDir, err)
	}
	if err := os.MkdirAll(j.backupDir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", j.backupDir, err)
	}

	if err := j.createBackup(); err != nil {
		logger.Warn("Failed to back up previous report: %v", err)
	}

	if err := j.Save(); err != nil {
		return err
	}

	logger.Info("Fault journal writing to %s", j.reportPath)
	return nil
}

// Path returns the absolute report path.
func (j *Journal) Path() string {
	return j.reportPath
}

// RecordFault adds one fault to the in-memory report.
func (j *Journal) RecordFault(f fs.Fault) {
	name := f.Path
	if rel, err := filepath.Rel(j.target, f.Path); err == nil {
		name = rel
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, ok := j.report.Files[name]
	if !ok {
		file = &FileFaults{}
		j.report.Files[name] = file
	}
	file.add(f)
	file.LastOffset = f.Offset
	file.LastHalf = f.Half.String()
	j.report.Totals.add(f)
	j.dirty = true
}

func (c *Counters) add(f fs.Fault) {
	c.Faults++
	if f.Half == fs.FirstHalf {
		c.FirstHalf++
	} else {
		c.SecondHalf++
	}
	c.RequestedBytes += int64(f.Requested)
	c.PersistedBytes += int64(f.Persisted)
}

// Snapshot returns a deep copy of the current report.
func (j *Journal) Snapshot() Report {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := *j.report
	out.Files = make(map[string]*FileFaults, len(j.report.Files))
	for name, file := range j.report.Files {
		cp := *file
		out.Files[name] = &cp
	}
	return out
}

// Save writes the report to disk and verifies the write.
func (j *Journal) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	logger.Debug("Saving report to: %s", j.reportPath)
	j.report.Updated = time.Now()

	data, err := json.MarshalIndent(j.report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	logger.Trace("Writing %d bytes of report data", len(data))
	tmp := j.reportPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := os.Rename(tmp, j.reportPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace report file: %w", err)
	}

	written, err := os.ReadFile(j.reportPath)
	if err != nil {
		return fmt.Errorf("failed to verify written report: %w", err)
	}
	if len(written) != len(data) {
		return fmt.Errorf("report file has %d bytes after writing %d", len(written), len(data))
	}

	j.dirty = false
	return nil
}

// Run saves the report every interval while it has unsaved faults, and
// once more when ctx is done.
func (j *Journal) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.mu.Lock()
			dirty := j.dirty
			j.mu.Unlock()
			if !dirty {
				continue
			}
			if err := j.Save(); err != nil {
				logger.Warn("Periodic report save failed: %v", err)
			}
		case <-ctx.Done():
			logger.Debug("Writing final report")
			return j.Save()
		}
	}
}

// Load reads a report written by a Journal.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("report file is empty")
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report file: %w", err)
	}
	if r.Files == nil {
		r.Files = make(map[string]*FileFaults)
	}
	return &r, nil
}

// createBackup moves an existing non-empty report into the backup
// directory under a timestamped name.
func (j *Journal) createBackup() error {
	info, err := os.Stat(j.reportPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	timestamp := info.ModTime().Format("20060102-150405.000000000")
	backupPath := filepath.Join(j.backupDir, fmt.Sprintf("report-%s.json", timestamp))

	logger.Debug("Creating backup: %s", backupPath)
	if err := os.Rename(j.reportPath, backupPath); err != nil {
		return fmt.Errorf("failed to move report to backup: %w", err)
	}

	return j.cleanupOldBackups()
}

// cleanupOldBackups removes old backup files, keeping only the most recent ones
func (j *Journal) cleanupOldBackups() error {
	entries, err := os.ReadDir(j.backupDir)
	if err != nil {
		return err
	}

	type backup struct {
		path    string
		modTime time.Time
	}

	backups := make([]backup, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{
			path:    filepath.Join(j.backupDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	// Newest first
	sort.Slice(backups, func(a, b int) bool {
		return backups[a].modTime.After(backups[b].modTime)
	})

	for i := j.backupCount; i < len(backups); i++ {
		logger.Debug("Removing old backup: %s", backups[i].path)
		if err := os.Remove(backups[i].path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].path, err)
		}
	}

	return nil
}

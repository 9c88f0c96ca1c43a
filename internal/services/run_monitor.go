package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentscan/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// ArtifactSet is what a session has written to its target directory so far.
type ArtifactSet struct {
	Count        int
	FindingsPath string
	ReportPath   string
}

// ScanArtifacts lists the files in dir that belong to sessionID. Temporary
// files from in-flight atomic writes are ignored.
func ScanArtifacts(dir, sessionID string) ArtifactSet {
	var set ArtifactSet
	entries, err := os.ReadDir(dir)
	if err != nil {
		return set
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.Contains(name, sessionID) {
			continue
		}
		set.Count++
		switch {
		case strings.HasPrefix(name, "findings_report-"):
			set.ReportPath = filepath.Join(dir, name)
		case strings.HasPrefix(name, "findings-"):
			set.FindingsPath = filepath.Join(dir, name)
		}
	}
	return set
}

// ArtifactMonitor follows a session directory and reports its artifacts
// whenever they change, throttled to one update per interval.
type ArtifactMonitor struct {
	dir       string
	sessionID string
	interval  time.Duration
	onChange  func(ArtifactSet)
	logger    *logger.Logger
}

func NewArtifactMonitor(dir, sessionID string, interval time.Duration, l *logger.Logger, onChange func(ArtifactSet)) *ArtifactMonitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ArtifactMonitor{
		dir:       dir,
		sessionID: sessionID,
		interval:  interval,
		onChange:  onChange,
		logger:    l,
	}
}

// Run blocks until ctx is done, then performs a final update.
func (m *ArtifactMonitor) Run(ctx context.Context) {
	fields := logger.Fields{"dir": m.dir, "session_id": m.sessionID}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.WithFields(fields).WithError(err).Error("Failed to create artifact watcher")
		<-ctx.Done()
		m.update()
		return
	}
	defer watcher.Close()

	if err := watcher.Add(m.dir); err != nil {
		m.logger.WithFields(fields).WithError(err).Error("Error adding directory to watcher")
		<-ctx.Done()
		m.update()
		return
	}

	m.update()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	updatePending := false

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 &&
				strings.Contains(name, m.sessionID) && !strings.HasPrefix(name, ".") {
				updatePending = true
			}

		case <-ticker.C:
			if updatePending {
				m.update()
				updatePending = false
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.WithFields(fields).WithError(err).Error("Artifact watcher error")

		case <-ctx.Done():
			m.logger.WithFields(fields).Debug("Stopping artifact monitor, performing final update")
			m.update()
			return
		}
	}
}

func (m *ArtifactMonitor) update() {
	m.onChange(ScanArtifacts(m.dir, m.sessionID))
}

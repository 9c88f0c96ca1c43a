// Package session persists per-target session records and artifacts under
// the scans root, one directory per domain.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "agentscan/pkg/errors"
	"agentscan/pkg/workflow"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultRoot     = "./Scans"
	timestampLayout = "02-01-2006-15-04-05"
	maxOpenAttempts = 3
)

// Record is the initial session file written by Open.
type Record struct {
	SessionID   string                  `json:"session_id"`
	Domain      string                  `json:"domain"`
	TargetIP    string                  `json:"target_ip"`
	Description string                  `json:"scan_description"`
	Parameters  workflow.ScanParameters `json:"scan_parameters"`
	Output      []string                `json:"output"`
	CreatedAt   time.Time               `json:"created_at"`
}

// StoreOptions holds options for the session store
type StoreOptions struct {
	Root        string
	Permissions os.FileMode
	Now         func() time.Time
	NewSuffix   func() string
}

// Store creates session directories and writes session artifacts.
type Store struct {
	opts StoreOptions
}

func NewStore(root string) *Store {
	return NewStoreWithOptions(StoreOptions{Root: root})
}

func NewStoreWithOptions(opts StoreOptions) *Store {
	if opts.Root == "" {
		opts.Root = DefaultRoot
	}
	if opts.Permissions == 0 {
		opts.Permissions = 0755
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewSuffix == nil {
		opts.NewSuffix = func() string { return uuid.New().String()[:8] }
	}
	return &Store{opts: opts}
}

func (s *Store) Root() string {
	return s.opts.Root
}

// DomainDir returns the directory holding every session of domain.
func (s *Store) DomainDir(domain string) string {
	return filepath.Join(s.opts.Root, sanitizeForFilesystem(domain))
}

// Open creates the domain directory if needed and writes a new session
// record. It never overwrites an existing record.
func (s *Store) Open(domain, targetIP, description string, params workflow.ScanParameters) (*workflow.Session, error) {
	dir := s.DomainDir(domain)
	if err := os.MkdirAll(dir, s.opts.Permissions); err != nil {
		return nil, apperrors.NewPersistenceError("create directory", dir, err)
	}

	createdAt := s.opts.Now()
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		id := fmt.Sprintf("log-%s-%s", createdAt.Format(timestampLayout), s.opts.NewSuffix())
		path := filepath.Join(dir, id+".json")

		record := Record{
			SessionID:   id,
			Domain:      domain,
			TargetIP:    targetIP,
			Description: description,
			Parameters:  params.Clone(),
			Output:      []string{},
			CreatedAt:   createdAt.UTC(),
		}
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return nil, apperrors.NewPersistenceError("encode session record", path, err)
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			log.Warnf("Session record %s already exists, picking a new id", path)
			continue
		}
		if err != nil {
			return nil, apperrors.NewPersistenceError("create session record", path, err)
		}
		_, werr := f.Write(append(data, '\n'))
		cerr := f.Close()
		if werr != nil {
			return nil, apperrors.NewPersistenceError("write session record", path, werr)
		}
		if cerr != nil {
			return nil, apperrors.NewPersistenceError("close session record", path, cerr)
		}

		log.Infof("Created session record: %s", path)
		return &workflow.Session{
			ID:          id,
			Domain:      domain,
			TargetIP:    targetIP,
			Description: description,
			Parameters:  params.Clone(),
			LogPath:     path,
			Dir:         dir,
			CreatedAt:   record.CreatedAt,
		}, nil
	}

	return nil, apperrors.NewPersistenceError("create session record", dir,
		fmt.Errorf("no unique session id after %d attempts", maxOpenAttempts))
}

func (s *Store) FindingsPath(sess *workflow.Session) string {
	return filepath.Join(sess.Dir, "findings-"+sess.ID+".json")
}

func (s *Store) ReportPath(sess *workflow.Session) string {
	return filepath.Join(sess.Dir, "findings_report-"+sess.ID+".md")
}

// PersistFindings writes the findings log for sess and returns its path.
// Writing an unchanged log again yields an identical file.
func (s *Store) PersistFindings(sess *workflow.Session, findings *workflow.FindingsLog) (string, error) {
	path := s.FindingsPath(sess)
	data, err := findings.MarshalJSON()
	if err != nil {
		return "", apperrors.NewPersistenceError("encode findings", path, err)
	}
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return "", err
	}
	log.Infof("Persisted %d findings to %s", findings.Len(), path)
	return path, nil
}

// PersistReport writes the approved report for sess, replacing any earlier
// report of the same session.
func (s *Store) PersistReport(sess *workflow.Session, text string) (string, error) {
	path := s.ReportPath(sess)
	if err := writeFileAtomic(path, []byte(text)); err != nil {
		return "", err
	}
	log.Infof("Findings report saved as %s", path)
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperrors.NewPersistenceError("create temp file", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewPersistenceError("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewPersistenceError("close", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return apperrors.NewPersistenceError("chmod", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.NewPersistenceError("rename", path, err)
	}
	return nil
}

// sanitizeForFilesystem removes or replaces characters that are invalid in filenames
func sanitizeForFilesystem(input string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)

	sanitized := replacer.Replace(strings.TrimSpace(input))

	sanitized = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, sanitized)

	if sanitized == "" || sanitized == "." || sanitized == ".." {
		sanitized = "unknown"
	}

	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}

	return sanitized
}

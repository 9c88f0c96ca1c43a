package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	WorkflowLogName = "workflow.log"
	ErrorLogName    = "error.log"
)

// SessionLogger tees workflow logging for one target into its session
// directory, next to the session record and artifacts.
type SessionLogger struct {
	*Logger
	sessionID   string
	sessionDir  string
	logFile     *os.File
	errorFile   *os.File
	mu          sync.Mutex
	multiWriter io.Writer
}

func NewSessionLogger(sessionID, sessionDir string, level logrus.Level, console io.Writer) (*SessionLogger, error) {
	baseLogger := NewLogger(level)

	logFilePath := filepath.Join(sessionDir, WorkflowLogName)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow log file: %w", err)
	}

	errorFilePath := filepath.Join(sessionDir, ErrorLogName)
	errorFile, err := os.OpenFile(errorFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to create error log file: %w", err)
	}

	header := fmt.Sprintf("\n=== Session Log Started: %s ===\n", time.Now().Format(time.RFC3339))
	header += fmt.Sprintf("Session ID: %s\n", sessionID)
	header += fmt.Sprintf("Session Directory: %s\n", sessionDir)
	header += "==========================================\n\n"
	logFile.WriteString(header)

	if console == nil {
		console = os.Stdout
	}
	multiWriter := io.MultiWriter(console, logFile)
	baseLogger.Logger.SetOutput(multiWriter)

	return &SessionLogger{
		Logger:      baseLogger,
		sessionID:   sessionID,
		sessionDir:  sessionDir,
		logFile:     logFile,
		errorFile:   errorFile,
		multiWriter: multiWriter,
	}, nil
}

func (sl *SessionLogger) LogError(component string, err error, fields Fields) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if fields == nil {
		fields = Fields{}
	}
	fields["component"] = component
	fields["session_id"] = sl.sessionID

	sl.WithFields(fields).WithError(err).Error("Error occurred")

	errorMsg := fmt.Sprintf("[%s] [%s] Error in %s: %v\n",
		time.Now().Format(time.RFC3339),
		sl.sessionID,
		component,
		err,
	)
	sl.errorFile.WriteString(errorMsg)
}

// LogStageOutput appends a raw stage payload (strategy, command output,
// report draft) to the workflow log without echoing it to the console.
func (sl *SessionLogger) LogStageOutput(stage, output string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	timestamp := time.Now().Format(time.RFC3339)
	message := fmt.Sprintf("\n--- [%s] Stage: %s ---\n%s\n--- End %s ---\n\n", timestamp, stage, output, stage)
	sl.logFile.WriteString(message)

	sl.WithFields(Fields{
		"stage":      stage,
		"session_id": sl.sessionID,
	}).Debug("Stage output captured")
}

func (sl *SessionLogger) LogTargetFailure(reason string, err error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	timestamp := time.Now().Format(time.RFC3339)
	failureMsg := fmt.Sprintf("\n=== TARGET FAILED: %s ===\n", timestamp)
	failureMsg += fmt.Sprintf("Session ID: %s\n", sl.sessionID)
	failureMsg += fmt.Sprintf("Reason: %s\n", reason)
	if err != nil {
		failureMsg += fmt.Sprintf("Error: %v\n", err)
	}
	failureMsg += "=====================================\n\n"

	sl.logFile.WriteString(failureMsg)
	sl.errorFile.WriteString(failureMsg)

	entry := sl.WithFields(Fields{
		"session_id": sl.sessionID,
		"reason":     reason,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error("Target failed")
}

func (sl *SessionLogger) LogTargetSuccess(reportPath string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	timestamp := time.Now().Format(time.RFC3339)
	successMsg := fmt.Sprintf("\n=== REPORT APPROVED: %s ===\n", timestamp)
	successMsg += fmt.Sprintf("Session ID: %s\n", sl.sessionID)
	successMsg += fmt.Sprintf("Report: %s\n", reportPath)
	successMsg += "=========================================\n\n"

	sl.logFile.WriteString(successMsg)

	sl.WithFields(Fields{
		"session_id": sl.sessionID,
		"report":     reportPath,
	}).Info("Target completed")
}

func (sl *SessionLogger) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	var errs []error

	if sl.logFile != nil {
		footer := fmt.Sprintf("\n=== Session Log Ended: %s ===\n", time.Now().Format(time.RFC3339))
		sl.logFile.WriteString(footer)

		if err := sl.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
		}
		sl.logFile = nil
	}

	if sl.errorFile != nil {
		if err := sl.errorFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close error file: %w", err))
		}
		sl.errorFile = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing session logger: %v", errs)
	}

	return nil
}

func (sl *SessionLogger) LogFilePath() string {
	return filepath.Join(sl.sessionDir, WorkflowLogName)
}

func (sl *SessionLogger) ErrorLogFilePath() string {
	return filepath.Join(sl.sessionDir, ErrorLogName)
}

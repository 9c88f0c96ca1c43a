package models

// Run statuses. A run is queued until the server's single workflow slot is
// free, then running until the target's workflow ends.
const (
	RunStatusQueued  = "queued"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusSkipped = "skipped"
	RunStatusFailed  = "failed"
)

// Run is the index record of one target's workflow in server mode. The
// session files under the scans directory remain the source of truth.
type Run struct {
	UUID         string `gorm:"primaryKey;type:varchar(36)" json:"uuid"`
	Domain       string `gorm:"index" json:"domain"`
	Description  string `json:"description"`
	TargetIP     string `json:"target_ip"`
	Status       string `gorm:"index" json:"status"`
	State        string `json:"state"`
	ErrorMessage string `json:"error_message,omitempty"`
	SessionID    string `json:"session_id"`
	SessionDir   string `json:"session_dir"`
	FindingsPath string `json:"findings_path"`
	ReportPath   string `json:"report_path"`
	Artifacts    int    `json:"artifacts"`
	CreatedAt    int64  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    int64  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Run) Finished() bool {
	switch r.Status {
	case RunStatusDone, RunStatusSkipped, RunStatusFailed:
		return true
	}
	return false
}

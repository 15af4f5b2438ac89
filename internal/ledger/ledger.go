// Package ledger persists the per-run submission history in .SUBMISSIONS.csv.
// Rows are appended by every invocation that submits into the run folder,
// so reruns and cleanups keep the earlier rows.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aerox/simflow/internal/models"
)

// FileName is the ledger file kept in each run folder.
const FileName = ".SUBMISSIONS.csv"

// Submit statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var header = []string{"Step", "Folder", "Queue", "SimFile", "DependsOn", "JobID", "SubmitStatus", "ErrorMessage", "LastUpdated"}

// UnreadableError reports a ledger file that could not be parsed. Aside is
// where the file was moved before a new ledger is started, or "" when it is
// still in place and the ledger stays unsaved.
type UnreadableError struct {
	Path  string
	Aside string
	Err   error
}

func (e *UnreadableError) Error() string {
	if e.Aside == "" {
		return fmt.Sprintf("ledger %s is unreadable and left in place: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("ledger %s is unreadable, moved to %s: %v", e.Path, e.Aside, e.Err)
}

func (e *UnreadableError) Unwrap() error {
	return e.Err
}

// Manager manages the ledger of one run folder.
type Manager struct {
	filePath string
	records  []*models.SubmissionRecord
	mu       sync.RWMutex
	// frozen is set when an unreadable ledger could not be moved aside.
	frozen   bool
	now      func() time.Time
}

// NewManager creates a ledger manager for runDir.
func NewManager(runDir string) *Manager {
	return &Manager{filePath: filepath.Join(runDir, FileName), now: time.Now}
}

// Path returns the ledger file path.
func (m *Manager) Path() string {
	return m.filePath
}

// Load reads existing rows. A missing file is an empty ledger. A file that
// cannot be parsed is moved aside and reported as an *UnreadableError.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.Open(m.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		m.frozen = true
		return &UnreadableError{Path: m.filePath, Err: err}
	}

	rows, err := csv.NewReader(file).ReadAll()
	file.Close()
	if err != nil {
		return m.setAsideUnlocked(err)
	}

	m.records = m.records[:0]
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) < len(header) {
			continue
		}
		lastUpdated, _ := time.Parse(time.RFC3339, row[8])
		m.records = append(m.records, &models.SubmissionRecord{
			Step:         row[0],
			Folder:       row[1],
			Queue:        row[2],
			SimFile:      row[3],
			DependsOn:    row[4],
			JobID:        row[5],
			SubmitStatus: row[6],
			ErrorMessage: row[7],
			LastUpdated:  lastUpdated,
		})
	}
	return nil
}

// Begin appends a pending row for job and saves the ledger.
func (m *Manager) Begin(job *models.Job, dependsOn string) (*models.SubmissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &models.SubmissionRecord{
		Step:         job.Step.String(),
		Folder:       job.Path,
		Queue:        job.Queue,
		SimFile:      job.Software.Sim(),
		DependsOn:    dependsOn,
		SubmitStatus: StatusPending,
		LastUpdated:  time.Now(),
	}
	m.records = append(m.records, rec)
	return rec, m.saveUnlocked()
}

// Succeed marks rec submitted with jobID and saves the ledger.
func (m *Manager) Succeed(rec *models.SubmissionRecord, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.JobID = jobID
	rec.SubmitStatus = StatusSuccess
	rec.ErrorMessage = ""
	rec.LastUpdated = time.Now()
	return m.saveUnlocked()
}

// Fail marks rec failed with cause and saves the ledger.
func (m *Manager) Fail(rec *models.SubmissionRecord, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.SubmitStatus = StatusFailed
	if cause != nil {
		rec.ErrorMessage = cause.Error()
	}
	rec.LastUpdated = time.Now()
	return m.saveUnlocked()
}

// Records returns copies of all rows in file order.
func (m *Manager) Records() []models.SubmissionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SubmissionRecord, len(m.records))
	for i, r := range m.records {
		out[i] = *r
	}
	return out
}

// CountByStatus counts rows with the given submit status.
func (m *Manager) CountByStatus(status string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.records {
		if r.SubmitStatus == status {
			count++
		}
	}
	return count
}

// setAsideUnlocked moves an unparsable ledger out of the way so the next
// save starts a new file without losing its rows.
func (m *Manager) setAsideUnlocked(cause error) error {
	m.records = nil
	aside := fmt.Sprintf("%s.unreadable-%s", m.filePath, m.now().Format("20060102T150405"))
	if err := os.Rename(m.filePath, aside); err != nil {
		m.frozen = true
		return &UnreadableError{Path: m.filePath, Err: fmt.Errorf("%v; move aside failed: %w", cause, err)}
	}
	return &UnreadableError{Path: m.filePath, Aside: aside, Err: cause}
}

// saveUnlocked writes the ledger through a temporary file and a rename.
// Caller must hold m.mu.
func (m *Manager) saveUnlocked() error {
	if m.frozen {
		return fmt.Errorf("ledger %s not saved: unreadable file left in place", m.filePath)
	}
	tempFile := m.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			file.Close()
			os.Remove(tempFile)
		}
	}()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	for _, r := range m.records {
		row := []string{
			r.Step,
			r.Folder,
			r.Queue,
			r.SimFile,
			r.DependsOn,
			r.JobID,
			r.SubmitStatus,
			r.ErrorMessage,
			r.LastUpdated.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write ledger record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger writer: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temp ledger file: %w", err)
	}
	if err := os.Rename(tempFile, m.filePath); err != nil {
		return fmt.Errorf("failed to rename ledger file: %w", err)
	}

	success = true
	return nil
}

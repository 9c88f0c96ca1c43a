package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"agentscan/internal/models"
	"agentscan/pkg/engine"
	"agentscan/pkg/logger"
	"agentscan/pkg/resolver"
	"agentscan/pkg/session"
	"agentscan/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryRunDAO struct {
	mu      sync.Mutex
	runs    map[string]models.Run
	history map[string][]string
}

func newMemoryRunDAO() *memoryRunDAO {
	return &memoryRunDAO{runs: map[string]models.Run{}, history: map[string][]string{}}
}

func (d *memoryRunDAO) SaveRun(run *models.Run) error {
	return d.UpdateRun(run)
}

func (d *memoryRunDAO) UpdateRun(run *models.Run) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs[run.UUID] = *run
	h := d.history[run.UUID]
	if len(h) == 0 || h[len(h)-1] != run.Status {
		d.history[run.UUID] = append(h, run.Status)
	}
	return nil
}

func (d *memoryRunDAO) GetRunByUUID(uuid string) (*models.Run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[uuid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &run, nil
}

func (d *memoryRunDAO) ListRuns() ([]models.Run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Run, 0, len(d.runs))
	for _, r := range d.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (d *memoryRunDAO) ListRunsWithPagination(page, limit int) ([]models.Run, int64, error) {
	runs, _ := d.ListRuns()
	return runs, int64(len(runs)), nil
}

func (d *memoryRunDAO) ListRunsByStatus(status string) ([]models.Run, error) {
	runs, _ := d.ListRuns()
	var out []models.Run
	for _, r := range runs {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *memoryRunDAO) DeleteRun(uuid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.runs[uuid]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(d.runs, uuid)
	return nil
}

func orchestratorFactory(t *testing.T, root string, script *testutil.Script) RunnerFactory {
	return func(observers ...engine.Observer) (Runner, error) {
		opts := []engine.OptFunc{
			engine.WithResolver(resolver.StaticResolver{"example.com": "93.184.216.34"}),
			engine.WithStore(session.NewStore(root)),
			engine.WithStages(script.Stages()),
			engine.WithLogger(logger.NewDiscardLogger()),
			engine.WithSessionLogs(false, nil),
		}
		for _, o := range observers {
			opts = append(opts, engine.WithObserver(o))
		}
		return engine.NewOrchestrator(opts...)
	}
}

func newTestService(t *testing.T, dao *memoryRunDAO, factory RunnerFactory) *RunService {
	return NewRunService(context.Background(), dao, factory,
		WithQueue(engine.NewRunQueue(1, logger.NewDiscardLogger())),
		WithServiceLogger(logger.NewDiscardLogger()),
		WithMonitorInterval(20*time.Millisecond),
	)
}

func TestStartRun_Completes(t *testing.T) {
	root := t.TempDir()
	dao := newMemoryRunDAO()
	svc := newTestService(t, dao, orchestratorFactory(t, root, testutil.Approving("80/tcp open", "# Report")))

	id, err := svc.StartRun(&models.Run{Domain: " example.com ", Description: "Main site"})
	require.NoError(t, err)
	svc.Wait()

	run, err := svc.GetRun(id)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.RunStatusDone, run.Status)
	assert.Equal(t, "example.com", run.Domain)
	assert.Equal(t, "done", run.State)
	assert.Equal(t, "93.184.216.34", run.TargetIP)
	assert.Equal(t, filepath.Join(root, "example.com"), run.SessionDir)
	assert.FileExists(t, run.FindingsPath)
	assert.FileExists(t, run.ReportPath)
	// session record, findings and report
	assert.Equal(t, 3, run.Artifacts)
	assert.Equal(t, []string{models.RunStatusQueued, models.RunStatusRunning, models.RunStatusDone}, dao.history[id])
}

func TestStartRun_Skipped(t *testing.T) {
	dao := newMemoryRunDAO()
	svc := newTestService(t, dao, orchestratorFactory(t, t.TempDir(), testutil.Approving("", "")))

	id, err := svc.StartRun(&models.Run{Domain: "unknown.invalid"})
	require.NoError(t, err)
	svc.Wait()

	run, err := svc.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSkipped, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
	assert.Empty(t, run.SessionDir)
}

func TestStartRun_FactoryError(t *testing.T) {
	dao := newMemoryRunDAO()
	svc := newTestService(t, dao, func(...engine.Observer) (Runner, error) {
		return nil, errors.New("missing credentials")
	})

	id, err := svc.StartRun(&models.Run{Domain: "example.com"})
	require.NoError(t, err)
	svc.Wait()

	run, err := svc.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "missing credentials")
}

func TestStartRun_RequiresDomain(t *testing.T) {
	svc := newTestService(t, newMemoryRunDAO(), nil)
	_, err := svc.StartRun(&models.Run{Domain: "   "})
	assert.ErrorIs(t, err, ErrInvalidRun)
}

func TestGetAndDeleteRun(t *testing.T) {
	dao := newMemoryRunDAO()
	svc := newTestService(t, dao, nil)

	run, err := svc.GetRun("missing")
	assert.NoError(t, err)
	assert.Nil(t, run)

	require.NoError(t, dao.SaveRun(&models.Run{UUID: "a", Status: models.RunStatusRunning}))
	require.NoError(t, dao.SaveRun(&models.Run{UUID: "b", Status: models.RunStatusDone}))

	assert.ErrorIs(t, svc.DeleteRun("a"), ErrRunActive)
	assert.NoError(t, svc.DeleteRun("b"))
	assert.ErrorIs(t, svc.DeleteRun("b"), gorm.ErrRecordNotFound)
}

func TestRecoverInterrupted(t *testing.T) {
	dao := newMemoryRunDAO()
	require.NoError(t, dao.SaveRun(&models.Run{UUID: "q", Status: models.RunStatusQueued}))
	require.NoError(t, dao.SaveRun(&models.Run{UUID: "r", Status: models.RunStatusRunning}))
	require.NoError(t, dao.SaveRun(&models.Run{UUID: "d", Status: models.RunStatusDone}))

	n, err := newTestService(t, dao, nil).RecoverInterrupted()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"q", "r"} {
		run, _ := dao.GetRunByUUID(id)
		assert.Equal(t, models.RunStatusFailed, run.Status)
	}
	done, _ := dao.GetRunByUUID("d")
	assert.Equal(t, models.RunStatusDone, done.Status)
}

func TestScanArtifacts(t *testing.T) {
	dir := t.TempDir()
	id := "log-01-01-2026-00-00-00-abcdef12"
	for _, name := range []string{
		id + ".json",
		"findings-" + id + ".json",
		"findings_report-" + id + ".md",
		".findings-" + id + ".json.tmp-123",
		"findings-log-other.json",
		"workflow.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	set := ScanArtifacts(dir, id)
	assert.Equal(t, 3, set.Count)
	assert.Equal(t, filepath.Join(dir, "findings-"+id+".json"), set.FindingsPath)
	assert.Equal(t, filepath.Join(dir, "findings_report-"+id+".md"), set.ReportPath)

	assert.Equal(t, ArtifactSet{}, ScanArtifacts(filepath.Join(dir, "missing"), id))
}

func TestArtifactMonitorFollowsWrites(t *testing.T) {
	dir := t.TempDir()
	id := "log-sess"

	var mu sync.Mutex
	var last ArtifactSet
	monitor := NewArtifactMonitor(dir, id, 10*time.Millisecond, logger.NewDiscardLogger(), func(set ArtifactSet) {
		mu.Lock()
		last = set
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(ctx)
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "findings-"+id+".json"), []byte("[]"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.FindingsPath != ""
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

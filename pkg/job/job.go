// Package job implements the Job Manager: it owns a bounded worker pool that
// drains contacts through the Cascade Coordinator, tracks job-level progress
// and lifecycle state, and resumes unfinished jobs after a restart (spec
// §4.7). It is grounded on the same worker-pool shape used elsewhere in the
// pack — a shared channel of work items drained by a fixed set of goroutines,
// shut down by closing the channel and waiting on a WaitGroup.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/captely/core/internal/audit"
	"github.com/captely/core/internal/db"
	"github.com/captely/core/internal/httpserver"
)

// Processor runs the cascade for a single contact. pkg/cascade.Coordinator
// satisfies this.
type Processor interface {
	Process(ctx context.Context, job db.Job, contact db.Contact) (db.Contact, error)
}

// Notifier delivers job-level events to an external collaborator (spec §6).
type Notifier interface {
	JobProgress(ctx context.Context, jobID uuid.UUID, completed, total int32)
	JobCompleted(ctx context.Context, jobID uuid.UUID, state db.JobState)
}

// AuditLogger records job-lifecycle actions for later inspection. nil is a
// valid value; the Manager skips logging when it is unset.
type AuditLogger interface {
	Log(entry audit.Entry)
}

// ContactInput carries one row of an ingestion batch (spec §4.7, §7
// invalid_input: first name, last name and company must all be present, or
// else a profile_url).
type ContactInput struct {
	FirstName     string
	LastName      string
	Position      *string
	Company       string
	CompanyDomain *string
	ProfileURL    *string
	Location      *string
	Industry      *string
}

// Valid reports whether the input carries enough identity to be worth
// enriching.
func (c ContactInput) Valid() bool {
	if c.FirstName != "" && c.LastName != "" && c.Company != "" {
		return true
	}
	return c.ProfileURL != nil && *c.ProfileURL != ""
}

type workItem struct {
	job     db.Job
	contact db.Contact
}

// jobRun tracks the in-flight bookkeeping for one job: its cancellation
// handle and wall-clock start, used to compute JobDuration and to decide
// whether a cancellation should finalize the job as partial.
type jobRun struct {
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	cancelled bool
}

// Manager owns the shared worker pool and the set of jobs currently in
// flight. One Manager is constructed per process; it is not a per-job
// object (spec §9 DESIGN NOTES: avoid process-wide singletons by injecting
// this Manager into whatever starts it, rather than reaching for package
// globals).
type Manager struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	processor Processor
	notifier  Notifier
	audit     AuditLogger

	queue      chan workItem
	numWorkers int
	wg         sync.WaitGroup

	mu   sync.Mutex
	runs map[uuid.UUID]*jobRun

	queueDepth  prometheus.Gauge
	jobDuration prometheus.Histogram
}

// New constructs a Manager. numWorkers and queueCapacity are expected to
// come from config.WorkerPoolSize (resolved to cpu_count*4 when zero) and
// config.WorkerQueueCapacity respectively. queueDepth and jobDuration may be
// nil in tests.
func New(
	pool *pgxpool.Pool,
	logger *slog.Logger,
	processor Processor,
	notifier Notifier,
	auditLogger AuditLogger,
	numWorkers, queueCapacity int,
	queueDepth prometheus.Gauge,
	jobDuration prometheus.Histogram,
) *Manager {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	return &Manager{
		pool: pool, logger: logger, processor: processor, notifier: notifier, audit: auditLogger,
		queue: make(chan workItem, queueCapacity), numWorkers: numWorkers,
		runs:        make(map[uuid.UUID]*jobRun),
		queueDepth:  queueDepth,
		jobDuration: jobDuration,
	}
}

// Start spawns the worker pool. It returns immediately; workers run until
// Stop is called or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for i := 0; i < m.numWorkers; i++ {
		m.wg.Add(1)
		go m.worker(ctx, i)
	}
}

// Stop closes the work queue and waits up to timeout for in-flight items to
// drain. Contacts still queued when the timeout expires are left pending and
// will be picked up by Resume on the next start.
func (m *Manager) Stop(timeout time.Duration) {
	close(m.queue)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("worker pool did not drain before shutdown timeout", "timeout", timeout)
	}
}

func (m *Manager) worker(ctx context.Context, workerID int) {
	defer m.wg.Done()

	for item := range m.queue {
		m.setQueueDepth(len(m.queue))
		m.runContact(ctx, workerID, item)
	}
}

// runContact processes one queued contact, retrying once on a worker-level
// exception (spec §7 internal_error) before giving up and marking the
// contact failed.
func (m *Manager) runContact(ctx context.Context, workerID int, item workItem) {
	if m.isCancelled(item.job.ID) {
		return
	}

	jobCtx := m.jobContext(ctx, item.job.ID)

	_, err := m.processor.Process(jobCtx, item.job, item.contact)
	if err != nil {
		m.logger.Error("cascade processing failed, retrying once", "error", err, "worker", workerID, "contact_id", item.contact.ID)
		_, err = m.processor.Process(jobCtx, item.job, item.contact)
	}
	if err != nil {
		m.logger.Error("cascade processing failed after retry, marking contact failed", "error", err, "contact_id", item.contact.ID)
		q := db.New(m.pool)
		item.contact.EnrichmentStatus = db.ContactFailed
		reason := "internal_error"
		item.contact.FailureReason = &reason
		if uErr := q.UpdateContactEnrichment(context.Background(), item.contact); uErr != nil {
			m.logger.Error("persisting internal_error contact", "error", uErr, "contact_id", item.contact.ID)
		}
		if cErr := q.IncrementJobCompleted(context.Background(), item.job.ID); cErr != nil {
			m.logger.Error("incrementing job progress after internal_error", "error", cErr, "job_id", item.job.ID)
		}
	}

	if m.notifier != nil {
		if job, gErr := db.New(m.pool).GetJob(context.Background(), item.job.ID); gErr == nil {
			m.notifier.JobProgress(context.Background(), job.ID, job.Completed, job.Total)
		}
	}

	m.maybeFinalize(item.job.ID)
}

// maybeFinalize checks whether a job's contacts have all reached a terminal
// state and, if so, transitions the job to completed or partial and fires
// JobCompleted (spec §4.7, invariant: every Contact in a completed Job has a
// terminal enrichment_status).
func (m *Manager) maybeFinalize(jobID uuid.UUID) {
	q := db.New(m.pool)
	j, err := q.GetJob(context.Background(), jobID)
	if err != nil {
		m.logger.Error("fetching job for finalize check", "error", err, "job_id", jobID)
		return
	}
	if j.Completed < j.Total {
		return
	}

	m.mu.Lock()
	run, ok := m.runs[jobID]
	cancelled := ok && run.cancelled
	if ok {
		delete(m.runs, jobID)
	}
	m.mu.Unlock()

	finalState := db.JobCompleted
	if cancelled {
		finalState = db.JobPartial
	}
	if err := q.SetJobState(context.Background(), jobID, finalState); err != nil {
		m.logger.Error("setting terminal job state", "error", err, "job_id", jobID, "state", finalState)
		return
	}

	if m.jobDuration != nil && ok {
		m.jobDuration.Observe(time.Since(run.startedAt).Seconds())
	}
	if m.notifier != nil {
		m.notifier.JobCompleted(context.Background(), jobID, finalState)
	}
	if m.audit != nil {
		detail, _ := json.Marshal(map[string]any{"state": finalState, "total": j.Total, "completed": j.Completed})
		m.audit.Log(audit.Entry{Owner: j.Owner, JobID: &jobID, Action: "job_finalized", Detail: detail})
	}
}

// SubmitJob creates a job and its contacts, then enqueues every valid
// contact for processing. Invalid inputs are skipped and do not count toward
// the job's total (spec §7 invalid_input).
func (m *Manager) SubmitJob(ctx context.Context, owner uuid.UUID, origin db.JobOrigin, inputs []ContactInput) (db.Job, error) {
	valid := make([]ContactInput, 0, len(inputs))
	for _, in := range inputs {
		if in.Valid() {
			valid = append(valid, in)
		}
	}
	if len(valid) == 0 {
		return db.Job{}, fmt.Errorf("no valid contacts in submission")
	}

	q := db.New(m.pool)
	j, err := q.CreateJob(ctx, db.CreateJobParams{ID: uuid.New(), Owner: owner, Total: int32(len(valid)), Origin: origin})
	if err != nil {
		return db.Job{}, fmt.Errorf("creating job: %w", err)
	}

	contacts := make([]db.Contact, 0, len(valid))
	for _, in := range valid {
		c, err := q.CreateContact(ctx, db.CreateContactParams{
			ID: uuid.New(), JobID: j.ID,
			FirstName: in.FirstName, LastName: in.LastName, Position: in.Position,
			Company: in.Company, CompanyDomain: in.CompanyDomain, ProfileURL: in.ProfileURL,
			Location: in.Location, Industry: in.Industry,
		})
		if err != nil {
			return db.Job{}, fmt.Errorf("creating contact: %w", err)
		}
		contacts = append(contacts, c)
	}

	if err := q.SetJobState(ctx, j.ID, db.JobRunning); err != nil {
		return db.Job{}, fmt.Errorf("starting job: %w", err)
	}
	j.State = db.JobRunning

	m.register(j.ID)
	m.enqueue(j, contacts)

	if m.audit != nil {
		detail, _ := json.Marshal(map[string]any{"total": j.Total, "origin": origin})
		m.audit.Log(audit.Entry{Owner: owner, JobID: &j.ID, Action: "submit_job", Detail: detail})
	}

	return j, nil
}

// Resume re-enqueues every contact still pending in a job left running or
// pending across a restart (spec §4.7 restart resumption). It is intended to
// be called once at process startup, before Start.
func (m *Manager) Resume(ctx context.Context) error {
	q := db.New(m.pool)
	jobs, err := q.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("listing pending jobs: %w", err)
	}

	for _, j := range jobs {
		contacts, err := q.GetPendingContactsByJob(ctx, j.ID)
		if err != nil {
			return fmt.Errorf("listing pending contacts for job %s: %w", j.ID, err)
		}
		if len(contacts) == 0 {
			m.maybeFinalize(j.ID)
			continue
		}
		if j.State == db.JobPending {
			if err := q.SetJobState(ctx, j.ID, db.JobRunning); err != nil {
				return fmt.Errorf("resuming job %s: %w", j.ID, err)
			}
			j.State = db.JobRunning
		}
		m.register(j.ID)
		m.enqueue(j, contacts)
		m.logger.Info("resumed job", "job_id", j.ID, "pending_contacts", len(contacts))
	}
	return nil
}

// CancelJob cancels a job's per-job context, aborting its pending contacts;
// in-flight contacts finish their current cascade step and the job is
// finalized as partial once its last in-flight contact completes (spec §4.7).
func (m *Manager) CancelJob(jobID uuid.UUID) error {
	m.mu.Lock()
	run, ok := m.runs[jobID]
	if ok {
		run.cancelled = true
		run.cancel()
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %s is not running", jobID)
	}

	if m.audit != nil {
		if j, err := db.New(m.pool).GetJob(context.Background(), jobID); err == nil {
			m.audit.Log(audit.Entry{Owner: j.Owner, JobID: &jobID, Action: "cancel_job"})
		}
	}
	return nil
}

// GetJob fetches a job by id.
func (m *Manager) GetJob(ctx context.Context, jobID uuid.UUID) (db.Job, error) {
	return db.New(m.pool).GetJob(ctx, jobID)
}

// ListJobs returns jobs for an owner, newest first, optionally filtered by state.
func (m *Manager) ListJobs(ctx context.Context, owner uuid.UUID, state *db.JobState, limit, offset int32) ([]db.Job, error) {
	return db.New(m.pool).ListJobsByOwner(ctx, db.ListJobsByOwnerParams{Owner: owner, State: state, Limit: limit, Offset: offset})
}

// GetContacts returns a cursor page of a job's contacts.
func (m *Manager) GetContacts(ctx context.Context, jobID uuid.UUID, params httpserver.CursorParams) (httpserver.CursorPage[db.Contact], error) {
	var after *uuid.UUID
	if params.After != nil {
		after = &params.After.ID
	}
	contacts, err := db.New(m.pool).ListContactsByJob(ctx, db.ListContactsByJobParams{JobID: jobID, After: after, Limit: int32(params.Limit + 1)})
	if err != nil {
		return httpserver.CursorPage[db.Contact]{}, fmt.Errorf("listing contacts: %w", err)
	}
	return httpserver.NewCursorPage(contacts, params.Limit, func(c db.Contact) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	}), nil
}

func (m *Manager) register(jobID uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.runs[jobID] = &jobRun{ctx: ctx, cancel: cancel, startedAt: time.Now()}
	m.mu.Unlock()
}

func (m *Manager) enqueue(j db.Job, contacts []db.Contact) {
	for _, c := range contacts {
		m.queue <- workItem{job: j, contact: c}
	}
	m.setQueueDepth(len(m.queue))
}

func (m *Manager) isCancelled(jobID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[jobID]
	return ok && run.cancelled
}

// jobContext derives a cancellable context for a single contact's cascade
// run, chained off both the worker pool's base context and the job's own
// cancellation handle: it is done when either one fires.
func (m *Manager) jobContext(base context.Context, jobID uuid.UUID) context.Context {
	m.mu.Lock()
	run, ok := m.runs[jobID]
	m.mu.Unlock()
	if !ok {
		return base
	}

	ctx, cancel := context.WithCancel(base)
	go func() {
		select {
		case <-run.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}

func (m *Manager) setQueueDepth(n int) {
	if m.queueDepth != nil {
		m.queueDepth.Set(float64(n))
	}
}

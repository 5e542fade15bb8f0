// backend/src/services/task_service.go
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/model"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/security/validation"
)

// Progress checkpoints reported while a declaration task runs.
const (
	progressLocate    = 20
	progressAggregate = 50
	progressRender    = 80

	msgQueued    = "Na fila..."
	msgLocate    = "Buscando cliente..."
	msgAggregate = "Calculando valores..."
	msgRender    = "Gerando documento..."
)

// TaskResult is the payload of a finished task.
type TaskResult struct {
	Declaration *models.Declaration `json:"dados,omitempty"`
	Document    *models.Document    `json:"documento,omitempty"`
	DownloadURL string              `json:"download_url,omitempty"`
}

// TaskStatus is what pollers see.
type TaskStatus struct {
	*model.Task
	Result *TaskResult `json:"result,omitempty"`
}

// LinkSigner produces time-limited download links for generated documents.
type LinkSigner interface {
	DownloadURL(filename string) (string, error)
}

// TaskOptions sizes the worker pool and its retention policy.
type TaskOptions struct {
	Workers   int
	QueueSize int
	TimeLimit time.Duration
	Retention time.Duration
	OutputDir string
}

type TaskService interface {
	Submit(query string, mode models.LookupMode) (*model.Task, error)
	Status(id string) (*TaskStatus, error)
	PurgeExpired(ctx context.Context) (int, error)
	QueueDepth() int
	Shutdown(ctx context.Context) error
}

type taskJob struct {
	id    string
	query string
	mode  models.LookupMode
}

type taskServiceImpl struct {
	db           *sql.DB
	declarations DeclarationService
	links        LinkSigner
	opts         TaskOptions

	queue  chan taskJob
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// NewTaskService starts the worker pool. Tasks left unfinished by a previous
// process are marked as failed.
func NewTaskService(db *sql.DB, declarations DeclarationService, links LinkSigner, opts TaskOptions) TaskService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = opts.Workers * 8
	}
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = 5 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &taskServiceImpl{
		db:           db,
		declarations: declarations,
		links:        links,
		opts:         opts,
		queue:        make(chan taskJob, opts.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}

	if n, err := model.FailUnfinished(db, "interrompida pelo reinício do serviço"); err != nil {
		logger.Get().Error("Could not mark stale tasks as failed", "error", err)
	} else if n > 0 {
		logger.Get().Warn("Marked stale tasks as failed", "count", n)
	}

	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Get().Info("Task service started", "workers", opts.Workers, "queueSize", opts.QueueSize, "timeLimit", opts.TimeLimit)
	return s
}

// Submit validates the query, records a PENDING task and queues it.
func (s *taskServiceImpl) Submit(query string, mode models.LookupMode) (*model.Task, error) {
	switch mode {
	case models.ByIdentifier:
		normalized, err := s.declarations.ValidateIdentifier(query)
		if err != nil {
			return nil, err
		}
		query = normalized
	case models.ByName:
		query = validation.SanitizeQuery(query)
		if query == "" {
			return nil, &validation.ValidationError{Input: query, Reason: validation.ErrEmptyQuery}
		}
	default:
		return nil, fmt.Errorf("unknown lookup mode %q", mode)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrServiceClosed
	}

	task := &model.Task{
		ID:         uuid.NewString(),
		Status:     model.TaskPending,
		Message:    msgQueued,
		QueryHint:  maskQuery(query, mode),
		LookupMode: string(mode),
		CreatedAt:  s.now(),
	}
	if err := model.CreateTask(s.db, task); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	select {
	case s.queue <- taskJob{id: task.ID, query: query, mode: mode}:
	default:
		if err := model.FailTask(s.db, task.ID, ErrQueueFull.Error(), ""); err != nil {
			logger.Get().Error("Could not mark rejected task as failed", "taskID", task.ID, "error", err)
		}
		return nil, ErrQueueFull
	}
	logger.Get().Info("Task queued", "taskID", task.ID, "mode", mode)
	return task, nil
}

func (s *taskServiceImpl) Status(id string) (*TaskStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTaskNotFound
	}
	task, err := model.GetTaskByID(s.db, id)
	if err != nil {
		if errors.Is(err, model.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("loading task: %w", err)
	}

	status := &TaskStatus{Task: task}
	if task.ResultJSON == "" {
		return status, nil
	}
	var result TaskResult
	if err := json.Unmarshal([]byte(task.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("decoding task result: %w", err)
	}
	if result.Document != nil && s.links != nil {
		url, err := s.links.DownloadURL(result.Document.Filename)
		if err != nil {
			return nil, fmt.Errorf("signing download link: %w", err)
		}
		result.DownloadURL = url
	}
	status.Result = &result
	return status, nil
}

func (s *taskServiceImpl) QueueDepth() int {
	return len(s.queue)
}

// PurgeExpired deletes tasks finished longer than the retention ago and any
// generated document older than that.
func (s *taskServiceImpl) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.opts.Retention)
	docs, err := model.DeleteFinishedBefore(s.db, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging tasks: %w", err)
	}
	removed := 0
	for _, doc := range docs {
		if s.removeDocument(doc) {
			removed++
		}
	}

	entries, err := os.ReadDir(s.opts.OutputDir)
	if err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("listing output directory: %w", err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() || !strings.HasPrefix(e.Name(), documentFilePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if s.removeDocument(e.Name()) {
			removed++
		}
	}
	logger.Get().Info("Expired tasks purged", "tasks", len(docs), "documentsRemoved", removed, "cutoff", cutoff)
	return removed, nil
}

func (s *taskServiceImpl) removeDocument(name string) bool {
	name = filepath.Base(name)
	if !validation.IsSafeFilename(name) {
		return false
	}
	err := os.Remove(filepath.Join(s.opts.OutputDir, name))
	if err != nil && !os.IsNotExist(err) {
		logger.Get().Warn("Could not remove expired document", "filename", name, "error", err)
		return false
	}
	return err == nil
}

// Shutdown stops accepting tasks and waits for running ones to finish or ctx
// to expire, whichever comes first.
func (s *taskServiceImpl) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *taskServiceImpl) worker(n int) {
	defer s.wg.Done()
	for job := range s.queue {
		s.run(job)
	}
	logger.Get().Debug("Task worker stopped", "worker", n)
}

func (s *taskServiceImpl) run(job taskJob) {
	log := logger.Get().With("taskID", job.id)
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.TimeLimit)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panicked", "panic", r)
			s.fail(job.id, "erro interno ao processar a solicitação", nil)
		}
	}()

	s.progress(job.id, progressLocate, msgLocate)
	client, err := s.declarations.LocateClient(job.query, job.mode)
	if err != nil {
		log.Warn("Task failed locating client", "error", err)
		s.fail(job.id, userMessage(err), nil)
		return
	}

	if ctx.Err() != nil {
		s.fail(job.id, userMessage(ctx.Err()), nil)
		return
	}
	s.progress(job.id, progressAggregate, msgAggregate)
	result, err := s.declarations.ComputeAggregates(ctx, client)
	if err != nil {
		log.Error("Task failed computing aggregates", "error", err)
		s.fail(job.id, userMessage(err), nil)
		return
	}
	decl := s.declarations.Assemble(client, result, s.declarations.Reconcile(result, client))

	s.progress(job.id, progressRender, msgRender)
	doc, err := s.declarations.GenerateDocument(ctx, decl)
	if err != nil {
		log.Warn("Task failed generating document", "error", err)
		s.fail(job.id, userMessage(err), &TaskResult{Declaration: decl})
		return
	}

	payload, err := json.Marshal(TaskResult{Declaration: decl, Document: doc})
	if err != nil {
		s.fail(job.id, "erro interno ao processar a solicitação", nil)
		return
	}
	if err := model.CompleteTask(s.db, job.id, string(payload), doc.Filename); err != nil {
		log.Error("Could not store task result", "error", err)
		return
	}
	log.Info("Task completed", "document", doc.Filename)
}

func (s *taskServiceImpl) progress(id string, pct int, msg string) {
	if err := model.UpdateTaskProgress(s.db, id, pct, msg); err != nil {
		logger.Get().Error("Could not update task progress", "taskID", id, "error", err)
	}
}

func (s *taskServiceImpl) fail(id, msg string, result *TaskResult) {
	payload := ""
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			payload = string(b)
		}
	}
	if err := model.FailTask(s.db, id, msg, payload); err != nil {
		logger.Get().Error("Could not mark task as failed", "taskID", id, "error", err)
	}
}

// UserMessage maps core errors onto the Portuguese messages shown to users.
func UserMessage(err error) string { return userMessage(err) }

func userMessage(err error) string {
	switch {
	case errors.Is(err, validation.ErrValidationFailed):
		return "CPF inválido"
	case errors.Is(err, models.ErrNotFound):
		return "Cliente não encontrado"
	case errors.Is(err, models.ErrDataSource):
		return "Planilha indisponível no momento. Tente novamente mais tarde."
	case errors.Is(err, ErrNoFinancialData):
		return "Nenhum dado financeiro encontrado para o cliente"
	case errors.Is(err, ErrDiscrepancyBlocked):
		return "Diferença entre saldos impede a geração do documento"
	case errors.Is(err, context.DeadlineExceeded):
		return "Tempo limite de processamento excedido"
	case errors.Is(err, context.Canceled):
		return "Processamento cancelado"
	}
	return "Erro interno do servidor"
}

// maskQuery keeps enough of a query to recognise a task without storing the
// full tax ID.
func maskQuery(query string, mode models.LookupMode) string {
	if mode == models.ByIdentifier {
		d := validation.NormalizeTaxID(query)
		if len(d) == 11 {
			return d[:3] + ".***.***-" + d[9:]
		}
		return "***"
	}
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return fields[0] + " ..."
}

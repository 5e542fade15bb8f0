package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/username/taxdeclaration/backend/src/database"
	"github.com/username/taxdeclaration/backend/src/model"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/security/validation"
)

type stubSigner struct{}

func (stubSigner) DownloadURL(filename string) (string, error) {
	return "/api/download-pdf/" + filename + "?token=test", nil
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestTaskService(t *testing.T, db *sql.DB, decls DeclarationService, outDir string, opts TaskOptions) TaskService {
	t.Helper()
	opts.OutputDir = outDir
	svc := NewTaskService(db, decls, stubSigner{}, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc
}

func waitForTask(t *testing.T, svc TaskService, id string) *TaskStatus {
	t.Helper()
	var status *TaskStatus
	waitFor(t, func() bool {
		s, err := svc.Status(id)
		if err != nil {
			t.Fatalf("Status(%s) error: %v", id, err)
		}
		status = s
		return s.Finished()
	})
	return status
}

func TestTaskServiceGeneratesDocument(t *testing.T) {
	out := t.TempDir()
	f := newServiceFixture(out, true)
	svc := newTestTaskService(t, openTestDB(t), f.service, out, TaskOptions{Workers: 2})

	task, err := svc.Submit("529.982.247-25", models.ByIdentifier)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if task.Status != model.TaskPending || task.QueryHint != "529.***.***-25" {
		t.Errorf("submitted task = %+v", task)
	}

	status := waitForTask(t, svc, task.ID)
	if status.Status != model.TaskSuccess || status.Progress != 100 {
		t.Fatalf("task finished as %s (%d%%): %s", status.Status, status.Progress, status.Error)
	}
	if status.Result == nil || status.Result.Document == nil || status.Result.Declaration == nil {
		t.Fatalf("Result = %+v", status.Result)
	}
	doc := status.Result.Document
	if status.Document != doc.Filename {
		t.Errorf("task document = %q, result document = %q", status.Document, doc.Filename)
	}
	if status.Result.DownloadURL != "/api/download-pdf/"+doc.Filename+"?token=test" {
		t.Errorf("DownloadURL = %q", status.Result.DownloadURL)
	}
	if _, err := os.Stat(filepath.Join(out, doc.Filename)); err != nil {
		t.Errorf("document not on disk: %v", err)
	}
	if status.Result.Declaration.Client.TaxID != cpfMaria {
		t.Errorf("declaration client = %+v", status.Result.Declaration.Client)
	}
}

func TestTaskServiceReportsFailures(t *testing.T) {
	out := t.TempDir()
	f := newServiceFixture(out, true)
	svc := newTestTaskService(t, openTestDB(t), f.service, out, TaskOptions{})

	tests := []struct {
		name       string
		query      string
		mode       models.LookupMode
		wantError  string
		wantResult bool
	}{
		{"no financial data", cpfJoao, models.ByIdentifier, "Nenhum dado financeiro encontrado para o cliente", true},
		{"unknown client", "98765432100", models.ByIdentifier, "Cliente não encontrado", false},
		{"unknown name", "Fulano de Tal", models.ByName, "Cliente não encontrado", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := svc.Submit(tt.query, tt.mode)
			if err != nil {
				t.Fatalf("Submit error: %v", err)
			}
			status := waitForTask(t, svc, task.ID)
			if status.Status != model.TaskFailure || status.Error != tt.wantError {
				t.Errorf("status = %s %q, want FAILURE %q", status.Status, status.Error, tt.wantError)
			}
			if (status.Result != nil && status.Result.Declaration != nil) != tt.wantResult {
				t.Errorf("Result = %+v, want declaration present = %v", status.Result, tt.wantResult)
			}
		})
	}
}

func TestTaskServiceRejectsInvalidInput(t *testing.T) {
	out := t.TempDir()
	f := newServiceFixture(out, true)
	svc := newTestTaskService(t, openTestDB(t), f.service, out, TaskOptions{})

	if _, err := svc.Submit("123.456.789-00", models.ByIdentifier); !errors.Is(err, validation.ErrValidationFailed) {
		t.Errorf("Submit invalid CPF error = %v", err)
	}
	if _, err := svc.Submit(" \x00 ", models.ByName); !errors.Is(err, validation.ErrEmptyQuery) {
		t.Errorf("Submit blank name error = %v", err)
	}
	if _, err := svc.Submit("x", models.LookupMode("?")); err == nil {
		t.Error("unknown mode should be rejected")
	}
	for _, id := range []string{"not-a-uuid", uuid.NewString(), ""} {
		if _, err := svc.Status(id); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("Status(%q) error = %v, want ErrTaskNotFound", id, err)
		}
	}
}

// blockingDeclarations holds every lookup until release is closed.
type blockingDeclarations struct {
	DeclarationService
	release chan struct{}
}

func (b *blockingDeclarations) LocateClient(query string, mode models.LookupMode) (*models.ClientRecord, error) {
	<-b.release
	return b.DeclarationService.LocateClient(query, mode)
}

func TestTaskServiceQueueFullAndShutdown(t *testing.T) {
	out := t.TempDir()
	f := newServiceFixture(out, true)
	decls := &blockingDeclarations{DeclarationService: f.service, release: make(chan struct{})}
	svc := NewTaskService(openTestDB(t), decls, stubSigner{}, TaskOptions{Workers: 1, QueueSize: 1, OutputDir: out})

	running, err := svc.Submit(cpfMaria, models.ByIdentifier)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		s, err := svc.Status(running.ID)
		return err == nil && s.Status == model.TaskProgress
	})
	queued, err := svc.Submit(cpfAna, models.ByIdentifier)
	if err != nil {
		t.Fatalf("second Submit error: %v", err)
	}
	if svc.QueueDepth() != 1 {
		t.Errorf("QueueDepth = %d, want 1", svc.QueueDepth())
	}
	if _, err := svc.Submit(cpfMaria, models.ByIdentifier); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third Submit error = %v, want ErrQueueFull", err)
	}

	close(decls.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	for _, id := range []string{running.ID, queued.ID} {
		s, err := svc.Status(id)
		if err != nil {
			t.Fatal(err)
		}
		if s.Status != model.TaskSuccess {
			t.Errorf("task %s = %s, queued work should drain before shutdown returns", id, s.Status)
		}
	}
	if _, err := svc.Submit(cpfMaria, models.ByIdentifier); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Submit after Shutdown error = %v, want ErrServiceClosed", err)
	}
}

func TestTaskServicePurgesExpiredTasks(t *testing.T) {
	out := t.TempDir()
	f := newServiceFixture(out, true)
	db := openTestDB(t)
	svc := newTestTaskService(t, db, f.service, out, TaskOptions{Retention: time.Hour})

	task, err := svc.Submit(cpfMaria, models.ByIdentifier)
	if err != nil {
		t.Fatal(err)
	}
	status := waitForTask(t, svc, task.ID)
	if status.Status != model.TaskSuccess {
		t.Fatalf("task failed: %s", status.Error)
	}

	// A stray document older than the retention is removed too.
	stray := filepath.Join(out, "Declaracao_IR_sem_cpf_20200101_000000.html")
	if err := os.WriteFile(stray, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stray, old, old); err != nil {
		t.Fatal(err)
	}

	if removed, err := svc.PurgeExpired(context.Background()); err != nil || removed != 1 {
		t.Fatalf("PurgeExpired = %d, %v; want only the stray file", removed, err)
	}
	if _, err := svc.Status(task.ID); err != nil {
		t.Errorf("a recent task should survive the purge: %v", err)
	}

	svc.(*taskServiceImpl).now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if removed, err := svc.PurgeExpired(context.Background()); err != nil || removed != 1 {
		t.Fatalf("PurgeExpired = %d, %v; want the task document", removed, err)
	}
	if _, err := svc.Status(task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expired task still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, status.Document)); !os.IsNotExist(err) {
		t.Errorf("expired document still on disk: %v", err)
	}
}

func TestNewTaskServiceFailsStaleTasks(t *testing.T) {
	db := openTestDB(t)
	stale := &model.Task{ID: uuid.NewString(), Status: model.TaskProgress, LookupMode: string(models.ByIdentifier)}
	if err := model.CreateTask(db, stale); err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	svc := newTestTaskService(t, db, newServiceFixture(out, true).service, out, TaskOptions{})
	s, err := svc.Status(stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != model.TaskFailure || !s.Finished() {
		t.Errorf("stale task = %s, want FAILURE", s.Status)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&validation.ValidationError{Reason: validation.ErrInvalidChecksum}, "CPF inválido"},
		{&models.NotFoundError{Query: "x"}, "Cliente não encontrado"},
		{&models.DataSourceError{Op: "read", Err: errors.New("locked")}, "Planilha indisponível no momento. Tente novamente mais tarde."},
		{fmt.Errorf("task: %w", ErrNoFinancialData), "Nenhum dado financeiro encontrado para o cliente"},
		{ErrDiscrepancyBlocked, "Diferença entre saldos impede a geração do documento"},
		{context.DeadlineExceeded, "Tempo limite de processamento excedido"},
		{errors.New("boom"), "Erro interno do servidor"},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMaskQuery(t *testing.T) {
	if got := maskQuery(cpfMaria, models.ByIdentifier); got != "529.***.***-25" {
		t.Errorf("maskQuery(cpf) = %q", got)
	}
	if got := maskQuery("Maria da Silva", models.ByName); got != "Maria ..." {
		t.Errorf("maskQuery(name) = %q", got)
	}
}

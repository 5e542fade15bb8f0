package model

import (
	"database/sql"
	"errors"
	"time"
)

// Task states, named as the polling clients expect them.
const (
	TaskPending  = "PENDING"
	TaskProgress = "PROGRESS"
	TaskSuccess  = "SUCCESS"
	TaskFailure  = "FAILURE"
)

var ErrTaskNotFound = errors.New("task not found")

// Task is one asynchronous declaration request.
type Task struct {
	ID         string       `json:"task_id"`
	Status     string       `json:"state"`
	Progress   int          `json:"progress"`
	Message    string       `json:"status"`
	QueryHint  string       `json:"query_hint,omitempty"` // Masked query, never the full tax ID
	LookupMode string       `json:"lookup_mode"`
	ResultJSON string       `json:"-"`
	Error      string       `json:"error,omitempty"`
	Document   string       `json:"document,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	FinishedAt sql.NullTime `json:"-"`
}

// Finished reports whether the task reached a terminal state.
func (t *Task) Finished() bool {
	return t.Status == TaskSuccess || t.Status == TaskFailure
}

// CreateTask inserts a new task.
func CreateTask(db *sql.DB, t *Task) error {
	query := `
	INSERT INTO declaration_tasks (id, status, progress, message, query_hint, lookup_mode, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.CreatedAt
	_, err := db.Exec(query, t.ID, t.Status, t.Progress, t.Message, t.QueryHint, t.LookupMode, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTaskProgress moves a running task forward.
func UpdateTaskProgress(db *sql.DB, id string, progress int, message string) error {
	query := `
	UPDATE declaration_tasks SET status = ?, progress = ?, message = ?, updated_at = ?
	WHERE id = ? AND finished_at IS NULL`
	return execOne(db, query, TaskProgress, progress, message, time.Now().UTC(), id)
}

// CompleteTask stores the result of a successful task.
func CompleteTask(db *sql.DB, id, resultJSON, document string) error {
	now := time.Now().UTC()
	query := `
	UPDATE declaration_tasks
	SET status = ?, progress = 100, message = ?, result_json = ?, document = ?, updated_at = ?, finished_at = ?
	WHERE id = ?`
	return execOne(db, query, TaskSuccess, "Concluído", resultJSON, document, now, now, id)
}

// FailTask records a failed task. resultJSON may be empty.
func FailTask(db *sql.DB, id, errMsg, resultJSON string) error {
	now := time.Now().UTC()
	query := `
	UPDATE declaration_tasks
	SET status = ?, message = ?, error = ?, result_json = ?, updated_at = ?, finished_at = ?
	WHERE id = ?`
	return execOne(db, query, TaskFailure, "Falhou", errMsg, resultJSON, now, now, id)
}

// GetTaskByID retrieves a task.
func GetTaskByID(db *sql.DB, id string) (*Task, error) {
	query := `
	SELECT id, status, progress, message, query_hint, lookup_mode, result_json, error, document, created_at, updated_at, finished_at
	FROM declaration_tasks
	WHERE id = ?`

	var t Task
	var message, hint, result, errMsg, document sql.NullString
	err := db.QueryRow(query, id).Scan(
		&t.ID, &t.Status, &t.Progress, &message, &hint, &t.LookupMode,
		&result, &errMsg, &document, &t.CreatedAt, &t.UpdatedAt, &t.FinishedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	t.Message = message.String
	t.QueryHint = hint.String
	t.ResultJSON = result.String
	t.Error = errMsg.String
	t.Document = document.String
	return &t, nil
}

// DeleteFinishedBefore removes tasks that finished before cutoff and returns
// the documents they referenced.
func DeleteFinishedBefore(db *sql.DB, cutoff time.Time) ([]string, error) {
	cutoff = cutoff.UTC()
	rows, err := db.Query(`SELECT document FROM declaration_tasks WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	var documents []string
	for rows.Next() {
		var doc sql.NullString
		if err := rows.Scan(&doc); err != nil {
			rows.Close()
			return nil, err
		}
		if doc.Valid && doc.String != "" {
			documents = append(documents, doc.String)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := db.Exec(`DELETE FROM declaration_tasks WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff); err != nil {
		return nil, err
	}
	return documents, nil
}

// FailUnfinished marks tasks left running by a previous process as failed.
func FailUnfinished(db *sql.DB, reason string) (int64, error) {
	now := time.Now().UTC()
	res, err := db.Exec(`
	UPDATE declaration_tasks SET status = ?, message = ?, error = ?, updated_at = ?, finished_at = ?
	WHERE finished_at IS NULL`, TaskFailure, "Falhou", reason, now, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func execOne(db *sql.DB, query string, args ...interface{}) error {
	res, err := db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// backend/src/handlers/declaration_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/security/validation"
	"github.com/username/taxdeclaration/backend/src/services"
	"github.com/username/taxdeclaration/backend/src/utils"
)

const maxRequestBodyBytes = 4 << 10

var documentNamePattern = regexp.MustCompile(`^Declaracao_IR_(\d{11}|sem_cpf)_\d{8}_\d{6}\.html$`)

// DownloadVerifier checks signed download links.
type DownloadVerifier interface {
	ValidateDownloadToken(token, filename string) error
	DownloadURL(filename string) (string, error)
}

type DeclarationHandler struct {
	declarations services.DeclarationService
	tasks        services.TaskService
	downloads    DownloadVerifier
	outputDir    string
}

func NewDeclarationHandler(declarations services.DeclarationService, tasks services.TaskService, downloads DownloadVerifier, outputDir string) *DeclarationHandler {
	return &DeclarationHandler{
		declarations: declarations,
		tasks:        tasks,
		downloads:    downloads,
		outputDir:    outputDir,
	}
}

// lookupRequest is the body of every lookup route. Exactly one field is used;
// cpf wins when both are present.
type lookupRequest struct {
	CPF  string `json:"cpf"`
	Nome string `json:"nome"`
}

func (req lookupRequest) query() (string, models.LookupMode, bool) {
	if cpf := validation.StripUnprintable(strings.TrimSpace(req.CPF)); cpf != "" {
		return cpf, models.ByIdentifier, true
	}
	if nome := validation.SanitizeQuery(validation.StripUnprintable(req.Nome)); nome != "" {
		return nome, models.ByName, true
	}
	return "", "", false
}

func decodeLookup(w http.ResponseWriter, r *http.Request) (string, models.LookupMode, bool) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		utils.SendJSONError(w, "Content-Type deve ser application/json", http.StatusBadRequest)
		return "", "", false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Get().Warn("Invalid lookup request body", "error", err)
		utils.SendJSONError(w, "Dados devem ser um objeto JSON", http.StatusBadRequest)
		return "", "", false
	}
	query, mode, ok := req.query()
	if !ok {
		utils.SendJSONError(w, "Campo 'cpf' ou 'nome' é obrigatório", http.StatusBadRequest)
		return "", "", false
	}
	return query, mode, true
}

// HandleSearchClient locates a client and returns the declaration figures.
func (h *DeclarationHandler) HandleSearchClient(w http.ResponseWriter, r *http.Request) {
	query, mode, ok := decodeLookup(w, r)
	if !ok {
		return
	}

	decl, err := h.declarations.BuildDeclaration(r.Context(), query, mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// FromCache is excluded from the ETag so cached and fresh answers match.
	etagSource := *decl
	etagSource.FromCache = false
	etag, err := utils.GenerateETag(etagSource)
	if err != nil {
		logger.Get().Error("Error generating ETag for declaration", "error", err)
	} else {
		quoted := `"` + etag + `"`
		w.Header().Set("ETag", quoted)
		if match := r.Header.Get("If-None-Match"); match == quoted {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	utils.SendJSON(w, map[string]interface{}{"success": true, "data": decl}, http.StatusOK)
}

// HandleGenerateDocument builds and renders a declaration synchronously.
func (h *DeclarationHandler) HandleGenerateDocument(w http.ResponseWriter, r *http.Request) {
	query, mode, ok := decodeLookup(w, r)
	if !ok {
		return
	}

	decl, err := h.declarations.BuildDeclaration(r.Context(), query, mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	doc, err := h.declarations.GenerateDocument(r.Context(), decl)
	if err != nil {
		if errors.Is(err, services.ErrNoFinancialData) || errors.Is(err, services.ErrDiscrepancyBlocked) {
			utils.SendJSON(w, map[string]interface{}{
				"success":           false,
				"error":             services.UserMessage(err),
				"erro_consistencia": decl.Issue,
				"data":              decl,
			}, statusFor(err))
			return
		}
		writeServiceError(w, err)
		return
	}

	downloadURL, err := h.downloads.DownloadURL(doc.Filename)
	if err != nil {
		logger.Get().Error("Failed to sign download URL", "filename", doc.Filename, "error", err)
		utils.SendJSONError(w, "Erro interno do servidor", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]interface{}{
		"success":      true,
		"filename":     doc.Filename,
		"download_url": downloadURL,
		"data":         decl,
	}, http.StatusOK)
}

// HandleSubmitAsync queues a lookup-and-render task and returns its ID.
func (h *DeclarationHandler) HandleSubmitAsync(w http.ResponseWriter, r *http.Request) {
	query, mode, ok := decodeLookup(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.Submit(query, mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]interface{}{
		"success":  true,
		"message":  "Geração iniciada",
		"task_id":  task.ID,
		"status":   task.Status,
		"poll_url": "/api/task-status/" + task.ID,
	}, http.StatusAccepted)
}

// HandleTaskStatus reports the progress or result of a task.
func (h *DeclarationHandler) HandleTaskStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.tasks.Status(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]interface{}{
		"success": status.Status != "FAILURE",
		"task":    status,
	}, http.StatusOK)
}

// HandleDownload serves a generated document to holders of a valid link.
func (h *DeclarationHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if !documentNamePattern.MatchString(filename) || filepath.Base(filename) != filename {
		logger.Get().Warn("Download attempt with invalid filename", "filename", filename)
		utils.SendJSONError(w, "Nome de arquivo inválido", http.StatusBadRequest)
		return
	}
	if err := h.downloads.ValidateDownloadToken(r.URL.Query().Get("token"), filename); err != nil {
		logger.Get().Warn("Download attempt with invalid token", "filename", filename, "error", err)
		utils.SendJSONError(w, "Link de download inválido ou expirado", http.StatusForbidden)
		return
	}

	f, err := os.Open(filepath.Join(h.outputDir, filename))
	if err != nil {
		logger.Get().Warn("Download of missing file", "filename", filename)
		utils.SendJSONError(w, "Arquivo não encontrado", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		utils.SendJSONError(w, "Arquivo não encontrado", http.StatusNotFound)
		return
	}

	logger.Get().Info("Document download", "filename", filename)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, services.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDataSource), errors.Is(err, services.ErrQueueFull), errors.Is(err, services.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrNoFinancialData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrDiscrepancyBlocked):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		logger.Get().Error("Request failed", "error", err)
	default:
		logger.Get().Info("Request rejected", "status", status, "error", err)
	}

	var notFound *models.NotFoundError
	if errors.As(err, &notFound) && len(notFound.Suggestions) > 0 {
		utils.SendJSON(w, map[string]interface{}{
			"success":    false,
			"error":      services.UserMessage(err),
			"sugestoes":  notFound.Suggestions,
			"tipo_busca": notFound.Mode,
		}, status)
		return
	}

	msg := services.UserMessage(err)
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		msg = "Tarefa não encontrada"
	case errors.Is(err, services.ErrQueueFull), errors.Is(err, services.ErrServiceClosed):
		msg = "Serviço ocupado. Tente novamente em instantes."
	}
	utils.SendJSONError(w, msg, status)
}

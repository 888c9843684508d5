package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"data-chopper/internal/models/entities"
	"data-chopper/internal/models/ports"
	"data-chopper/internal/pkg/config"
)

// planTimeout ограничивает синхронную фазу планирования
const planTimeout = 2 * time.Minute

type Handler struct {
	chopUseCase ports.ChopUseCase
	logger      *zap.Logger
}

// NewHandler создает новый обработчик HTTP-запросов
func NewHandler(uc ports.ChopUseCase, logger *zap.Logger) *Handler {
	return &Handler{
		chopUseCase: uc,
		logger:      logger,
	}
}

// RegisterRoutes регистрирует пути API
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/chop", h.HandleChop).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/chop/preview", h.HandlePreview).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/tasks/{taskID}", h.HandleGetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/runs/{runID}", h.HandleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/health", h.HandleHealthCheck).Methods(http.MethodGet)
}

// chopRequest - тело запроса на удаление. Пропущенные поля берутся из настроек.
type chopRequest struct {
	Sections           []string `json:"sections"`
	Statuses           []string `json:"statuses"`
	Percent            *int     `json:"percent"`
	MinimumRetained    *int     `json:"minimum_retained"`
	SoftDelete         *bool    `json:"soft_delete"`
	DryRun             bool     `json:"dry_run"`
	Verbose            bool     `json:"verbose"`
	ConfirmEnvironment string   `json:"confirm_environment"`
}

func (req *chopRequest) applyTo(plan *entities.ChopPlan) {
	if req.Sections != nil {
		plan.CollectionHandles = config.NormalizeFilter(req.Sections)
	}
	if req.Statuses != nil {
		plan.Statuses = config.NormalizeFilter(req.Statuses)
	}
	if req.Percent != nil {
		plan.Percent = *req.Percent
	}
	if req.MinimumRetained != nil {
		plan.MinimumRetained = *req.MinimumRetained
	}
	if req.SoftDelete != nil {
		plan.SoftDelete = *req.SoftDelete
	}
	plan.DryRun = req.DryRun
	plan.Verbose = req.Verbose
}

// HandleChop валидирует запрос и ставит задачи удаления в очередь
func (h *Handler) HandleChop(w http.ResponseWriter, r *http.Request) {
	var req chopRequest

	// Декодируем JSON-запрос
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	// Оператор должен ввести имя текущего окружения
	if req.ConfirmEnvironment != h.chopUseCase.Environment() {
		h.respondWithError(w, http.StatusBadRequest, entities.ErrEnvironmentMismatch.Error())
		return
	}

	plan := h.chopUseCase.DefaultPlan(entities.OriginWeb)
	req.applyTo(&plan)

	ctx, cancel := context.WithTimeout(r.Context(), planTimeout)
	defer cancel()

	report, err := h.chopUseCase.PlanChop(ctx, plan)
	if err != nil {
		h.respondWithUseCaseError(w, err)
		return
	}

	message := "Chop operation has been queued. Check logs for details."
	if plan.DryRun {
		message = "Dry run has been queued. Check logs for details."
	}

	h.respondWithJSON(w, http.StatusAccepted, map[string]any{
		"message":        message,
		"run_id":         report.RunID,
		"mode":           report.Mode,
		"sections":       report.Collections,
		"tasks_queued":   report.TasksQueued,
		"entries_queued": report.EntriesQueued,
		"status_url":     "/api/v1/runs/" + report.RunID,
	})
}

// HandlePreview возвращает расчет квот по разделам без постановки задач
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req chopRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	plan := h.chopUseCase.DefaultPlan(entities.OriginWeb)
	req.applyTo(&plan)

	ctx, cancel := context.WithTimeout(r.Context(), planTimeout)
	defer cancel()

	previews, err := h.chopUseCase.Preview(ctx, plan)
	if err != nil {
		h.respondWithUseCaseError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"environment": h.chopUseCase.Environment(),
		"summary":     plan.Summary(),
		"partitions":  previews,
	})
}

// HandleGetTask возвращает состояние задачи
func (h *Handler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]

	task, err := h.chopUseCase.GetTask(r.Context(), taskID)
	if err != nil {
		h.respondWithUseCaseError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, task)
}

// HandleGetRun возвращает задачи запуска и их распределение по состояниям
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]

	tasks, err := h.chopUseCase.GetRun(r.Context(), runID)
	if err != nil {
		h.respondWithUseCaseError(w, err)
		return
	}

	if len(tasks) == 0 {
		h.respondWithError(w, http.StatusNotFound, "Run not found")
		return
	}

	states := make(map[entities.TaskState]int)
	for _, task := range tasks {
		states[task.State]++
	}

	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"states": states,
		"tasks":  tasks,
	})
}

// HandleHealthCheck проверяет работоспособность сервиса
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": h.chopUseCase.Environment(),
		"time":        time.Now().Format(time.RFC3339),
	})
}

// Вспомогательные функции для ответов

func (h *Handler) respondWithUseCaseError(w http.ResponseWriter, err error) {
	var (
		validationErr *entities.ValidationError
		deniedErr     *entities.EnvironmentDenied
		domainErr     entities.DomainError
	)

	switch {
	case errors.As(err, &validationErr):
		h.respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Invalid configuration",
			"fields": validationErr.Fields,
		})
	case errors.As(err, &deniedErr):
		h.respondWithJSON(w, http.StatusForbidden, map[string]any{
			"error":           "Environment lock: chopping is not allowed in this environment",
			"environment":     deniedErr.Environment,
			"allowed":         deniedErr.Allowed,
			"production_like": deniedErr.ProductionLike,
		})
	case errors.As(err, &domainErr):
		h.respondWithError(w, http.StatusBadRequest, domainErr.Error())
	case errors.Is(err, entities.ErrTaskNotFound):
		h.respondWithError(w, http.StatusNotFound, "Task not found")
	default:
		h.logger.Error("Chop error", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	// Устанавливаем заголовок Content-Type
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	// Кодируем ответ в JSON
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Error encoding response", zap.Error(err))
	}
}

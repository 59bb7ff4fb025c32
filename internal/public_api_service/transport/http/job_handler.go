package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/famline/notifications/internal/notification_service/app"
	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

// JobHandler exposes the operator surface of the delivery queue.
type JobHandler struct {
	jobs     repository.JobRepository
	logs     repository.DeliveryLogRepository
	health   *app.HealthReporter
	logger   *slog.Logger
	validate *validator.Validate
	nowFn    func() time.Time
}

func NewJobHandler(
	jobs repository.JobRepository,
	logs repository.DeliveryLogRepository,
	health *app.HealthReporter,
	logger *slog.Logger,
	validate *validator.Validate,
) *JobHandler {
	return &JobHandler{
		jobs:     jobs,
		logs:     logs,
		health:   health,
		logger:   logger,
		validate: validate,
		nowFn:    time.Now,
	}
}

func (h *JobHandler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var reqDTO EnqueueJobRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body for EnqueueJob", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Validation failed for EnqueueJob", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", err.Error()))
		return
	}

	recipientID, err := uuid.Parse(reqDTO.RecipientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recipient_id")
		return
	}
	groupID := uuid.NullUUID{}
	if reqDTO.GroupID != "" {
		parsed, err := uuid.Parse(reqDTO.GroupID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid group_id")
			return
		}
		groupID = uuid.NullUUID{UUID: parsed, Valid: true}
	}

	payload, err := (&domain.MessagePayload{Subject: reqDTO.Subject, Body: reqDTO.Body}).ToJSON()
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to encode job payload", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	scheduledFor := time.Time{}
	if reqDTO.ScheduledFor != nil {
		scheduledFor = *reqDTO.ScheduledFor
	}

	job := domain.NewNotificationJob(
		recipientID,
		groupID,
		domain.DeliveryMethod(reqDTO.DeliveryMethod),
		reqDTO.NotificationType,
		reqDTO.RecipientAddress,
		reqDTO.ContentRef,
		payload,
		scheduledFor,
	)
	if err := h.jobs.Create(ctx, job); err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "EnqueueJob", "")
		return
	}

	h.logger.InfoContext(ctx, "Job enqueued", "job_id", job.ID, "channel", job.DeliveryMethod)
	writeJSON(w, http.StatusCreated, toJobDTO(job, h.nowFn().UTC()))
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetByID(ctx, jobID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "GetJob", jobID.String())
		return
	}
	logs, err := h.logs.ListByJob(ctx, jobID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "GetJob (logs)", jobID.String())
		return
	}

	writeJSON(w, http.StatusOK, JobDetailDTO{
		JobDTO:       toJobDTO(job, h.nowFn().UTC()),
		DeliveryLogs: toDeliveryLogDTOs(logs),
	})
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queryParams := r.URL.Query()

	page, _ := strconv.Atoi(queryParams.Get("page"))
	pageSize, _ := strconv.Atoi(queryParams.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	filter := repository.JobFilter{
		Status:           queryParams.Get("status"),
		DeliveryMethod:   queryParams.Get("delivery_method"),
		NotificationType: queryParams.Get("notification_type"),
		SortBy:           queryParams.Get("sort_by"),
		SortAsc:          queryParams.Get("sort_order") == "asc",
		Page:             page,
		PageSize:         pageSize,
	}
	if raw := queryParams.Get("recipient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid recipient_id filter")
			return
		}
		filter.RecipientID = uuid.NullUUID{UUID: id, Valid: true}
	}
	if raw := queryParams.Get("group_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid group_id filter")
			return
		}
		filter.GroupID = uuid.NullUUID{UUID: id, Valid: true}
	}

	jobs, total, err := h.jobs.List(ctx, filter)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "ListJobs", "")
		return
	}

	now := h.nowFn().UTC()
	dtos := make([]JobDTO, 0, len(jobs))
	for _, job := range jobs {
		dtos = append(dtos, toJobDTO(job, now))
	}
	writeJSON(w, http.StatusOK, ListJobsResponseDTO{
		Jobs:       dtos,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if err := h.jobs.Cancel(ctx, jobID); err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "CancelJob", jobID.String())
		return
	}
	h.logger.InfoContext(ctx, "Job cancelled", "job_id", jobID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if err := h.jobs.ResetForRetry(ctx, jobID); err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "RetryJob", jobID.String())
		return
	}
	h.logger.InfoContext(ctx, "Job reset for manual retry", "job_id", jobID)

	job, err := h.jobs.GetByID(ctx, jobID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "RetryJob (reload)", jobID.String())
		return
	}
	writeJSON(w, http.StatusOK, toJobDTO(job, h.nowFn().UTC()))
}

func (h *JobHandler) QueueHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	health, err := h.health.Report(ctx)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "QueueHealth", "")
		return
	}

	statusCounts := make(map[string]int, len(health.StatusCounts))
	for status, count := range health.StatusCounts {
		statusCounts[string(status)] = count
	}
	writeJSON(w, http.StatusOK, QueueHealthDTO{
		Window:          health.Window,
		StatusCounts:    statusCounts,
		SuccessRate:     health.SuccessRate,
		AvgProcessingMs: health.AvgProcessingMs,
		OverdueCount:    health.OverdueCount,
		Breakers:        health.Breakers,
		GeneratedAt:     health.GeneratedAt,
	})
}

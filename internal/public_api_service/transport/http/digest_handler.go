package http

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/famline/notifications/internal/digest_service/app"
	"github.com/famline/notifications/internal/digest_service/domain"
	"github.com/famline/notifications/internal/digest_service/repository"
)

// DigestHandler exposes digest schedule management and the manual
// compile/review flow.
type DigestHandler struct {
	schedules repository.ScheduleRepository
	digests   repository.DigestRepository
	compiler  *app.Compiler
	logger    *slog.Logger
	validate  *validator.Validate
	nowFn     func() time.Time
}

func NewDigestHandler(
	schedules repository.ScheduleRepository,
	digests repository.DigestRepository,
	compiler *app.Compiler,
	logger *slog.Logger,
	validate *validator.Validate,
) *DigestHandler {
	return &DigestHandler{
		schedules: schedules,
		digests:   digests,
		compiler:  compiler,
		logger:    logger,
		validate:  validate,
		nowFn:     time.Now,
	}
}

func (h *DigestHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var reqDTO CreateDigestScheduleRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body for CreateSchedule", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Validation failed for CreateSchedule", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", err.Error()))
		return
	}

	recipientID, err := uuid.Parse(reqDTO.RecipientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recipient_id")
		return
	}
	groupID, err := uuid.Parse(reqDTO.GroupID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group_id")
		return
	}
	deliveryTime, err := domain.ParseDeliveryTime(reqDTO.DeliveryTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delivery_time, expected HH:MM:SS")
		return
	}
	if _, err := time.LoadLocation(reqDTO.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown timezone")
		return
	}

	now := h.nowFn().UTC()
	schedule := &domain.DigestSchedule{
		ID:                  uuid.New(),
		RecipientID:         recipientID,
		GroupID:             groupID,
		Frequency:           domain.Frequency(reqDTO.Frequency),
		DeliveryTime:        deliveryTime,
		Timezone:            reqDTO.Timezone,
		MaxItemsPerDigest:   reqDTO.MaxItemsPerDigest,
		IncludeContentTypes: reqDTO.IncludeContentTypes,
		AutoApprove:         reqDTO.AutoApprove,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if schedule.MaxItemsPerDigest == 0 {
		schedule.MaxItemsPerDigest = 20
	}
	if reqDTO.DeliveryDay != nil {
		schedule.DeliveryDay = sql.NullInt32{Int32: int32(*reqDTO.DeliveryDay), Valid: true}
	}

	next, err := app.ComputeNextRun(schedule, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid schedule: %s", err.Error()))
		return
	}
	schedule.NextScheduledAt = next

	if err := h.schedules.Create(ctx, schedule); err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "CreateSchedule", "")
		return
	}

	h.logger.InfoContext(ctx, "Digest schedule created", "schedule_id", schedule.ID, "frequency", schedule.Frequency)
	writeJSON(w, http.StatusCreated, toScheduleDTO(schedule))
}

// ListSchedules returns all digest schedules for one recipient.
func (h *DigestHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipientID, err := uuid.Parse(r.URL.Query().Get("recipient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing recipient_id")
		return
	}

	schedules, err := h.schedules.ListByRecipient(ctx, recipientID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "ListSchedules", recipientID.String())
		return
	}

	dtos := make([]DigestScheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		dtos = append(dtos, toScheduleDTO(s))
	}
	writeJSON(w, http.StatusOK, ListSchedulesResponseDTO{Schedules: dtos})
}

func (h *DigestHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}
	schedule, err := h.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "GetSchedule", scheduleID.String())
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *DigestHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}

	var reqDTO UpdateDigestScheduleRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body for UpdateSchedule", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Validation failed for UpdateSchedule", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", err.Error()))
		return
	}

	schedule, err := h.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "UpdateSchedule", scheduleID.String())
		return
	}

	if reqDTO.Frequency != nil {
		schedule.Frequency = domain.Frequency(*reqDTO.Frequency)
	}
	if reqDTO.DeliveryTime != nil {
		deliveryTime, err := domain.ParseDeliveryTime(*reqDTO.DeliveryTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid delivery_time, expected HH:MM:SS")
			return
		}
		schedule.DeliveryTime = deliveryTime
	}
	if reqDTO.DeliveryDay != nil {
		schedule.DeliveryDay = sql.NullInt32{Int32: int32(*reqDTO.DeliveryDay), Valid: true}
	}
	if reqDTO.Timezone != nil {
		if _, err := time.LoadLocation(*reqDTO.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "Unknown timezone")
			return
		}
		schedule.Timezone = *reqDTO.Timezone
	}
	if reqDTO.MaxItemsPerDigest != nil {
		schedule.MaxItemsPerDigest = *reqDTO.MaxItemsPerDigest
	}
	if reqDTO.IncludeContentTypes != nil {
		schedule.IncludeContentTypes = *reqDTO.IncludeContentTypes
	}
	if reqDTO.AutoApprove != nil {
		schedule.AutoApprove = *reqDTO.AutoApprove
	}
	if reqDTO.IsActive != nil {
		schedule.IsActive = *reqDTO.IsActive
	}

	// Any edit recomputes the next run from the new fields.
	next, err := app.ComputeNextRun(schedule, h.nowFn().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid schedule: %s", err.Error()))
		return
	}
	schedule.NextScheduledAt = next

	if err := h.schedules.Update(ctx, schedule); err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "UpdateSchedule", scheduleID.String())
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *DigestHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}
	if err := h.schedules.Delete(ctx, scheduleID); err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "DeleteSchedule", scheduleID.String())
		return
	}
	h.logger.InfoContext(ctx, "Digest schedule deleted", "schedule_id", scheduleID)
	w.WriteHeader(http.StatusNoContent)
}

// CompileNow runs a full compile for the schedule immediately,
// persisting the digest (and fanning out if the schedule
// auto-approves).
func (h *DigestHandler) CompileNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}
	schedule, err := h.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "CompileNow", scheduleID.String())
		return
	}

	digest, err := h.compiler.CompileForSchedule(ctx, schedule)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "CompileNow", scheduleID.String())
		return
	}
	writeJSON(w, http.StatusCreated, toDigestDTO(digest))
}

// PreviewDigest compiles without persisting, so an operator can see
// what a digest would contain.
func (h *DigestHandler) PreviewDigest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}
	schedule, err := h.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "PreviewDigest", scheduleID.String())
		return
	}

	digest, err := h.compiler.Preview(ctx, schedule)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "PreviewDigest", scheduleID.String())
		return
	}
	writeJSON(w, http.StatusOK, toDigestDTO(digest))
}

// ListDigests returns a recipient's most recent digests.
func (h *DigestHandler) ListDigests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipientID, err := uuid.Parse(r.URL.Query().Get("recipient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing recipient_id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	digests, err := h.digests.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "ListDigests", recipientID.String())
		return
	}

	dtos := make([]DigestDTO, 0, len(digests))
	for _, d := range digests {
		dtos = append(dtos, toDigestDTO(d))
	}
	writeJSON(w, http.StatusOK, ListDigestsResponseDTO{Digests: dtos})
}

func (h *DigestHandler) GetDigest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	digestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid digest ID")
		return
	}
	digest, err := h.digests.GetByID(ctx, digestID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "GetDigest", digestID.String())
		return
	}
	writeJSON(w, http.StatusOK, toDigestDTO(digest))
}

// CustomizeDigest replaces the recipient-facing narrative while the
// digest awaits review.
func (h *DigestHandler) CustomizeDigest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	digestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid digest ID")
		return
	}

	var reqDTO CustomizeDigestRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body for CustomizeDigest", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Validation failed for CustomizeDigest", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", err.Error()))
		return
	}

	narrative := domain.Narrative{
		Intro:           reqDTO.Intro,
		Narrative:       reqDTO.Narrative,
		Closing:         reqDTO.Closing,
		MediaReferences: reqDTO.MediaRefs,
	}
	if err := h.digests.UpdateNarrative(ctx, digestID, narrative); err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "CustomizeDigest", digestID.String())
		return
	}

	digest, err := h.digests.GetByID(ctx, digestID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "CustomizeDigest (reload)", digestID.String())
		return
	}
	writeJSON(w, http.StatusOK, toDigestDTO(digest))
}

func (h *DigestHandler) ApproveDigest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	digestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid digest ID")
		return
	}

	digest, err := h.compiler.Approve(ctx, digestID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "ApproveDigest", digestID.String())
		return
	}
	h.logger.InfoContext(ctx, "Digest approved", "digest_id", digestID)
	writeJSON(w, http.StatusOK, toDigestDTO(digest))
}

func (h *DigestHandler) DeleteDigest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	digestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid digest ID")
		return
	}
	if err := h.digests.Delete(ctx, digestID); err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "DeleteDigest", digestID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterScheduleRoutes registers schedule routes on a chi router.
func (h *DigestHandler) RegisterScheduleRoutes(r chi.Router) {
	r.Post("/", h.CreateSchedule)
	r.Get("/", h.ListSchedules)
	r.Get("/{id}", h.GetSchedule)
	r.Put("/{id}", h.UpdateSchedule)
	r.Delete("/{id}", h.DeleteSchedule)
	r.Post("/{id}/compile", h.CompileNow)
	r.Get("/{id}/preview", h.PreviewDigest)
}

// RegisterDigestRoutes registers digest routes on a chi router.
func (h *DigestHandler) RegisterDigestRoutes(r chi.Router) {
	r.Get("/", h.ListDigests)
	r.Get("/{id}", h.GetDigest)
	r.Put("/{id}/narrative", h.CustomizeDigest)
	r.Post("/{id}/approve", h.ApproveDigest)
	r.Delete("/{id}", h.DeleteDigest)
}

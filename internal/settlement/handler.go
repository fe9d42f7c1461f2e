package settlement

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/pkg/middleware"
	"github.com/fkhayef/splitledger/pkg/response"
)

// Handler handles HTTP requests for settle-up operations
type Handler struct {
	service *Service
}

// NewHandler creates a new settlement handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GroupRoutes returns the router mounted at /groups/{groupId}/settle-up
func (h *Handler) GroupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/preview", h.Preview)
	r.Post("/confirm", h.Confirm)
	r.Get("/group", h.PreviewGroup)
	r.Post("/group/confirm", h.ConfirmGroup)
	r.Get("/debts", h.Debts)

	return r
}

// Routes returns the router mounted at /settlements
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/records/{recordId}", h.GetRecord)
	r.Get("/entries/pending", h.ListPending)
	r.Post("/entries/{entryId}/confirm", h.ConfirmEntry)
	r.Post("/entries/{entryId}/reject", h.RejectEntry)

	return r
}

// Preview handles POST /groups/{groupId}/settle-up/preview
// @Summary      Preview a settle-up
// @Description  Propose the entries that bring the caller's balance to zero
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        groupId path int true "Group ID"
// @Param        request body SettleUpRequest false "Counterparty selection"
// @Success      200 {object} response.APIResponse{data=PreviewResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /groups/{groupId}/settle-up/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		userID = 1 // Default for development
	}

	var req SettleUpRequest
	if err := decodeOptional(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	preview, err := h.service.PreviewSettleUp(r.Context(), groupID, userID, &req)
	if err != nil {
		writeError(w, err, "Failed to preview settle up")
		return
	}

	response.JSON(w, http.StatusOK, preview.ToResponse())
}

// Confirm handles POST /groups/{groupId}/settle-up/confirm
// @Summary      Confirm a settle-up
// @Description  Persist a previewed settle-up; 409 if balances moved since the preview
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        groupId path int true "Group ID"
// @Param        request body ConfirmSettleUpRequest true "Preview request and hash"
// @Success      201 {object} response.APIResponse{data=RecordResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /groups/{groupId}/settle-up/confirm [post]
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		userID = 1
	}

	var req ConfirmSettleUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if req.Hash == "" {
		response.BadRequest(w, "Hash is required")
		return
	}

	result, err := h.service.ConfirmSettleUp(r.Context(), groupID, userID, &req)
	if err != nil {
		writeError(w, err, "Failed to confirm settle up")
		return
	}

	response.JSON(w, http.StatusCreated, result.ToResponse())
}

// PreviewGroup handles GET /groups/{groupId}/settle-up/group
func (h *Handler) PreviewGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	preview, err := h.service.PreviewGroupSettleUp(r.Context(), groupID)
	if err != nil {
		writeError(w, err, "Failed to preview group settle up")
		return
	}

	response.JSON(w, http.StatusOK, preview.ToResponse())
}

// ConfirmGroup handles POST /groups/{groupId}/settle-up/group/confirm
func (h *Handler) ConfirmGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		userID = 1
	}

	var req ConfirmGroupSettleUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if req.Hash == "" {
		response.BadRequest(w, "Hash is required")
		return
	}

	results, err := h.service.ConfirmGroupSettleUp(r.Context(), groupID, userID, req.Hash)
	if err != nil {
		writeError(w, err, "Failed to confirm group settle up")
		return
	}

	records := make([]*RecordResponse, len(results))
	for i, c := range results {
		records[i] = c.ToResponse()
	}

	response.JSON(w, http.StatusCreated, records)
}

// Debts handles GET /groups/{groupId}/settle-up/debts
func (h *Handler) Debts(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	debts, err := h.service.Debts(r.Context(), groupID)
	if err != nil {
		writeError(w, err, "Failed to compute debts")
		return
	}

	response.JSON(w, http.StatusOK, debts.ToResponse())
}

// GetRecord handles GET /settlements/records/{recordId}
// @Summary      Get a settle-up record
// @Description  A settle-up with its entries; pending entries are confirmed or rejected by ID
// @Tags         settlements
// @Produce      json
// @Param        recordId path int true "Record ID"
// @Success      200 {object} response.APIResponse{data=RecordResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/records/{recordId} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := strconv.ParseInt(chi.URLParam(r, "recordId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid record ID")
		return
	}

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		userID = 1
	}

	record, err := h.service.GetRecord(r.Context(), recordID, userID)
	if err != nil {
		writeError(w, err, "Failed to get settle up")
		return
	}

	response.JSON(w, http.StatusOK, record.ToResponse())
}

// ListPending handles GET /settlements/entries/pending
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		userID = 1
	}

	entries, err := h.service.ListPendingEntries(r.Context(), userID)
	if err != nil {
		response.InternalError(w, "Failed to list pending entries")
		return
	}

	pending := make([]*PendingEntryResponse, len(entries))
	for i, e := range entries {
		pending[i] = pendingToResponse(e)
	}

	response.JSON(w, http.StatusOK, pending)
}

// ConfirmEntry handles POST /settlements/entries/{entryId}/confirm
// @Summary      Confirm a settle-up entry
// @Description  Counterparty accepts a pending entry, applying it to both balances
// @Tags         settlements
// @Produce      json
// @Param        entryId path int true "Entry ID"
// @Success      200 {object} response.APIResponse{data=EntryResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/entries/{entryId}/confirm [post]
func (h *Handler) ConfirmEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		userID = 1
	}

	entry, err := h.service.ConfirmEntry(r.Context(), entryID, userID)
	if err != nil {
		writeError(w, err, "Failed to confirm entry")
		return
	}

	response.JSON(w, http.StatusOK, entryToResponse(entry))
}

// RejectEntry handles POST /settlements/entries/{entryId}/reject
func (h *Handler) RejectEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		userID = 1
	}

	if err := h.service.RejectEntry(r.Context(), entryID, userID); err != nil {
		writeError(w, err, "Failed to reject entry")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Entry rejected"})
}

// writeError maps service errors to responses.
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrRecordNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrStaleSettleUp):
		response.Conflict(w, err.Error())
	case errors.Is(err, ErrNotReceiver),
		errors.Is(err, ErrNotGroupMember),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ledger.ErrNotGroupMember):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrNothingToSettle),
		errors.Is(err, ErrTooManyCounterparties),
		errors.Is(err, ErrInvalidAmounts),
		errors.Is(err, ErrAmountOutOfRange),
		errors.Is(err, ErrSameSideCounterparty),
		errors.Is(err, ErrCannotSettleSelf),
		errors.Is(err, ErrInvalidStatusChange),
		errors.Is(err, ledger.ErrEntryNotPending):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w, fallback)
	}
}

// decodeOptional decodes a JSON body, treating an empty body as the zero value.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LeventeLantos/bot-dispatch/internal/cache"
	"github.com/LeventeLantos/bot-dispatch/internal/command"
	"github.com/LeventeLantos/bot-dispatch/internal/model"
	"github.com/LeventeLantos/bot-dispatch/internal/schedule"
	"github.com/LeventeLantos/bot-dispatch/internal/scheduler"
)

type Handler struct {
	sched    *scheduler.Scheduler
	registry *command.Registry
	resolver *command.Resolver
	store    *schedule.Store
	receipts cache.DeliveryCache
}

type Deps struct {
	Scheduler *scheduler.Scheduler
	Registry  *command.Registry
	Resolver  *command.Resolver
	Store     *schedule.Store
	// Receipts is optional; without it the receipts endpoint answers 404.
	Receipts cache.DeliveryCache
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		sched:    d.Scheduler,
		registry: d.Registry,
		resolver: d.Resolver,
		store:    d.Store,
		receipts: d.Receipts,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// commands

type commandDTO struct {
	ID                  string             `json:"id"`
	Triggers            []string           `json:"triggers"`
	TextMessage         string             `json:"textMessage"`
	Attachments         []model.Attachment `json:"attachments"`
	IsActive            bool               `json:"isActive"`
	LinkedSubcategoryID *int64             `json:"linkedSubcategoryId"`
	LinkedItemID        *int64             `json:"linkedItemId"`
	CreatedAt           time.Time          `json:"createdAt"`
}

func toCommandDTO(c model.Command) commandDTO {
	atts := c.Attachments
	if atts == nil {
		atts = []model.Attachment{}
	}
	return commandDTO{
		ID:                  c.ID,
		Triggers:            c.Triggers,
		TextMessage:         c.TextMessage,
		Attachments:         atts,
		IsActive:            c.IsActive,
		LinkedSubcategoryID: c.Link.SubcategoryID(),
		LinkedItemID:        c.Link.ItemID(),
		CreatedAt:           c.CreatedAt,
	}
}

type draftDTO struct {
	Triggers            string             `json:"triggers"`
	TextMessage         string             `json:"textMessage"`
	Attachments         []model.Attachment `json:"attachments"`
	IsActive            *bool              `json:"isActive"`
	LinkedSubcategoryID *int64             `json:"linkedSubcategoryId"`
	LinkedItemID        *int64             `json:"linkedItemId"`
}

func (d draftDTO) toDraft() command.Draft {
	return command.Draft{
		Triggers:            d.Triggers,
		TextMessage:         d.TextMessage,
		Attachments:         d.Attachments,
		IsActive:            d.IsActive,
		LinkedSubcategoryID: d.LinkedSubcategoryID,
		LinkedItemID:        d.LinkedItemID,
	}
}

func (h *Handler) ListCommands(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cmds, err := h.registry.List(r.Context(), command.Filter{
		ActiveOnly: parseBool(q.Get("active")),
		Search:     q.Get("search"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]commandDTO, 0, len(cmds))
	for _, c := range cmds {
		items = append(items, toCommandDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) CreateCommand(w http.ResponseWriter, r *http.Request) {
	var in draftDTO
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.registry.Create(r.Context(), in.toDraft())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommandDTO(c))
}

func (h *Handler) GetCommand(w http.ResponseWriter, r *http.Request) {
	c, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommandDTO(c))
}

func (h *Handler) UpdateCommand(w http.ResponseWriter, r *http.Request) {
	var in draftDTO
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.registry.Update(r.Context(), chi.URLParam(r, "id"), in.toDraft())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommandDTO(c))
}

func (h *Handler) SetCommandActive(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Active *bool `json:"active"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Active == nil {
		writeError(w, model.NewValidationError("active", "is required"))
		return
	}
	c, err := h.registry.SetActive(r.Context(), chi.URLParam(r, "id"), *in.Active)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommandDTO(c))
}

func (h *Handler) DeleteCommand(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resolve is called by the chat ingestion side for every inbound text.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	action, err := h.resolver.Resolve(r.Context(), in.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	if action == nil {
		writeJSON(w, http.StatusOK, map[string]any{"matched": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matched": true, "action": action})
}

// scheduled messages

type enqueueDTO struct {
	Body         string `json:"body"`
	ScheduledAt  string `json:"scheduledAt"`
	DeliveryMode string `json:"deliveryMode"`
	ContactID    string `json:"contactId"`
}

func (h *Handler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	var in enqueueDTO
	if !decodeBody(w, r, &in) {
		return
	}

	at, err := time.Parse(time.RFC3339, strings.TrimSpace(in.ScheduledAt))
	if err != nil {
		writeError(w, model.NewValidationError("scheduledAt", "must be an RFC 3339 timestamp"))
		return
	}

	m, err := h.store.Enqueue(r.Context(), schedule.EnqueueRequest{
		Body:        in.Body,
		ScheduledAt: at,
		Mode:        model.DeliveryMode(in.DeliveryMode),
		ContactID:   in.ContactID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	h.listMessages(w, r, model.Status(r.URL.Query().Get("status")))
}

func (h *Handler) ListSentMessages(w http.ResponseWriter, r *http.Request) {
	h.listMessages(w, r, model.Sent)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request, status model.Status) {
	switch status {
	case "", model.Pending, model.Sent, model.Failed:
	default:
		writeError(w, model.NewValidationError("status", "must be pending, sent or failed"))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.store.List(r.Context(), schedule.ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []model.ScheduledMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MessageReceipts(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		http.Error(w, "receipts are not enabled", http.StatusNotFound)
		return
	}
	receipts, err := h.receipts.Receipts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 32<<20))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidState):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/planner"
)

// ImageLookup resolves a spot name to an image URL.
type ImageLookup interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *planner.Service
	images ImageLookup
}

// NewHandler creates a new Handler. images may be nil.
func NewHandler(svc *planner.Service, images ImageLookup) *Handler {
	return &Handler{svc: svc, images: images}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalidMove), errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrOptimizer):
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("route optimizer unavailable"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the caller may continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if vv, ok := v.(validation.Validatable); ok {
		if err := vv.Validate(); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
			return false
		}
	}
	return true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(name+" must be an integer"))
		return 0, false
	}
	return n, true
}

// ListSpots handles GET /api/rooms/{room}/spots.
//
//	@Summary		List the spot pool of a room
//	@Tags			spots
//	@Produce		json
//	@Param			room	path		string	true	"Room ID"
//	@Success		200		{array}		models.Spot
//	@Security		BearerAuth
//	@Router			/rooms/{room}/spots [get]
func (h *Handler) ListSpots(w http.ResponseWriter, r *http.Request) {
	spots, err := h.svc.ListSpots(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, "list spots", err)
		return
	}
	writeJSON(w, http.StatusOK, spots)
}

// PutSpot handles PUT /api/rooms/{room}/spots/{id}.
//
//	@Summary		Write a spot change and merge it into open plans
//	@Tags			spots
//	@Accept			json
//	@Produce		json
//	@Param			room	path		string				true	"Room ID"
//	@Param			id		path		string				true	"Spot ID"
//	@Param			body	body		SpotChangeRequest	true	"Change"
//	@Success		200		{object}	models.Spot
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rooms/{room}/spots/{id} [put]
func (h *Handler) PutSpot(w http.ResponseWriter, r *http.Request) {
	var req SpotChangeRequest
	if !decode(w, r, &req) {
		return
	}
	sp, err := h.svc.ApplySpotChange(r.Context(), chi.URLParam(r, "room"), req.change(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, "put spot", err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// SetTravelDays handles PUT /api/rooms/{room}/travel-days.
func (h *Handler) SetTravelDays(w http.ResponseWriter, r *http.Request) {
	var req TravelDaysRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.svc.SetTravelDays(r.Context(), chi.URLParam(r, "room"), req.Days)
	if err != nil {
		writeError(w, "set travel days", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"day_count": n})
}

// GetDay handles GET /api/rooms/{room}/days/{day}.
//
//	@Summary		Get the plan of one day
//	@Tags			days
//	@Produce		json
//	@Param			room	path		string	true	"Room ID"
//	@Param			day		path		int		true	"Day number, from 1"
//	@Success		200		{object}	DayView
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rooms/{room}/days/{day} [get]
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	v, err := h.svc.DayView(r.Context(), chi.URLParam(r, "room"), day)
	if err != nil {
		writeError(w, "get day", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetStartTime handles PUT /api/rooms/{room}/days/{day}/start.
func (h *Handler) SetStartTime(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	var req StartTimeRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := h.svc.SetStartTime(r.Context(), chi.URLParam(r, "room"), day, req.StartTime)
	if err != nil {
		writeError(w, "set start time", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// EditSegment handles PATCH /api/rooms/{room}/days/{day}/segments/{index}.
//
//	@Summary		Edit a stay duration or travel leg
//	@Tags			days
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SegmentEditRequest	true	"Fields to change"
//	@Success		200		{object}	DayView
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rooms/{room}/days/{day}/segments/{index} [patch]
func (h *Handler) EditSegment(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	var req SegmentEditRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := h.svc.EditSegment(r.Context(), chi.URLParam(r, "room"), day, index, req.edit())
	if err != nil {
		writeError(w, "edit segment", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Reorder handles POST /api/rooms/{room}/days/{day}/reorder.
//
//	@Summary		Move a visit to a new position
//	@Tags			days
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReorderRequest	true	"Source index and drop point"
//	@Success		200		{object}	DayView
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rooms/{room}/days/{day}/reorder [post]
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	var req ReorderRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := h.svc.Reorder(r.Context(), chi.URLParam(r, "room"), day, req.From, req.To)
	if err != nil {
		writeError(w, "reorder", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Drag handles POST /api/rooms/{room}/days/{day}/drag/{action}.
func (h *Handler) Drag(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	room := chi.URLParam(r, "room")
	ctx := r.Context()

	var (
		v   planner.View
		err error
	)
	switch chi.URLParam(r, "action") {
	case "begin":
		var req DragBeginRequest
		if !decode(w, r, &req) {
			return
		}
		v, err = h.svc.BeginDrag(ctx, room, day, req.From)
	case "pointer":
		var req DragPointerRequest
		if !decode(w, r, &req) {
			return
		}
		dir, err := h.svc.DragPointer(ctx, room, day, req.Y, req.Height)
		if err != nil {
			writeError(w, "drag pointer", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"direction": dir})
		return
	case "drop":
		var req DragDropRequest
		if !decode(w, r, &req) {
			return
		}
		v, err = h.svc.DropDrag(ctx, room, day, req.To)
	case "cancel":
		v, err = h.svc.CancelDrag(ctx, room, day)
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown drag action"))
		return
	}
	if err != nil {
		writeError(w, "drag", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetInclusion handles POST /api/rooms/{room}/days/{day}/spots/{id}/{exclude|include}.
func (h *Handler) SetInclusion(include bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, ok := intParam(w, r, "day")
		if !ok {
			return
		}
		room, id := chi.URLParam(r, "room"), chi.URLParam(r, "id")
		var (
			v   planner.View
			err error
		)
		if include {
			v, err = h.svc.IncludeSpot(r.Context(), room, day, id)
		} else {
			v, err = h.svc.ExcludeSpot(r.Context(), room, day, id)
		}
		if err != nil {
			writeError(w, "set inclusion", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// Optimize handles POST /api/rooms/{room}/days/{day}/optimize.
//
//	@Summary		Reorder a day with the route optimizer
//	@Tags			days
//	@Produce		json
//	@Success		200		{object}	DayView
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rooms/{room}/days/{day}/optimize [post]
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	v, err := h.svc.Optimize(r.Context(), chi.URLParam(r, "room"), day)
	if err != nil {
		writeError(w, "optimize", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListPins handles GET /api/rooms/{room}/pins.
func (h *Handler) ListPins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.svc.ListPins(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, "list pins", err)
		return
	}
	writeJSON(w, http.StatusOK, pins)
}

// CreatePin handles POST /api/rooms/{room}/pins.
func (h *Handler) CreatePin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if !decode(w, r, &req) {
		return
	}
	pin, err := h.svc.PinDay(r.Context(), chi.URLParam(r, "room"), req.Day, req.Title)
	if err != nil {
		writeError(w, "create pin", err)
		return
	}
	writeJSON(w, http.StatusCreated, pin)
}

// LoadPin handles POST /api/rooms/{room}/pins/{id}/load?day=N.
func (h *Handler) LoadPin(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(r.URL.Query().Get("day"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("day query parameter is required"))
		return
	}
	v, err := h.svc.LoadPin(r.Context(), chi.URLParam(r, "room"), chi.URLParam(r, "id"), day)
	if err != nil {
		writeError(w, "load pin", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeletePin handles DELETE /api/rooms/{room}/pins/{id}.
func (h *Handler) DeletePin(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePin(r.Context(), chi.URLParam(r, "room"), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete pin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Image handles GET /api/images?q=name.
//
//	@Summary		Look up a picture for a place name
//	@Tags			images
//	@Produce		json
//	@Param			q	query		string	true	"Place name"
//	@Success		200	{object}	ImageResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images [get]
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	if h.images == nil {
		writeJSON(w, http.StatusNotFound, errorBody("image lookup disabled"))
		return
	}
	u, err := h.images.Lookup(r.Context(), q)
	if err != nil {
		slog.Warn("image lookup failed", slog.String("query", q), slog.String("error", err.Error()))
	}
	if u == "" {
		writeJSON(w, http.StatusNotFound, errorBody("no image"))
		return
	}
	writeJSON(w, http.StatusOK, ImageResponse{Query: q, ImageURL: u})
}

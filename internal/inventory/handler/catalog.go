package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/httputil"
	"github.com/syncstock/syncstock-backend/pkg/logger"
)

type locationRequest struct {
	Name           string  `json:"name" validate:"required,max=255"`
	Address        string  `json:"address" validate:"max=500"`
	Description    string  `json:"description"`
	PersonInCharge *string `json:"person_in_charge" validate:"omitempty,max=255"`
	MapsURL        *string `json:"maps_url" validate:"omitempty,url"`
}

func (req locationRequest) location(id string) *domain.Location {
	return &domain.Location{
		ID:             id,
		Name:           req.Name,
		Address:        req.Address,
		Description:    req.Description,
		PersonInCharge: req.PersonInCharge,
		MapsURL:        req.MapsURL,
	}
}

// LocationHandler handles location endpoints
type LocationHandler struct {
	service *service.LocationService
	logger  *logger.Logger
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(svc *service.LocationService, log *logger.Logger) *LocationHandler {
	return &LocationHandler{
		service: svc,
		logger:  log,
	}
}

func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, l)
}

func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	l := req.location("")
	if err := h.service.Create(r.Context(), l); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, l)
}

func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	l := req.location(chi.URLParam(r, "id"))
	if err := h.service.Update(r.Context(), l); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, l)
}

func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
}

// CategoryHandler handles category endpoints
type CategoryHandler struct {
	service *service.CategoryService
	logger  *logger.Logger
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(svc *service.CategoryService, log *logger.Logger) *CategoryHandler {
	return &CategoryHandler{
		service: svc,
		logger:  log,
	}
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, c)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	c := &domain.Category{Name: req.Name, Description: req.Description}
	if err := h.service.Create(r.Context(), c); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	c := &domain.Category{ID: chi.URLParam(r, "id"), Name: req.Name, Description: req.Description}
	if err := h.service.Update(r.Context(), c); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, c)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

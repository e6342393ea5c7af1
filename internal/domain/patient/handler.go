package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fhirlite/fhirlite/internal/platform/fhir"
	"github.com/fhirlite/fhirlite/pkg/pagination"
)

// Handler exposes the patient operations over HTTP. baseURL is the
// externally visible server root used in Location headers and Bundle
// fullUrl entries.
type Handler struct {
	svc     *Service
	baseURL string
	log     zerolog.Logger
}

func NewHandler(svc *Service, baseURL string, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, baseURL: baseURL, log: log}
}

// Register mounts the patient routes on g, which is expected to be the
// /fhir group.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/Patient", h.Create)
	g.GET("/Patient", h.Search)
	g.POST("/Patient/_search", h.SearchPost)
	g.GET("/Patient/:id", h.Read)
	g.PUT("/Patient/:id", h.Update)
	g.DELETE("/Patient/:id", h.Delete)
	g.GET("/Patient/:id/_history", h.History)
	g.GET("/Patient/:id/_history/:vid", h.ReadVersion)
}

func (h *Handler) Create(c echo.Context) error {
	var doc Patient
	if err := json.NewDecoder(c.Request().Body).Decode(&doc); err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("request body is not a valid JSON resource"))
	}

	stored, created, err := h.svc.Create(c.Request().Context(), &doc)
	if err != nil {
		return h.writeError(c, err)
	}

	c.Response().Header().Set("Location",
		fmt.Sprintf("%s/fhir/Patient/%s/_history/%s", h.baseURL, stored.ID, stored.Meta.VersionID))
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	return c.JSON(status, stored)
}

func (h *Handler) Read(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("id is not a valid UUID", "Patient.id"))
	}

	doc, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("id is not a valid UUID", "Patient.id"))
	}

	var doc Patient
	if err := json.NewDecoder(c.Request().Body).Decode(&doc); err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("request body is not a valid JSON resource"))
	}

	stored, err := h.svc.Update(c.Request().Context(), id, &doc)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, stored)
}

func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("id is not a valid UUID", "Patient.id"))
	}

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Search(c echo.Context) error {
	return h.search(c, c.QueryParams())
}

// SearchPost implements the POST /_search alternative, reading the
// parameters from the form body merged over the query string.
func (h *Handler) SearchPost(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("request body is not a valid form"))
	}
	merged := url.Values{}
	for k, vs := range c.QueryParams() {
		merged[k] = vs
	}
	for k, vs := range values {
		merged[k] = vs
	}
	return h.search(c, merged)
}

func (h *Handler) search(c echo.Context, values url.Values) error {
	page := pagination.FromContext(c)

	results, total, err := h.svc.Search(c.Request().Context(), values, page.Limit, page.Offset)
	if err != nil {
		return h.writeError(c, err)
	}

	links := page.FHIRLinks(h.baseURL+"/fhir/Patient", values, total)
	bundle := fhir.NewSearchSet(total, links)
	for i := range results {
		body, err := json.Marshal(&results[i])
		if err != nil {
			return h.writeError(c, err)
		}
		bundle.AddMatch(fmt.Sprintf("%s/fhir/Patient/%s", h.baseURL, results[i].ID), body)
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) History(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("id is not a valid UUID", "Patient.id"))
	}
	page := pagination.FromContext(c)

	records, total, err := h.svc.History(c.Request().Context(), id, page.Limit, page.Offset)
	if err != nil {
		return h.writeError(c, err)
	}

	links := page.FHIRLinks(fmt.Sprintf("%s/fhir/Patient/%s/_history", h.baseURL, id), c.QueryParams(), total)
	bundle := fhir.NewHistory(total, links)
	for _, rec := range records {
		body, err := json.Marshal(&rec.Resource)
		if err != nil {
			return h.writeError(c, err)
		}
		bundle.AddVersion(
			fmt.Sprintf("%s/fhir/Patient/%s/_history/%d", h.baseURL, id, rec.VersionID),
			body,
			rec.Status,
			fmt.Sprintf("Patient/%s", id),
		)
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) ReadVersion(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("id is not a valid UUID", "Patient.id"))
	}
	version, err := strconv.Atoi(c.Param("vid"))
	if err != nil || version < 1 {
		return c.JSON(http.StatusBadRequest,
			fhir.ValidationOutcome("version id must be a positive integer"))
	}

	rec, err := h.svc.GetVersion(c.Request().Context(), id, version)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, &rec.Resource)
}

// writeError maps engine errors onto transport responses. Anything not
// recognized is an internal fault: logged in full, reported generically.
func (h *Handler) writeError(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Patient not found"))
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome(verr.Msg, verr.Expression))
	}

	rid, _ := c.Get("request_id").(string)
	h.log.Error().Err(err).
		Str("request_id", rid).
		Str("path", c.Request().URL.Path).
		Msg("patient operation failed")
	return c.JSON(http.StatusInternalServerError, fhir.InternalOutcome())
}

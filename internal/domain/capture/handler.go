package capture

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trackercapture/tracker/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Data entry – admin, coordinator, capture
	g := api.Group("", auth.RequireRole("admin", "coordinator", "capture"))
	g.POST("/capture/evaluate", h.Evaluate)
	g.DELETE("/capture/effects/:context", h.ClearEffects)

	g.POST("/tracked-entities", h.CreateEntity)
	g.GET("/tracked-entities/:uid", h.GetEntity)
	g.PUT("/tracked-entities/:uid/attributes", h.SetAttribute)
	g.GET("/tracked-entities/:uid/enrollments", h.ListEnrollments)

	g.POST("/enrollments", h.CreateEnrollment)
	g.GET("/enrollments/:uid", h.GetEnrollment)
	g.GET("/enrollments/:uid/events", h.ListEnrollmentEvents)

	g.POST("/events", h.CreateEvent)
	g.GET("/events/:uid", h.GetEvent)
	g.PUT("/events/:uid", h.UpdateEvent)
}

// -- Evaluation Handlers --

func (h *Handler) Evaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.Evaluate(c.Request().Context(), &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ClearEffects(c echo.Context) error {
	h.svc.ClearEffects(c.Param("context"))
	return c.NoContent(http.StatusNoContent)
}

// -- Tracked Entity Handlers --

func (h *Handler) CreateEntity(c echo.Context) error {
	var te TrackedEntity
	if err := c.Bind(&te); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateEntity(c.Request().Context(), &te); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, te)
}

func (h *Handler) GetEntity(c echo.Context) error {
	te, err := h.svc.GetEntity(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "tracked entity not found")
	}
	return c.JSON(http.StatusOK, te)
}

func (h *Handler) SetAttribute(c echo.Context) error {
	var av AttributeValue
	if err := c.Bind(&av); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetAttribute(c.Request().Context(), c.Param("uid"), av); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, av)
}

func (h *Handler) ListEnrollments(c echo.Context) error {
	enrollments, err := h.svc.ListEnrollments(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, enrollments)
}

// -- Enrollment Handlers --

func (h *Handler) CreateEnrollment(c echo.Context) error {
	var e Enrollment
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateEnrollment(c.Request().Context(), &e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEnrollment(c echo.Context) error {
	e, err := h.svc.GetEnrollment(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "enrollment not found")
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEnrollmentEvents(c echo.Context) error {
	events, err := h.svc.ListEnrollmentEvents(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, events)
}

// -- Event Handlers --

func (h *Handler) CreateEvent(c echo.Context) error {
	var ev Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateEvent(c.Request().Context(), &ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ev)
}

func (h *Handler) GetEvent(c echo.Context) error {
	ev, err := h.svc.GetEvent(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "event not found")
	}
	return c.JSON(http.StatusOK, ev)
}

func (h *Handler) UpdateEvent(c echo.Context) error {
	var ev Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev.UID = c.Param("uid")
	if err := h.svc.UpdateEvent(c.Request().Context(), &ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, ev)
}

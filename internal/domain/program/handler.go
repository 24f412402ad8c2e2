package program

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/trackercapture/tracker/internal/platform/auth"
	"github.com/trackercapture/tracker/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, coordinator, capture
	readGroup := api.Group("", auth.RequireRole("admin", "coordinator", "capture"))
	readGroup.GET("/programs", h.ListPrograms)
	readGroup.GET("/programs/:uid", h.GetProgram)
	readGroup.GET("/programs/:uid/stages", h.ListStages)
	readGroup.GET("/programs/:uid/rules", h.ListRules)
	readGroup.GET("/programs/:uid/rule-variables", h.ListVariables)
	readGroup.GET("/programs/:uid/indicators", h.ListIndicators)
	readGroup.GET("/stages/:uid/elements", h.ListStageElements)
	readGroup.GET("/data-elements", h.ListDataElements)
	readGroup.GET("/attributes", h.ListAttributes)
	readGroup.GET("/option-sets/:uid/options", h.ListOptions)
	readGroup.GET("/constants", h.ListConstants)
	readGroup.GET("/rules/:uid", h.GetRule)
	readGroup.GET("/rules/:uid/actions", h.ListActions)

	// Write endpoints – admin, coordinator
	writeGroup := api.Group("", auth.RequireRole("admin", "coordinator"))
	writeGroup.POST("/programs", h.CreateProgram)
	writeGroup.PUT("/programs/:uid", h.UpdateProgram)
	writeGroup.DELETE("/programs/:id", h.DeleteProgram)
	writeGroup.POST("/programs/:uid/stages", h.CreateStage)
	writeGroup.POST("/stages/:uid/elements", h.AddStageElement)
	writeGroup.POST("/data-elements", h.CreateDataElement)
	writeGroup.POST("/attributes", h.CreateAttribute)
	writeGroup.POST("/option-sets", h.CreateOptionSet)
	writeGroup.POST("/option-sets/:uid/options", h.AddOption)
	writeGroup.POST("/constants", h.CreateConstant)
	writeGroup.POST("/rules", h.CreateRule)
	writeGroup.PUT("/rules/:uid", h.UpdateRule)
	writeGroup.DELETE("/rules/:id", h.DeleteRule)
	writeGroup.POST("/rules/:uid/actions", h.AddAction)
	writeGroup.POST("/rule-variables", h.CreateVariable)
	writeGroup.POST("/indicators", h.CreateIndicator)
}

// -- Program Handlers --

func (h *Handler) CreateProgram(c echo.Context) error {
	var p Program
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateProgram(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProgram(c echo.Context) error {
	p, err := h.svc.GetProgram(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "program not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPrograms(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPrograms(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateProgram(c echo.Context) error {
	existing, err := h.svc.GetProgram(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "program not found")
	}
	var p Program
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = existing.ID
	p.UID = existing.UID
	if err := h.svc.UpdateProgram(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProgram(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteProgram(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Stage Handlers --

func (h *Handler) CreateStage(c echo.Context) error {
	var s Stage
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.ProgramUID = c.Param("uid")
	if err := h.svc.CreateStage(c.Request().Context(), &s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) ListStages(c echo.Context) error {
	stages, err := h.svc.ListStages(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stages)
}

func (h *Handler) AddStageElement(c echo.Context) error {
	var e StageElement
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.StageUID = c.Param("uid")
	if err := h.svc.AddStageElement(c.Request().Context(), &e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListStageElements(c echo.Context) error {
	elements, err := h.svc.ListStageElements(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, elements)
}

// -- Metadata Handlers --

func (h *Handler) CreateDataElement(c echo.Context) error {
	var de DataElement
	if err := c.Bind(&de); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDataElement(c.Request().Context(), &de); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, de)
}

func (h *Handler) ListDataElements(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDataElements(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateAttribute(c echo.Context) error {
	var a Attribute
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAttribute(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAttributes(c echo.Context) error {
	attrs, err := h.svc.ListAttributes(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, attrs)
}

func (h *Handler) CreateOptionSet(c echo.Context) error {
	var os OptionSet
	if err := c.Bind(&os); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateOptionSet(c.Request().Context(), &os); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, os)
}

func (h *Handler) AddOption(c echo.Context) error {
	var o Option
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o.OptionSetUID = c.Param("uid")
	if err := h.svc.AddOption(c.Request().Context(), &o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ListOptions(c echo.Context) error {
	options, err := h.svc.ListOptions(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, options)
}

func (h *Handler) CreateConstant(c echo.Context) error {
	var cst Constant
	if err := c.Bind(&cst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateConstant(c.Request().Context(), &cst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, cst)
}

func (h *Handler) ListConstants(c echo.Context) error {
	constants, err := h.svc.ListConstants(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, constants)
}

// -- Rule Handlers --

func (h *Handler) CreateRule(c echo.Context) error {
	var r Rule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateRule(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRule(c echo.Context) error {
	r, err := h.svc.GetRule(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "rule not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRules(c echo.Context) error {
	items, err := h.svc.ListRules(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateRule(c echo.Context) error {
	existing, err := h.svc.GetRule(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "rule not found")
	}
	var r Rule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = existing.ID
	r.UID = existing.UID
	r.ProgramUID = existing.ProgramUID
	if err := h.svc.UpdateRule(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteRule(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddAction(c echo.Context) error {
	var a RuleAction
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.RuleUID = c.Param("uid")
	if err := h.svc.AddAction(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListActions(c echo.Context) error {
	actions, err := h.svc.ListActions(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, actions)
}

func (h *Handler) CreateVariable(c echo.Context) error {
	var v RuleVariable
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateVariable(c.Request().Context(), &v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListVariables(c echo.Context) error {
	vars, err := h.svc.ListVariables(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, vars)
}

func (h *Handler) CreateIndicator(c echo.Context) error {
	var ind Indicator
	if err := c.Bind(&ind); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateIndicator(c.Request().Context(), &ind); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ind)
}

func (h *Handler) ListIndicators(c echo.Context) error {
	indicators, err := h.svc.ListIndicators(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, indicators)
}

package chapter

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/middleware"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/projects/:id/chapters", authMW)

	g.GET("", h.plan)
	g.PUT("/:act", h.edit)
	g.GET("/:act/debug", h.debug)
	g.POST("/generate", h.generate)
	g.POST("/generate_all", h.generateAll)
}

func (h *Handler) plan(c *gin.Context) {
	act, err := strconv.Atoi(c.Query("act"))
	if err != nil {
		response.BadRequest(c, ErrBadAct.Error())
		return
	}

	view, err := h.svc.Plan(middleware.CurrentUserID(c), c.Param("id"), act)
	if err != nil {
		respondError(c, err)
		return
	}
	if view == nil {
		response.NotFoundMsg(c, "no chapter plan for this act yet")
		return
	}
	response.OK(c, view)
}

func (h *Handler) edit(c *gin.Context) {
	act, err := strconv.Atoi(c.Param("act"))
	if err != nil {
		response.BadRequest(c, ErrBadAct.Error())
		return
	}

	var dto EditPlanDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	view, err := h.svc.Edit(middleware.CurrentUserID(c), c.Param("id"), act, &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, view)
}

func (h *Handler) generate(c *gin.Context) {
	var dto GeneratePlanDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if c.Query("queue") == "1" {
		task, err := h.svc.Enqueue(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
		if err != nil {
			respondError(c, err)
			return
		}
		response.OK(c, task)
		return
	}

	outcome, err := h.svc.Generate(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, outcome)
}

func (h *Handler) generateAll(c *gin.Context) {
	var dto GenerateAllDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	result, err := h.svc.GenerateAll(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *Handler) debug(c *gin.Context) {
	act, err := strconv.Atoi(c.Param("act"))
	if err != nil {
		response.BadRequest(c, ErrBadAct.Error())
		return
	}

	lines, err := h.svc.DebugTrail(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), act)
	if err != nil {
		respondError(c, err)
		return
	}
	if lines == nil {
		response.NotFoundMsg(c, "no debug trail for this act")
		return
	}
	response.OK(c, gin.H{"lines": lines})
}

func respondError(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		response.UnprocessableEntity(c, ve.Message)
	case errors.Is(err, ErrProjectNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrBadAct), errors.Is(err, ai.ErrNoProvider):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

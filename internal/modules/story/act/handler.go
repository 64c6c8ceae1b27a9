package act

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/middleware"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/projects/:id", authMW)

	g.GET("/acts", h.list)
	g.PUT("/acts/:act", h.upsert)
	g.POST("/acts/generate", h.generate)
	g.POST("/concept/clarify", h.clarify)
}

func (h *Handler) list(c *gin.Context) {
	acts, err := h.svc.List(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, acts)
}

func (h *Handler) upsert(c *gin.Context) {
	act, err := strconv.Atoi(c.Param("act"))
	if err != nil {
		response.BadRequest(c, ErrBadAct.Error())
		return
	}

	var dto EditActDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	row, err := h.svc.Upsert(middleware.CurrentUserID(c), c.Param("id"), act, &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, row)
}

func (h *Handler) generate(c *gin.Context) {
	var dto GenerateActsDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if raw := c.Query("act"); raw != "" {
		act, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, ErrBadAct.Error())
			return
		}
		dto.Act = act
	}

	res, err := h.svc.Generate(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) clarify(c *gin.Context) {
	var dto ClarifyDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	res, err := h.svc.Clarify(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, res)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrProjectNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrBadAct), errors.Is(err, ErrNoMaterial):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

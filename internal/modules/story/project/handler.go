package project

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/middleware"
	"github.com/neperienx/bookpipeline/internal/pkg/pagination"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	projects := rg.Group("/projects", authMW)

	projects.GET("", h.list)
	projects.POST("", h.create)
	projects.GET("/:id", h.get)
	projects.PUT("/:id", h.update)
	projects.DELETE("/:id", h.delete)

	projects.GET("/:id/status", h.status)
	projects.POST("/:id/advance", h.advance)
	projects.POST("/:id/reset", h.reset)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	projects, pag, err := h.svc.List(middleware.CurrentUserID(c), q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, projects, pag)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateProjectDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	proj, err := h.svc.Create(middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, proj)
}

func (h *Handler) get(c *gin.Context) {
	proj, err := h.svc.GetOwned(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if proj == nil {
		response.NotFoundMsg(c, "project not found")
		return
	}
	response.OK(c, proj)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateProjectDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	proj, err := h.svc.Update(middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if proj == nil {
		response.NotFoundMsg(c, "project not found")
		return
	}
	response.OK(c, proj)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) status(c *gin.Context) {
	view, err := h.svc.Status(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if view == nil {
		response.NotFoundMsg(c, "project not found")
		return
	}
	response.OK(c, view)
}

func (h *Handler) advance(c *gin.Context) {
	proj, err := h.svc.Advance(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrPrerequisite) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if proj == nil {
		response.NotFoundMsg(c, "project not found")
		return
	}
	response.OK(c, proj)
}

func (h *Handler) reset(c *gin.Context) {
	proj, err := h.svc.Reset(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if proj == nil {
		response.NotFoundMsg(c, "project not found")
		return
	}
	response.OK(c, proj)
}

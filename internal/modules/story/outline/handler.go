package outline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

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
	g := rg.Group("/projects/:id/outline", authMW)

	g.GET("/versions", h.versions)
	g.GET("/latest", h.latest)
	g.PUT("", h.edit)
	g.POST("/generate", h.generate)
}

func (h *Handler) versions(c *gin.Context) {
	q := pagination.FromContext(c)
	versions, pag, err := h.svc.Versions(middleware.CurrentUserID(c), c.Param("id"), q)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Paged(c, versions, pag)
}

func (h *Handler) latest(c *gin.Context) {
	v, err := h.svc.Latest(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if v == nil {
		response.NotFoundMsg(c, "no outline yet")
		return
	}
	response.OK(c, v)
}

func (h *Handler) edit(c *gin.Context) {
	var dto EditOutlineDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	v, err := h.svc.Edit(middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, v)
}

func (h *Handler) generate(c *gin.Context) {
	var dto GenerateOutlineDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	if c.Query("stream") == "1" {
		h.generateStream(c, &dto)
		return
	}

	res, err := h.svc.Generate(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) generateStream(c *gin.Context, dto *GenerateOutlineDTO) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(eventType string, data interface{}) {
		raw, _ := json.Marshal(data)
		fmt.Fprintf(c.Writer, "data: %s\n\n", fmt.Sprintf(`{"type":%q,"data":%s}`, eventType, raw))
		c.Writer.Flush()
	}

	res, err := h.svc.GenerateStream(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), dto, func(token string) {
		sendEvent("token", token)
	})
	if err != nil {
		sendEvent("error", err.Error())
		return
	}
	sendEvent("done", res)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrProjectNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrNoPremise):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/middleware"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/modules/processing/markdown"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	byProject := rg.Group("/projects/:id/drafts", authMW)
	byProject.GET("", h.list)
	byProject.POST("/generate", h.generate)

	byID := rg.Group("/drafts", authMW)
	byID.GET("/:did", h.get)
	byID.PUT("/:did", h.edit)
	byID.DELETE("/:did", h.remove)
	byID.GET("/:did/preview", h.preview)
}

func (h *Handler) list(c *gin.Context) {
	act := 0
	if raw := c.Query("act"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "act must be a number")
			return
		}
		act = parsed
	}

	drafts, err := h.svc.List(middleware.CurrentUserID(c), c.Param("id"), act)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, drafts)
}

func (h *Handler) get(c *gin.Context) {
	draft, err := h.svc.Get(middleware.CurrentUserID(c), c.Param("did"))
	if err != nil {
		respondError(c, err)
		return
	}
	if draft == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, draft)
}

func (h *Handler) edit(c *gin.Context) {
	var dto EditDraftDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	draft, err := h.svc.Edit(middleware.CurrentUserID(c), c.Param("did"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	if draft == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, draft)
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.svc.Delete(middleware.CurrentUserID(c), c.Param("did")); err != nil {
		respondError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) preview(c *gin.Context) {
	draft, err := h.svc.Get(middleware.CurrentUserID(c), c.Param("did"))
	if err != nil {
		respondError(c, err)
		return
	}
	if draft == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, gin.H{"html": markdown.RenderMarkdownContent(draft.Text)})
}

func (h *Handler) generate(c *gin.Context) {
	var dto GenerateDraftDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ownerID := middleware.CurrentUserID(c)
	projectID := c.Param("id")

	switch {
	case c.Query("stream") == "1":
		h.generateStream(c, ownerID, projectID, &dto)
	case c.Query("queue") == "1":
		task, err := h.svc.Enqueue(c.Request.Context(), ownerID, projectID, &dto)
		if err != nil {
			respondError(c, err)
			return
		}
		response.OK(c, task)
	default:
		res, err := h.svc.Generate(c.Request.Context(), ownerID, projectID, &dto)
		if err != nil {
			respondError(c, err)
			return
		}
		response.OK(c, res)
	}
}

func (h *Handler) generateStream(c *gin.Context, ownerID, projectID string, dto *GenerateDraftDTO) {
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

	res, err := h.svc.GenerateStream(c.Request.Context(), ownerID, projectID, dto, func(token string) {
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
	case errors.Is(err, ErrNotPlanned):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrBadAct), errors.Is(err, ai.ErrNoProvider):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

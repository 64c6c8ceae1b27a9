package character

import (
	"errors"

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
	roster := rg.Group("/projects/:id/characters", authMW)
	roster.GET("", h.list)
	roster.POST("", h.create)
	roster.POST("/generate", h.generate)

	chars := rg.Group("/characters", authMW)
	chars.PUT("/:cid", h.update)
	chars.DELETE("/:cid", h.delete)
	chars.POST("/:cid/autofill", h.autofill)
}

func (h *Handler) list(c *gin.Context) {
	chars, err := h.svc.List(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, chars)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateCharacterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ch, err := h.svc.Create(middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, ch)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateCharacterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ch, err := h.svc.Update(middleware.CurrentUserID(c), c.Param("cid"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	if ch == nil {
		response.NotFoundMsg(c, "character not found")
		return
	}
	response.OK(c, ch)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(middleware.CurrentUserID(c), c.Param("cid")); err != nil {
		respondError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) generate(c *gin.Context) {
	var dto GenerateCharactersDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	res, err := h.svc.GenerateRoster(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) autofill(c *gin.Context) {
	var dto AutofillDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.Autofill(c.Request.Context(), middleware.CurrentUserID(c), c.Param("cid"), &dto)
	if err != nil {
		respondError(c, err)
		return
	}
	if res == nil {
		response.NotFoundMsg(c, "character not found")
		return
	}
	response.OK(c, res)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrProjectNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrBadField), errors.Is(err, ErrEmptyRoster):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

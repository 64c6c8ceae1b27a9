package export

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/middleware"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
	"github.com/neperienx/bookpipeline/internal/pkg/s3store"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/projects/:id/export", authMW)

	g.GET("", h.export)
	g.POST("/s3", h.uploadS3)
}

func (h *Handler) export(c *gin.Context) {
	res, err := h.svc.Export(middleware.CurrentUserID(c), c.Param("id"), c.Query("format"), c.Query("theme"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
	c.Data(http.StatusOK, res.ContentType, res.Payload)
}

func (h *Handler) uploadS3(c *gin.Context) {
	res, err := h.svc.UploadToS3(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
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
	case errors.Is(err, ErrBadFormat),
		errors.Is(err, ErrNothingToExport),
		errors.Is(err, s3store.ErrNotConfigured):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

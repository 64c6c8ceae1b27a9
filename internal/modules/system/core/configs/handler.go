package configs

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/config"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/configs")

	g.GET("", h.getPublic)

	a := g.Group("", authMW)
	a.GET("/all", h.getAll)
	a.PATCH("", h.patch)

	// /options/:key - used by admin panel (e.g. PATCH /options/ai)
	opts := rg.Group("/options", authMW)
	opts.GET("", h.getOptionsAll)
	opts.GET("/:key", h.getOption)
	opts.PATCH("/:key", h.patchOption)
	cfgLegacy := rg.Group("/config", authMW)
	cfgLegacy.GET("/form-schema", h.getFormSchema)
}

// getPublic returns the public-safe subset of the config: enough for a
// login or landing page, nothing an anonymous visitor shouldn't see.
func (h *Handler) getPublic(c *gin.Context) {
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{
		"site":           cfg.Site,
		"url":            cfg.URL,
		"allow_register": cfg.AuthSecurity.AllowRegister,
	})
}

// getAll returns the full config (admin only) with credentials masked.
func (h *Handler) getAll(c *gin.Context) {
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	masked := maskConfigSecrets(*cfg)
	response.OK(c, masked)
}

// patch merges a partial config update.
func (h *Handler) patch(c *gin.Context) {
	var partial map[string]json.RawMessage
	if err := c.ShouldBindJSON(&partial); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	updated, err := h.svc.Patch(partial)
	if err != nil {
		respondPatchError(c, err)
		return
	}
	masked := maskConfigSecrets(*updated)
	response.OK(c, masked)
}

// getOption returns a specific top-level config key (e.g. GET /options/ai).
func (h *Handler) getOption(c *gin.Context) {
	key := normalizeOptionKey(c.Param("key"))
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if section, ok := configSection(*cfg, key); ok {
		response.OK(c, convertMapKeys(section, snakeToCamelKey))
		return
	}
	response.NotFound(c)
}

// patchOption merges an update into a specific top-level config key
// (e.g. PATCH /options/generation). Bodies may use camelCase keys.
func (h *Handler) patchOption(c *gin.Context) {
	key := normalizeOptionKey(c.Param("key"))
	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	normalizedBody, err := normalizeJSONKeys(body, camelToSnakeKey)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	updated, err := h.svc.Patch(map[string]json.RawMessage{key: normalizedBody})
	if err != nil {
		respondPatchError(c, err)
		return
	}

	if section, ok := configSection(*updated, key); ok {
		response.OK(c, convertMapKeys(section, snakeToCamelKey))
		return
	}
	response.OK(c, convertMapKeys(maskConfigSecrets(*updated), snakeToCamelKey))
}

func (h *Handler) getOptionsAll(c *gin.Context) {
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	masked := maskConfigSecrets(*cfg)
	response.OK(c, convertMapKeys(masked, snakeToCamelKey))
}

func (h *Handler) getFormSchema(c *gin.Context) {
	schema, err := loadFormSchemaTemplate()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	schema["defaults"] = convertMapKeys(config.DefaultFullConfig(), snakeToCamelKey)
	attachAIProviderOptions(schema, cfg.AI)
	response.OK(c, schema)
}

func respondPatchError(c *gin.Context, err error) {
	if errors.Is(err, errUnknownProviderAssignment) || errors.Is(err, errDisabledProviderAssignment) {
		response.BadRequest(c, err.Error())
		return
	}
	response.InternalError(c, err)
}

// configSection picks one masked top-level section out of the config.
func configSection(cfg config.FullConfig, key string) (interface{}, bool) {
	masked := maskConfigSecrets(cfg)
	full, err := json.Marshal(masked)
	if err != nil {
		return nil, false
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(full, &sections); err != nil {
		return nil, false
	}
	raw, ok := sections[key]
	if !ok {
		return nil, false
	}
	var section interface{}
	if err := json.Unmarshal(raw, &section); err != nil {
		return nil, false
	}
	return section, true
}

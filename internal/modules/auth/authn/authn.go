// Package authn implements passkey (WebAuthn) registration and login
// through the go-webauthn ceremonies. Challenge session state lives in
// Redis so ceremonies survive worker restarts in cluster mode.
package authn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/neperienx/bookpipeline/internal/config"
	"github.com/neperienx/bookpipeline/internal/middleware"
	"github.com/neperienx/bookpipeline/internal/models"
	pkgredis "github.com/neperienx/bookpipeline/internal/pkg/redis"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
	sessionpkg "github.com/neperienx/bookpipeline/internal/pkg/session"
	"gorm.io/gorm"
)

const (
	challengeTTL      = 5 * time.Minute
	regChallengeKey   = "bp:passkey:reg:"
	loginChallengeKey = "bp:passkey:login:"
)

type configSource interface {
	Get() (*config.FullConfig, error)
}

type Handler struct {
	db     *gorm.DB
	cfgSvc configSource
	rc     *pkgredis.Client
}

func NewHandler(db *gorm.DB, cfgSvc configSource, rc *pkgredis.Client) *Handler {
	return &Handler{db: db, cfgSvc: cfgSvc, rc: rc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/passkey")
	g.POST("/register/options", authMW, h.registerOptions)
	g.POST("/register/verify", authMW, h.registerVerify)
	g.POST("/login/options", h.loginOptions)
	g.POST("/login/verify", h.loginVerify)
	g.GET("/items", authMW, h.listItems)
	g.DELETE("/items/:id", authMW, h.deleteItem)
}

// webAuthn builds a ceremony engine from the runtime URL config. RP id
// is the web URL's hostname; every configured URL counts as an origin.
func (h *Handler) webAuthn() (*webauthn.WebAuthn, error) {
	rpID := "localhost"
	rpName := "Book Pipeline"
	origins := []string{}

	if h.cfgSvc != nil {
		if cfg, err := h.cfgSvc.Get(); err == nil && cfg != nil {
			if cfg.Site.Title != "" {
				rpName = cfg.Site.Title
			}
			for _, raw := range []string{cfg.URL.WebURL, cfg.URL.AdminURL, cfg.URL.ServerURL} {
				raw = strings.TrimSpace(raw)
				if raw == "" {
					continue
				}
				u, err := url.Parse(raw)
				if err != nil || u.Host == "" {
					continue
				}
				origins = append(origins, u.Scheme+"://"+u.Host)
				if rpID == "localhost" {
					rpID = u.Hostname()
				}
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost"}
	}

	return webauthn.New(&webauthn.Config{
		RPDisplayName: rpName,
		RPID:          rpID,
		RPOrigins:     origins,
	})
}

// passkeyUser adapts the owner account to the webauthn.User interface.
type passkeyUser struct {
	user  *models.UserModel
	creds []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte          { return []byte(u.user.ID) }
func (u *passkeyUser) WebAuthnName() string        { return u.user.Username }
func (u *passkeyUser) WebAuthnDisplayName() string {
	if strings.TrimSpace(u.user.Name) != "" {
		return u.user.Name
	}
	return u.user.Username
}
func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func (h *Handler) loadPasskeyUser(userID string) (*passkeyUser, error) {
	var user models.UserModel
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	var items []models.AuthnModel
	if err := h.db.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return &passkeyUser{user: &user, creds: credentialsOf(items)}, nil
}

func credentialsOf(items []models.AuthnModel) []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(items))
	for _, item := range items {
		transports := make([]protocol.AuthenticatorTransport, 0, len(item.Transports))
		for _, t := range item.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		creds = append(creds, webauthn.Credential{
			ID:        item.CredentialID,
			PublicKey: item.CredentialPublicKey,
			Transport: transports,
			Flags: webauthn.CredentialFlags{
				BackupEligible: item.CredentialBackedUp,
				BackupState:    item.CredentialBackedUp,
			},
			Authenticator: webauthn.Authenticator{
				SignCount: item.Counter,
			},
		})
	}
	return creds
}

// challengeEnvelope is what a ceremony parks in Redis between the
// options call and the verify call.
type challengeEnvelope struct {
	Session webauthn.SessionData `json:"session"`
	Name    string               `json:"name,omitempty"`
}

func (h *Handler) saveChallenge(ctx context.Context, key string, env challengeEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return h.rc.Set(ctx, key, string(payload), challengeTTL)
}

func (h *Handler) takeChallenge(ctx context.Context, key string) (*challengeEnvelope, error) {
	raw, err := h.rc.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	_ = h.rc.Del(ctx, key)
	var env challengeEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (h *Handler) registerOptions(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if userID == "" {
		response.Unauthorized(c)
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&body)

	wa, err := h.webAuthn()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	user, err := h.loadPasskeyUser(userID)
	if err != nil {
		response.NotFoundMsg(c, "user not found")
		return
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(user.creds))
	for _, cred := range user.creds {
		exclusions = append(exclusions, cred.Descriptor())
	}

	creation, session, err := wa.BeginRegistration(user,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	if err := h.saveChallenge(c.Request.Context(), regChallengeKey+userID, challengeEnvelope{
		Session: *session,
		Name:    strings.TrimSpace(body.Name),
	}); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, creation.Response)
}

func (h *Handler) registerVerify(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if userID == "" {
		response.Unauthorized(c)
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(c.Request.Body)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	env, err := h.takeChallenge(c.Request.Context(), regChallengeKey+userID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if env == nil {
		response.BadRequest(c, "no pending registration challenge")
		return
	}

	wa, err := h.webAuthn()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	user, err := h.loadPasskeyUser(userID)
	if err != nil {
		response.NotFoundMsg(c, "user not found")
		return
	}

	credential, err := wa.CreateCredential(user, env.Session, parsed)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	name := env.Name
	if name == "" {
		name = "Passkey"
	}
	name = h.ensureUniqueName(name)

	transports := make(models.StringArray, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}
	deviceType := "singleDevice"
	if credential.Flags.BackupEligible {
		deviceType = "multiDevice"
	}

	item := models.AuthnModel{
		Name:                 name,
		CredentialID:         credential.ID,
		CredentialPublicKey:  credential.PublicKey,
		Counter:              credential.Authenticator.SignCount,
		Transports:           transports,
		CredentialDeviceType: deviceType,
		CredentialBackedUp:   credential.Flags.BackupState,
	}
	if err := h.db.Create(&item).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"verified": true, "id": item.ID, "name": item.Name})
}

func (h *Handler) loginOptions(c *gin.Context) {
	wa, err := h.webAuthn()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	assertion, session, err := wa.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if err := h.saveChallenge(c.Request.Context(),
		loginChallengeKey+session.Challenge,
		challengeEnvelope{Session: *session}); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, assertion.Response)
}

func (h *Handler) loginVerify(c *gin.Context) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(c.Request.Body)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	challenge := parsed.Response.CollectedClientData.Challenge
	env, err := h.takeChallenge(c.Request.Context(), loginChallengeKey+challenge)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if env == nil {
		response.BadRequest(c, "no pending login challenge")
		return
	}

	wa, err := h.webAuthn()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	var matched *passkeyUser
	credential, err := wa.ValidateDiscoverableLogin(func(rawID, userHandle []byte) (webauthn.User, error) {
		userID := string(userHandle)
		if userID == "" {
			// Legacy credentials may omit the user handle; a
			// single-owner workspace resolves to the owner.
			var u models.UserModel
			if err := h.db.Order("created_at ASC").First(&u).Error; err != nil {
				return nil, err
			}
			userID = u.ID
		}
		user, err := h.loadPasskeyUser(userID)
		if err != nil {
			return nil, err
		}
		matched = user
		return user, nil
	}, env.Session, parsed)
	if err != nil || matched == nil {
		response.ForbiddenMsg(c, "passkey authentication failed")
		return
	}

	// Persist the updated sign counter for clone detection.
	h.db.Model(&models.AuthnModel{}).
		Where("credential_id = ?", credential.ID).
		Update("counter", credential.Authenticator.SignCount)

	token, _, err := sessionpkg.Issue(h.db, matched.user.ID, c.ClientIP(), c.Request.UserAgent(), sessionpkg.DefaultTTL)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"verified": true, "token": token})
}

func (h *Handler) listItems(c *gin.Context) {
	var items []models.AuthnModel
	if err := h.db.Order("created_at DESC").Find(&items).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	data := make([]gin.H, 0, len(items))
	for _, item := range items {
		data = append(data, gin.H{
			"id":           item.ID,
			"name":         item.Name,
			"credentialId": base64.RawURLEncoding.EncodeToString(item.CredentialID),
			"deviceType":   item.CredentialDeviceType,
			"backedUp":     item.CredentialBackedUp,
			"created":      item.CreatedAt,
		})
	}
	response.OK(c, gin.H{"data": data})
}

func (h *Handler) deleteItem(c *gin.Context) {
	result := h.db.Where("id = ?", c.Param("id")).Delete(&models.AuthnModel{})
	if result.Error != nil {
		response.InternalError(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		response.NotFoundMsg(c, "passkey not found")
		return
	}
	response.NoContent(c)
}

// ensureUniqueName appends a numeric suffix until the passkey name is
// free. Names are unique so the list view stays unambiguous.
func (h *Handler) ensureUniqueName(base string) string {
	name := base
	for i := 2; ; i++ {
		var count int64
		if err := h.db.Model(&models.AuthnModel{}).Where("name = ?", name).Count(&count).Error; err != nil || count == 0 {
			return name
		}
		name = fmt.Sprintf("%s (%d)", base, i)
	}
}

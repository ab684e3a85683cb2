package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/oauth"

	"github.com/gin-gonic/gin"
)

const scopeFieldPrefix = "scope_"

// handleAuthorize validates an authorization request. A browser with a live
// session approves it at once; otherwise the approval view is returned.
func (s *Server) handleAuthorize(c *gin.Context) {
	ctx := c.Request.Context()

	params := oauth.AuthorizationParams{
		ResponseType: c.Query("response_type"),
		Scope:        c.Query("scope"),
		ClientID:     c.Query("client_id"),
		RedirectURI:  c.Query("redirect_uri"),
	}
	if state, ok := c.GetQuery("state"); ok {
		params.State = &state
	}

	view, err := s.processor.ProcessAuthorizationRequest(ctx, params)
	if err != nil {
		writeError(c, err)
		return
	}

	if token, err := c.Cookie(sessionCookie); err == nil {
		if user, ok := s.sessions.Check(ctx, token); ok {
			core.LoggerFromCtx(ctx).Debug("auto-approving for logged in user", "user_id", user.ID)
			redirectURL, err := s.processor.Approve(ctx, *view, user.ID, "true")
			writeApproval(c, redirectURL, err)
			return
		}
	}

	c.JSON(http.StatusOK, view)
}

// handleLogin is the approval form: it logs the user in, remembers the session
// in a cookie and answers the pending request.
func (s *Server) handleLogin(c *gin.Context) {
	ctx := c.Request.Context()

	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, oauth.ErrorBody{Error: oauth.CodeInvalidRequest})
		return
	}
	form := c.Request.PostForm
	name := form.Get("name")

	session, err := s.sessions.Login(ctx, name, form.Get("password"))
	switch {
	case errors.Is(err, oauth.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"name": name, "missing": true})
		return
	case errors.Is(err, oauth.ErrIncorrectCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"name": name, "incorrect": true})
		return
	case err != nil:
		core.LoggerFromCtx(ctx).Error("login failed", "name", name, "error", err)
		c.JSON(http.StatusInternalServerError, oauth.ErrorBody{Error: oauth.CodeServerError})
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, session.Token, maxAge, "/", "", true, true)

	view := core.RequestView{
		RequestID: form.Get("request_id"),
		Scope:     approvedScope(form),
	}
	redirectURL, err := s.processor.Approve(ctx, view, session.User.ID, form.Get("approve"))
	writeApproval(c, redirectURL, err)
}

// approvedScope collects the scope_<name>=on fields of the approval form.
func approvedScope(form map[string][]string) string {
	var scope []string
	for key, values := range form {
		name, ok := strings.CutPrefix(key, scopeFieldPrefix)
		if !ok || name == "" || len(values) == 0 || values[0] != "on" {
			continue
		}
		scope = append(scope, name)
	}
	sort.Strings(scope)
	return strings.Join(scope, " ")
}

// writeApproval redirects to the client for a code or a redirectable error.
func writeApproval(c *gin.Context, redirectURL string, err error) {
	if err == nil {
		c.Redirect(http.StatusMovedPermanently, redirectURL)
		return
	}

	var redirectErr *oauth.RedirectError
	if errors.As(err, &redirectErr) {
		c.Redirect(http.StatusMovedPermanently, redirectErr.URL)
		return
	}
	writeError(c, err)
}

// writeError renders a processor error as JSON. Anything that is not a
// *oauth.JSONError becomes a 500.
func writeError(c *gin.Context, err error) {
	var jsonErr *oauth.JSONError
	if !errors.As(err, &jsonErr) {
		core.LoggerFromCtx(c.Request.Context()).Error("unexpected error", "error", err)
		c.JSON(http.StatusInternalServerError, oauth.ErrorBody{Error: oauth.CodeServerError})
		return
	}

	if jsonErr.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
	}
	c.JSON(jsonErr.Status, jsonErr.Body)
}

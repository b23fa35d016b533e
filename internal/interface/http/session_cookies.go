package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/todoauth/internal/domain/auth"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
	accessCookiePath  = "/"
	refreshCookiePath = "/auth/refresh"
)

var (
	accessCookieMaxAge  = int(auth.AccessTokenTTL.Seconds())
	refreshCookieMaxAge = int(auth.RefreshTokenTTL.Seconds())
)

// sessionTransport owns every cookie the service writes: names, scopes, lifetimes and
// flags. The refresh cookie is scoped to the refresh route so it is never sent anywhere
// else.
type sessionTransport struct {
	secure   bool
	sameSite http.SameSite
}

func newSessionTransport(production bool) sessionTransport {
	if production {
		return sessionTransport{secure: true, sameSite: http.SameSiteStrictMode}
	}
	return sessionTransport{secure: false, sameSite: http.SameSiteLaxMode}
}

func (t sessionTransport) writeSession(c *gin.Context, session auth.Session) {
	t.writeAccess(c, session.AccessToken)
	if session.RefreshToken != "" {
		t.setCookie(c, refreshCookieName, session.RefreshToken, refreshCookieMaxAge, refreshCookiePath)
	}
}

func (t sessionTransport) writeAccess(c *gin.Context, token string) {
	t.setCookie(c, accessCookieName, token, accessCookieMaxAge, accessCookiePath)
}

func (t sessionTransport) readAccess(c *gin.Context) (string, bool) {
	return readCookie(c, accessCookieName)
}

func (t sessionTransport) readRefresh(c *gin.Context) (string, bool) {
	return readCookie(c, refreshCookieName)
}

// clear expires both cookies. Name and path must match what was written or the browser
// keeps the stale one.
func (t sessionTransport) clear(c *gin.Context) {
	t.setCookie(c, accessCookieName, "", -1, accessCookiePath)
	t.setCookie(c, refreshCookieName, "", -1, refreshCookiePath)
}

func (t sessionTransport) setCookie(c *gin.Context, name, value string, maxAge int, path string) {
	c.SetSameSite(t.sameSite)
	c.SetCookie(name, value, maxAge, path, "", t.secure, true)
}

func readCookie(c *gin.Context, name string) (string, bool) {
	value, err := c.Cookie(name)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

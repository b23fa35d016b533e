package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	oauthStateCookieName = "oauth_state"
	oauthStateCookiePath = "/auth/google"
	oauthStateMaxAge     = 300
)

type oauthStateCookie struct {
	State        string `json:"state"`
	CodeVerifier string `json:"verifier"`
}

// The state cookie must survive the cross-site redirect back from the provider, so it is
// always SameSite=Lax; Secure still follows the posture.
func (t sessionTransport) setOAuthState(c *gin.Context, state, codeVerifier string) {
	payload := oauthStateCookie{State: state, CodeVerifier: codeVerifier}
	data, _ := json.Marshal(payload)
	encoded := base64.RawURLEncoding.EncodeToString(data)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookieName, encoded, oauthStateMaxAge, oauthStateCookiePath, "", t.secure, true)
}

func (t sessionTransport) clearOAuthState(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookieName, "", -1, oauthStateCookiePath, "", t.secure, true)
}

func (t sessionTransport) readOAuthState(c *gin.Context) (oauthStateCookie, bool) {
	value, ok := readCookie(c, oauthStateCookieName)
	if !ok {
		return oauthStateCookie{}, false
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return oauthStateCookie{}, false
	}
	var payload oauthStateCookie
	if err := json.Unmarshal(data, &payload); err != nil {
		return oauthStateCookie{}, false
	}
	if payload.State == "" || payload.CodeVerifier == "" {
		return oauthStateCookie{}, false
	}
	return payload, true
}

package http

import (
	"github.com/gin-gonic/gin"

	"github.com/yanqian/todoauth/internal/domain/auth"
)

const principalKey = "auth_principal"

// setPrincipal attaches p to both the gin context and the request context, so domain
// code called with c.Request.Context() sees the same principal.
func setPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(principalKey, p)
	c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
}

func getPrincipal(c *gin.Context) (auth.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := value.(auth.Principal)
	return p, ok
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// SessionCookie carries the opaque session id between requests.
	SessionCookie = "qr_session"
	// SessionKey is where the resolved id is stashed on the gin context.
	SessionKey = "session_id"

	cookieMaxAge = 60 * 60 * 24 * 30
)

type SessionMiddleware struct {
	secure bool
}

func NewSessionMiddleware(secure bool) *SessionMiddleware {
	return &SessionMiddleware{secure: secure}
}

// Resolve reads the session cookie, minting a fresh id when the cookie is
// missing or not a UUID, and makes the id available to the handlers.
func (sm *SessionMiddleware) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.New().String()
			c.SetCookie(SessionCookie, id, cookieMaxAge, "/", "", sm.secure, true)
		}
		c.Set(SessionKey, id)
		c.Next()
	}
}

// SessionID returns the id placed on the context by Resolve.
func SessionID(c *gin.Context) string {
	id, _ := c.Get(SessionKey)
	s, _ := id.(string)
	return s
}

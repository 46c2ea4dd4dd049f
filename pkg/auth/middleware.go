package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/gateway"
)

const (
	contextKeyClient  = "gateway_client"
	contextKeyOwnerID = "owner_id"
)

// Middleware authenticates requests by the bearer token the reading backend
// issued. The token isn't verified here: it's forwarded on every backend call
// and the backend rejects bad ones.
type Middleware struct {
	client *gateway.Client
}

func NewMiddleware(client *gateway.Client) *Middleware {
	return &Middleware{client: client}
}

// Authenticate requires a bearer token whose subject is a user id, and stores
// a gateway client carrying that token in the context.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			return errcodes.Unauthorized("Authentication required")
		}

		ownerID, err := gateway.SubjectFromToken(token)
		if err != nil {
			logger.FromEchoContext(c).Err(err).Warn("unreadable bearer token")
			return errcodes.Unauthorized("Invalid token")
		}

		c.Set(contextKeyClient, m.client.WithCredentials(gateway.StaticToken(token)))
		c.Set(contextKeyOwnerID, ownerID)

		return next(c)
	}
}

// Client returns the caller's gateway client. Must be used after
// Authenticate.
func Client(c echo.Context) (*gateway.Client, error) {
	client, ok := c.Get(contextKeyClient).(*gateway.Client)
	if !ok {
		return nil, errcodes.Unauthorized("Authentication required")
	}
	return client, nil
}

// OwnerID returns the caller's user id. Must be used after Authenticate.
func OwnerID(c echo.Context) (int64, error) {
	id, ok := c.Get(contextKeyOwnerID).(int64)
	if !ok {
		return 0, errcodes.Unauthorized("Authentication required")
	}
	return id, nil
}

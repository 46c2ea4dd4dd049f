package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Credentials supplies the bearer token attached to backend requests. The
// gateway never reads tokens from anywhere else.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// Refresher is implemented by credentials that can obtain a new token. The
// gateway calls it once after a 401 and retries the request.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token, e.g. one forwarded from an incoming
// request or read from config.
type StaticToken string

func (t StaticToken) Token(_ context.Context) (string, error) {
	if t == "" {
		return "", errors.New("empty token")
	}
	return string(t), nil
}

// SubjectFromToken reads the owner id from a JWT's "sub" claim without
// verifying the signature. The backend verifies tokens; the subject is only
// used here to scope local state such as the cleanup journal.
func SubjectFromToken(token string) (int64, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if claims.Subject == "" {
		return 0, errors.New("token has no subject")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "token subject %q is not a user id", claims.Subject)
	}
	return id, nil
}

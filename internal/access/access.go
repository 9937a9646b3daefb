// Package access turns request credentials into a Principal. Each route asks
// for one scheme, and the two schemes never look at each other's header.
package access

import (
	"crypto/subtle"
	"strings"

	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/auth"
	"drivingschool-api/internal/model"
)

type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

type Resolver struct {
	tokens     TokenVerifier
	adminToken string
}

func NewResolver(tokens TokenVerifier, adminToken string) *Resolver {
	return &Resolver{tokens: tokens, adminToken: strings.TrimSpace(adminToken)}
}

// Student resolves a session from the Authorization header. The admin header
// plays no part, so a stray admin secret never masks a valid session. A blank
// header resolves to Anonymous without error.
func (r *Resolver) Student(authorization string) (model.Principal, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return model.Principal{}, nil
	}
	raw, ok := bearer(authorization)
	if !ok {
		return model.Principal{}, apperrors.New(apperrors.ErrAuthentication, "Invalid authorization header")
	}
	c, err := r.tokens.Verify(raw)
	if err != nil {
		return model.Principal{}, err
	}
	return model.Student(c.UserID, c.Username), nil
}

// Admin resolves the admin secret header. Session tokens are ignored.
func (r *Resolver) Admin(supplied string) (model.Principal, error) {
	if r.adminToken == "" {
		return model.Principal{}, apperrors.New(apperrors.ErrMisconfigured, "Server misconfigured: ADMIN_TOKEN not set")
	}
	supplied = strings.TrimSpace(supplied)
	if supplied == "" {
		return model.Principal{}, nil
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(r.adminToken)) != 1 {
		return model.Principal{}, apperrors.New(apperrors.ErrAuthorization, "Invalid admin token")
	}
	return model.Administrator(), nil
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

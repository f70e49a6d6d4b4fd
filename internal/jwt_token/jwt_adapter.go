package jwttoken

import (
	"strings"

	"bayanat/internal/platform/middleware"
	dErrors "bayanat/pkg/domain-errors"
)

// bearerValidator lets the auth middleware check access tokens issued by a JWTService.
type bearerValidator struct {
	service *JWTService
}

// NewJWTServiceAdapter returns the middleware view of service. A "Bearer " prefix left
// on the token is tolerated.
func NewJWTServiceAdapter(service *JWTService) middleware.JWTValidator {
	return bearerValidator{service: service}
}

func (v bearerValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing access token")
	}
	claims, err := v.service.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.UserID <= 0 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return &middleware.JWTClaims{UserID: claims.UserID, JTI: claims.ID}, nil
}

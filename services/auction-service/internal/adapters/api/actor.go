package api

import (
	"context"
	"fmt"

	"github.com/floroz/lotmarket/pkg/auth"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/failure"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/identity"
)

// actorFromContext builds the acting identity from the claims the auth interceptor stored.
// No claims means an anonymous caller.
func actorFromContext(ctx context.Context) (identity.Actor, error) {
	claims, ok := auth.GetUserClaims(ctx)
	if !ok {
		return identity.Anonymous(), nil
	}

	id, err := claims.UserID()
	if err != nil {
		return identity.Actor{}, fmt.Errorf("%w: %v", failure.ErrUnauthenticated, err)
	}
	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return identity.Actor{}, fmt.Errorf("%w: %v", failure.ErrUnauthenticated, err)
	}
	status, err := identity.ParseAccountStatus(claims.AccountStatus)
	if err != nil {
		return identity.Actor{}, fmt.Errorf("%w: %v", failure.ErrUnauthenticated, err)
	}

	return identity.Actor{ID: id, Role: role, AccountStatus: status}, nil
}

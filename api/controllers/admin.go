package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kitsuneprints/storefront-backend/api/middleware"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
)

// adminActor resolves the authenticated operator for audit fields.
func adminActor(r *http.Request) (uuid.UUID, *outbox.ActorRef, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin context missing")
	}
	return principal.AdminID, outbox.AdminActor(principal.AdminID), nil
}

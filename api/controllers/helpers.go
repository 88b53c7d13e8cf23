package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/api/middleware"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
)

// actingMembership reads the membership the upstream attached to the request.
// Operations that gate on rank or council status require one.
func actingMembership(r *http.Request) (uuid.UUID, error) {
	raw := middleware.MembershipIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "acting membership required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid acting membership")
	}
	return id, nil
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid uuid")
	}
	return &id, nil
}

package controllers

import (
	"net/http"

	"github.com/angelmondragon/mandi-backend/api/middleware"
	"github.com/angelmondragon/mandi-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
)

func requestActor(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	if err := actor.Validate(); err != nil {
		return auth.Actor{}, err
	}
	return actor, nil
}

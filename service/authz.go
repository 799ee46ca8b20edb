package service

import (
	"strings"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/model"
	"github.com/google/uuid"
)

// requireAdmin is the single authorization gate for privileged operations.
func requireAdmin(actor model.Principal, op string) error {
	if actor.UserID == "" {
		return apperrors.New(apperrors.KindNotAuthorized, op, "no authenticated principal")
	}
	if !actor.IsAdmin() {
		return apperrors.Newf(apperrors.KindNotAuthorized, op, "user %s is not an admin", actor.UserID)
	}
	return nil
}

func requireUser(actor model.Principal, op string) error {
	if actor.UserID == "" {
		return apperrors.New(apperrors.KindNotAuthorized, op, "no authenticated principal")
	}
	return nil
}

// canSee hides other users' rows from non-admins.
func canSee(actor model.Principal, ownerID string) bool {
	return actor.IsAdmin() || actor.UserID == ownerID
}

// checkID maps malformed ids to NOT_FOUND before they reach the database.
func checkID(op, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.Newf(apperrors.KindNotFound, op, "%q is not a known id", id)
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

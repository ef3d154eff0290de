package handlers

import (
	"net/http"

	"github.com/servilink/escrow-engine/internal/domain"
)

// Requester identifies the authenticated caller. The upstream API gateway
// terminates auth and forwards identity in headers.
type Requester struct {
	UserID string
	Role   domain.Role
}

func requesterFrom(r *http.Request) (Requester, error) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return Requester{}, domain.NewMissingRequiredFieldError("X-User-ID header")
	}

	role := domain.Role(r.Header.Get("X-User-Role"))
	switch role {
	case domain.RoleClient, domain.RoleProvider, domain.RoleAdmin:
	case "":
		role = domain.RoleClient
	default:
		return Requester{}, domain.NewMissingRequiredFieldError("valid X-User-Role header")
	}

	return Requester{UserID: userID, Role: role}, nil
}

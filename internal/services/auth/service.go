package auth

import (
	"context"
	"fmt"
)

// Service turns a bearer token into an Identity.
type Service struct {
	verifier *Verifier
}

func NewService(verifier *Verifier) *Service {
	return &Service{verifier: verifier}
}

func (s *Service) Authenticate(_ context.Context, rawToken string) (Identity, error) {
	if s.verifier == nil {
		return Identity{}, fmt.Errorf("token verifier is nil")
	}
	tok, err := s.verifier.Verify(rawToken)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: tok.SubjectID, Role: tok.Role, Reviewer: tok.Reviewer}, nil
}

func RequireAdmin(identity Identity) error {
	if !identity.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

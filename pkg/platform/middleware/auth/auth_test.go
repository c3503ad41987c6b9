package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"docverify/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return v.claims, v.err
}

type AuthMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.DiscardHandler)
}

func (s *AuthMiddlewareSuite) serve(v JWTValidator, role, header string) (*httptest.ResponseRecorder, requestcontext.AuthPrincipal) {
	var seen requestcontext.AuthPrincipal
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Principal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireAuth(v, s.logger)(RequireRole(role, s.logger)(final))

	req := httptest.NewRequest(http.MethodGet, "/verify/history/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, seen
}

func (s *AuthMiddlewareSuite) TestMissingHeader() {
	w, _ := s.serve(stubValidator{}, RoleAuditor, "")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *AuthMiddlewareSuite) TestInvalidToken() {
	w, _ := s.serve(stubValidator{err: errors.New("bad signature")}, RoleAuditor, "Bearer abc")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *AuthMiddlewareSuite) TestWrongRole() {
	v := stubValidator{claims: &JWTClaims{Subject: "clerk", Roles: []string{RoleIssuer}}}
	w, _ := s.serve(v, RoleAuditor, "Bearer abc")
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *AuthMiddlewareSuite) TestAuthorized() {
	v := stubValidator{claims: &JWTClaims{Subject: "auditor-1", Roles: []string{RoleAuditor}}}
	w, p := s.serve(v, RoleAuditor, "Bearer abc")
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("auditor-1", p.Subject)
}

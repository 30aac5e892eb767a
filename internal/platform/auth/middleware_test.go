package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type verifierStub struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (v *verifierStub) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	v.received = idToken
	if v.err != nil {
		return nil, v.err
	}
	return v.token, nil
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/carts/CRT-1/payment/init", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func errorCode(t *testing.T, payload []byte) string {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error
}

func TestRequireFirebaseAuthAdmitsValidToken(t *testing.T) {
	verifier := &verifierStub{token: &firebaseauth.Token{
		UID: "cust-7",
		Claims: map[string]interface{}{
			"role":  []interface{}{"Admin", "admin", "customer"},
			"email": "shopper@example.com",
		},
	}}
	authn := NewAuthenticator(verifier)

	var seen *Identity
	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("valid-token"))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if verifier.received != "valid-token" {
		t.Fatalf("verifier received %q", verifier.received)
	}
	if seen == nil || seen.UID != "cust-7" {
		t.Fatalf("identity = %+v", seen)
	}
	if seen.Email != "shopper@example.com" {
		t.Fatalf("email = %q", seen.Email)
	}
	// Roles are lower-cased and de-duplicated.
	if len(seen.Roles) != 2 || !seen.HasRole(RoleAdmin) || !seen.HasRole(RoleCustomer) {
		t.Fatalf("roles = %v", seen.Roles)
	}
}

func TestRequireFirebaseAuthRejectsExpiredToken(t *testing.T) {
	authn := NewAuthenticator(&verifierStub{err: ErrTokenExpired})
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for an expired token")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("stale-token"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "token_expired" {
		t.Fatalf("error code = %q", code)
	}
}

func TestRequireFirebaseAuthRejectsMissingHeader(t *testing.T) {
	authn := NewAuthenticator(&verifierStub{})
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "unauthenticated" {
		t.Fatalf("error code = %q", code)
	}
}

func TestRequireFirebaseAuthRejectsInsufficientRole(t *testing.T) {
	verifier := &verifierStub{token: &firebaseauth.Token{
		UID:    "cust-8",
		Claims: map[string]interface{}{"role": "customer"},
	}}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("customer must not pass an admin gate")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("customer-token"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "insufficient_role" {
		t.Fatalf("error code = %q", code)
	}
}

func TestRequireFirebaseAuthAppliesFallbackRole(t *testing.T) {
	verifier := &verifierStub{token: &firebaseauth.Token{
		UID:    "cust-9",
		Claims: map[string]interface{}{},
	}}
	authn := NewAuthenticator(verifier)

	var seen *Identity
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("bare-token"))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if seen == nil || len(seen.Roles) != 1 || seen.Roles[0] != RoleCustomer {
		t.Fatalf("identity = %+v", seen)
	}
}

func TestRequireFirebaseAuthHonoursCustomRoleClaim(t *testing.T) {
	verifier := &verifierStub{token: &firebaseauth.Token{
		UID:    "ops-1",
		Claims: map[string]interface{}{"shopcore_roles": []interface{}{"admin"}},
	}}
	authn := NewAuthenticator(verifier, WithRoleClaim("shopcore_roles"))

	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("ops-token"))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
}

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmarin-v/slotbook/libs/auth"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.Validationf("bad input"), http.StatusBadRequest},
		{model.Conflictf("slot taken"), http.StatusConflict},
		{model.ErrNoOperatorAvailable, http.StatusConflict},
		{&model.NotFoundError{Entity: "appointment", ID: "x"}, http.StatusNotFound},
		{&model.AuthorizationError{Msg: "nope"}, http.StatusForbidden},
		{model.Statef("already completed"), http.StatusUnprocessableEntity},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, c.err)
		if rec.Code != c.want {
			t.Fatalf("%v: expected status %d, got %d", c.err, c.want, rec.Code)
		}
	}
}

func TestWriteError_RetryableConflictSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &model.ConflictError{Msg: "contention", Retryable: true})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestWithAuth(t *testing.T) {
	secret := "test-secret"
	var handled bool
	h := WithAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r.Context())
		if !ok {
			t.Fatalf("expected actor in context")
		}
		if actor.UserID != "u-1" || string(actor.Role) != "operator" {
			t.Fatalf("unexpected actor %+v", actor)
		}
		handled = true
	}))

	token, err := auth.SignHS256(auth.Claims{
		Sub:  "u-1",
		Role: "operator",
		Exp:  time.Now().Add(time.Hour).Unix(),
		Iat:  time.Now().Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/list", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !handled {
		t.Fatalf("handler should run for a valid token")
	}

	// No token.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Wrong secret.
	bad, _ := auth.SignHS256(auth.Claims{Sub: "u-1", Role: "operator"}, "other-secret")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
}

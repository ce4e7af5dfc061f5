package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medex/medex/internal/platform/auth"
)

func request(t *testing.T, h echo.HandlerFunc, method, path, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h(c)
}

func TestHandler_Register(t *testing.T) {
	svc, _ := testService()
	h := NewHandler(svc)

	rec, err := request(t, h.Register, http.MethodPost, "/api/auth/register",
		`{"username":"drsmith","password":"correct-horse"}`)
	if err != nil {
		t.Fatalf("Register handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var u User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if u.Username != "drsmith" {
		t.Errorf("expected username drsmith, got %q", u.Username)
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Error("password hash must not be serialized")
	}
}

func TestHandler_Register_Conflict(t *testing.T) {
	svc, _ := testService()
	h := NewHandler(svc)

	body := `{"username":"drsmith","password":"correct-horse"}`
	if _, err := request(t, h.Register, http.MethodPost, "/api/auth/register", body); err != nil {
		t.Fatalf("first register error: %v", err)
	}

	_, err := request(t, h.Register, http.MethodPost, "/api/auth/register", body)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_Login(t *testing.T) {
	svc, _ := testService()
	h := NewHandler(svc)

	if _, err := svc.Register(context.Background(), Credentials{Username: "drsmith", Password: "correct-horse"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	rec, err := request(t, h.Login, http.MethodPost, "/api/auth/login",
		`{"username":"drsmith","password":"correct-horse"}`)
	if err != nil {
		t.Fatalf("Login handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("expected access token in response")
	}
}

func TestHandler_Login_BadCredentials(t *testing.T) {
	svc, _ := testService()
	h := NewHandler(svc)

	_, err := request(t, h.Login, http.MethodPost, "/api/auth/login",
		`{"username":"ghost","password":"whatever!"}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	svc, _ := testService()
	h := NewHandler(svc)

	u, err := svc.Register(context.Background(), Credentials{Username: "drsmith", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(string(auth.UserIDKey), u.ID.String())

	if err := h.Me(c); err != nil {
		t.Fatalf("Me handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "drsmith") {
		t.Errorf("expected username in response, got %s", rec.Body.String())
	}
}

func TestHandler_Me_Unauthenticated(t *testing.T) {
	svc, _ := testService()
	h := NewHandler(svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Me(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

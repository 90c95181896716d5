package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/enesyuzak/locat-web-tracker/config"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/repositories"
	services "github.com/enesyuzak/locat-web-tracker/internal/services/auth"
)

type stubAuth struct {
	loginErr    error
	refreshErr  error
	forgotToken string
	forgotErr   error
	passwordErr error
	profileErr  error

	changedFor string
	gotReset   models.ChangePasswordRequest
	revoked    string
}

func (s *stubAuth) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &models.AuthResponse{Token: "access", RefreshToken: "refresh", Role: models.RoleAdmin}, nil
}

func (s *stubAuth) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &models.AuthResponse{Token: "access2", RefreshToken: "refresh2"}, nil
}

func (s *stubAuth) Logout(ctx context.Context, refreshToken string) error {
	s.revoked = refreshToken
	return nil
}

func (s *stubAuth) ForgotPassword(ctx context.Context, email string) (string, error) {
	return s.forgotToken, s.forgotErr
}

func (s *stubAuth) ResetPassword(ctx context.Context, req models.ChangePasswordRequest) error {
	s.gotReset = req
	return s.passwordErr
}

func (s *stubAuth) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	s.changedFor = userID
	return s.passwordErr
}

func (s *stubAuth) Profile(ctx context.Context, userID string) (*models.User, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return &models.User{ID: userID, Username: "ayse"}, nil
}

func (s *stubAuth) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	u := &models.User{ID: userID, Username: "ayse"}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	return u, nil
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func asUser(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), config.UserIDKey, id))
}

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"ok", `{"username":"ayse","password":"secret1"}`, nil, http.StatusOK},
		{"missing password", `{"username":"ayse"}`, nil, http.StatusBadRequest},
		{"bad json", `{"username":`, nil, http.StatusBadRequest},
		{"wrong password", `{"username":"ayse","password":"nope12"}`, services.ErrInvalidCredentials, http.StatusUnauthorized},
		{"token failure", `{"username":"ayse","password":"secret1"}`, errors.New("redis down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&stubAuth{loginErr: tt.err}, false, nil)
			rec := httptest.NewRecorder()
			h.LoginHandler(rec, post(tt.body))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRefreshTokenHandler(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"ok", `{"refresh_token":"abc"}`, nil, http.StatusOK},
		{"empty", `{}`, nil, http.StatusUnauthorized},
		{"expired", `{"refresh_token":"abc"}`, services.ErrInvalidRefreshToken, http.StatusUnauthorized},
		{"redis error", `{"refresh_token":"abc"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&stubAuth{refreshErr: tt.err}, false, nil)
			rec := httptest.NewRecorder()
			h.RefreshTokenHandler(rec, post(tt.body))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestLogoutHandlerRevokesToken(t *testing.T) {
	stub := &stubAuth{}
	h := NewAuthHandler(stub, false, nil)

	rec := httptest.NewRecorder()
	h.LogoutHandler(rec, post(`{"refresh_token":"abc"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if stub.revoked != "abc" {
		t.Fatalf("revoked = %q", stub.revoked)
	}

	rec = httptest.NewRecorder()
	h.LogoutHandler(rec, post(""))
	if rec.Code != http.StatusOK {
		t.Fatalf("empty body status = %d", rec.Code)
	}
}

func TestForgotPasswordHandler(t *testing.T) {
	t.Run("token hidden by default", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{forgotToken: "tok"}, false, nil)
		rec := httptest.NewRecorder()
		h.ForgotPasswordHandler(rec, post(`{"email":"a@b.c"}`))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d", rec.Code)
		}
		var body map[string]string
		json.NewDecoder(rec.Body).Decode(&body)
		if _, ok := body["token"]; ok {
			t.Fatal("token must not be returned")
		}
	})

	t.Run("token returned when enabled", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{forgotToken: "tok"}, true, nil)
		rec := httptest.NewRecorder()
		h.ForgotPasswordHandler(rec, post(`{"email":"a@b.c"}`))
		var body map[string]string
		json.NewDecoder(rec.Body).Decode(&body)
		if body["token"] != "tok" {
			t.Fatalf("token = %q", body["token"])
		}
	})

	t.Run("unknown email looks the same", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{}, true, nil)
		rec := httptest.NewRecorder()
		h.ForgotPasswordHandler(rec, post(`{"email":"nobody@b.c"}`))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d", rec.Code)
		}
		var body map[string]string
		json.NewDecoder(rec.Body).Decode(&body)
		if _, ok := body["token"]; ok {
			t.Fatal("no token expected for unknown email")
		}
	})

	t.Run("missing email", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{}, false, nil)
		rec := httptest.NewRecorder()
		h.ForgotPasswordHandler(rec, post(`{}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestResetPasswordHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"short", services.ErrPasswordTooShort, http.StatusBadRequest},
		{"mismatch", services.ErrPasswordMismatch, http.StatusBadRequest},
		{"bad token", services.ErrInvalidResetToken, http.StatusBadRequest},
		{"db", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuth{passwordErr: tt.err}
			h := NewAuthHandler(stub, false, nil)
			rec := httptest.NewRecorder()
			h.ResetPasswordHandler(rec, post(`{"token":"t","new_password":"abcdef","confirm_password":"abcdef"}`))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if stub.gotReset.Token != "t" {
				t.Fatalf("token not passed through: %+v", stub.gotReset)
			}
		})
	}
}

func TestProfileHandlers(t *testing.T) {
	t.Run("get requires user", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{}, false, nil)
		rec := httptest.NewRecorder()
		h.GetProfile(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("get not found", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{profileErr: repositories.ErrUserNotFound}, false, nil)
		rec := httptest.NewRecorder()
		h.GetProfile(rec, asUser(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("update rename", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{}, false, nil)
		rec := httptest.NewRecorder()
		h.UpdateProfile(rec, asUser(post(`{"username":"fatma"}`), "u1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var u models.User
		json.NewDecoder(rec.Body).Decode(&u)
		if u.Username != "fatma" {
			t.Fatalf("username = %q", u.Username)
		}
	})

	conflicts := []struct {
		name string
		err  error
		want int
	}{
		{"empty", services.ErrEmptyUsername, http.StatusBadRequest},
		{"taken", repositories.ErrUsernameTaken, http.StatusConflict},
		{"missing", repositories.ErrUserNotFound, http.StatusNotFound},
	}
	for _, tt := range conflicts {
		t.Run("update "+tt.name, func(t *testing.T) {
			h := NewAuthHandler(&stubAuth{profileErr: tt.err}, false, nil)
			rec := httptest.NewRecorder()
			h.UpdateProfile(rec, asUser(post(`{"username":"x"}`), "u1"))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestChangePasswordUsesContextUser(t *testing.T) {
	stub := &stubAuth{}
	h := NewAuthHandler(stub, false, nil)

	rec := httptest.NewRecorder()
	h.ChangePassword(rec, asUser(post(`{"new_password":"abcdef","confirm_password":"abcdef"}`), "u7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if stub.changedFor != "u7" {
		t.Fatalf("changed for %q", stub.changedFor)
	}
}

package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"bitcoin-gpt-client/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(t *testing.T, handler http.Handler) (*AuthService, *store.CredentialStore) {
	t.Helper()
	creds := newTestCredentials(t)
	backend := newTestBackend(t, httptest.NewServer(handler), creds)
	return NewAuthService(backend, creds, nopLogger{}), creds
}

// failOnRequest is a backend that must never be reached: local
// validation has to reject the input first.
func failOnRequest(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected network call: %s %s", r.Method, r.URL.Path)
	})
}

func TestLoginValidationFailsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"empty email", "", "secret1", ErrInvalidEmail},
		{"missing at sign", "a.b.com", "secret1", ErrInvalidEmail},
		{"missing domain", "a@", "secret1", ErrInvalidEmail},
		{"spaces in email", "a b@c.com", "secret1", ErrInvalidEmail},
		{"short password", "a@b.com", "12345", ErrShortPassword},
		{"empty password", "a@b.com", "", ErrShortPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newAuthFixture(t, failOnRequest(t))
			err := svc.Login(context.Background(), tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StepAuth, svc.Step())
		})
	}
}

func TestRegisterValidationFailsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
		agreed   bool
		wantErr  error
	}{
		{"short name", "Al", "a@b.com", "secret1", true, ErrShortName},
		{"whitespace name", "   A   ", "a@b.com", "secret1", true, ErrShortName},
		{"bad email", "Alice", "not-an-email", "secret1", true, ErrInvalidEmail},
		{"short password", "Alice", "a@b.com", "12345", true, ErrShortPassword},
		{"age not confirmed", "Alice", "a@b.com", "secret1", false, ErrAgeNotConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newAuthFixture(t, failOnRequest(t))
			_, err := svc.Register(context.Background(), tt.userName, tt.email, tt.password, tt.agreed)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StepAuth, svc.Step())
		})
	}
}

func TestLoginSuccessPersistsCredentialAndEmitsEvent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/authentication/login", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body["role"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":      "Login successful",
			"access_token": "tok-123",
			"user":         map[string]interface{}{"id": 7, "name": "Alice", "email": "a@b.com"},
		})
	})

	svc, creds := newAuthFixture(t, handler)

	var gotCred *store.Credential
	svc.OnAuthenticated(func(c store.Credential) { gotCred = &c })

	err := svc.Login(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, StepSuccess, svc.Step())
	require.NotNil(t, gotCred)
	assert.Equal(t, "tok-123", gotCred.Token)

	stored := creds.Current()
	require.NotNil(t, stored)
	assert.Equal(t, "tok-123", stored.Token)
	assert.Equal(t, "Alice", stored.User.Name)
	assert.True(t, svc.IsAuthenticated())
}

func TestLoginFallsBackToTokenField(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "Login successful",
			"token":   "legacy-tok",
			"user":    map[string]interface{}{"id": 1, "name": "A", "email": "a@b.com"},
		})
	})

	svc, creds := newAuthFixture(t, handler)
	require.NoError(t, svc.Login(context.Background(), "a@b.com", "secret1"))
	assert.Equal(t, "legacy-tok", creds.Token())
}

func TestLoginFailureClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		message   string
		wantErr   error
		wantPlain string
	}{
		{"password related", 401, "Invalid password", ErrIncorrectPassword, ""},
		{"email related", 404, "No account for that email", ErrEmailNotFound, ""},
		{"generic", 500, "upstream exploded", nil, "upstream exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"message": tt.message})
			})

			svc, creds := newAuthFixture(t, handler)
			err := svc.Login(context.Background(), "a@b.com", "secret1")
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.Equal(t, tt.wantPlain, err.Error())
			}
			// No transition and nothing persisted on failure.
			assert.Equal(t, StepAuth, svc.Step())
			assert.Nil(t, creds.Current())
		})
	}
}

func TestRegisterThenVerifyReturnsToAuthWithoutLogin(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/authentication/register":
			json.NewEncoder(w).Encode(map[string]string{"message": "OTP sent"})
		case "/api/authentication/verify-otp":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "a@b.com", body["email"])
			assert.Equal(t, "123456", body["otp"])
			json.NewEncoder(w).Encode(map[string]string{"message": "Email verified successfully"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	svc, creds := newAuthFixture(t, handler)

	outcome, err := svc.Register(context.Background(), "Alice", "a@b.com", "secret1", true)
	require.NoError(t, err)
	assert.False(t, outcome.AlreadyRegistered)
	assert.Equal(t, StepOTP, svc.Step())
	assert.Equal(t, "a@b.com", svc.RegisteredEmail())

	require.NoError(t, svc.VerifyOtp(context.Background(), "123456"))

	// Verification is not login.
	assert.Nil(t, creds.Current())
	assert.False(t, svc.IsAuthenticated())

	svc.CompleteVerification()
	assert.Equal(t, StepAuth, svc.Step())
	assert.Empty(t, svc.RegisteredEmail())
}

func TestRegisterResumesUnverifiedRegistration(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"detail": "User already registered but not verified",
		})
	})

	svc, _ := newAuthFixture(t, handler)

	outcome, err := svc.Register(context.Background(), "Alice", "a@b.com", "secret1", true)
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyRegistered)
	assert.Equal(t, StepOTP, svc.Step())
	assert.Equal(t, "a@b.com", svc.RegisteredEmail())
}

func TestRegisterOtherFailureLeavesState(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"detail": "User already exists and is verified"})
	})

	svc, _ := newAuthFixture(t, handler)

	_, err := svc.Register(context.Background(), "Alice", "a@b.com", "secret1", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists and is verified")
	assert.Equal(t, StepAuth, svc.Step())
}

func TestVerifyOtpRequiresCode(t *testing.T) {
	svc, _ := newAuthFixture(t, failOnRequest(t))
	assert.ErrorIs(t, svc.VerifyOtp(context.Background(), ""), ErrEmptyOtp)
	// Non-digits are stripped before the empty check.
	assert.ErrorIs(t, svc.VerifyOtp(context.Background(), "abc"), ErrEmptyOtp)
}

func TestForgotFlowAdvancesAndResets(t *testing.T) {
	var resetCalls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/authentication/forgot-password":
			json.NewEncoder(w).Encode(map[string]string{"message": "OTP sent"})
		case "/api/authentication/reset-password":
			atomic.AddInt32(&resetCalls, 1)
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "a@b.com", body["email"])
			assert.Equal(t, "654321", body["otp"])
			assert.Equal(t, "newsecret", body["new_password"])
			json.NewEncoder(w).Encode(map[string]string{"message": "Password reset successful"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	svc, _ := newAuthFixture(t, handler)

	svc.BeginForgotPassword()
	assert.Equal(t, StepForgot, svc.Step())

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@b.com"))
	assert.Equal(t, StepReset, svc.Step())
	assert.Equal(t, "a@b.com", svc.ForgotEmail())

	// A 5-digit OTP is a local failure: no network call happens.
	err := svc.ResetPassword(context.Background(), "a@b.com", "12345", "newsecret")
	assert.ErrorIs(t, err, ErrInvalidOtp)
	assert.Equal(t, int32(0), atomic.LoadInt32(&resetCalls))
	assert.Equal(t, StepReset, svc.Step())

	require.NoError(t, svc.ResetPassword(context.Background(), "a@b.com", "654321", "newsecret"))
	assert.Equal(t, StepAuth, svc.Step())
	assert.Empty(t, svc.ForgotEmail())
	assert.Equal(t, int32(1), atomic.LoadInt32(&resetCalls))
}

func TestForgotPasswordFailureKeepsEmailSubStep(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Email not registered"})
	})

	svc, _ := newAuthFixture(t, handler)
	svc.BeginForgotPassword()

	err := svc.ForgotPassword(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.Equal(t, StepForgot, svc.Step())
}

func TestSecondLoginWhilePendingIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		close(entered)
		<-release
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":      "Login successful",
			"access_token": "tok",
			"user":         map[string]interface{}{"id": 1},
		})
	})

	svc, _ := newAuthFixture(t, handler)

	done := make(chan error, 1)
	go func() {
		done <- svc.Login(context.Background(), "a@b.com", "secret1")
	}()

	<-entered
	// First login is suspended inside the backend call; a second
	// submission must be rejected, not queued.
	err := svc.Login(context.Background(), "a@b.com", "secret1")
	assert.ErrorIs(t, err, ErrActionInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLogoutClearsEverything(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":      "Login successful",
			"access_token": "tok",
			"user":         map[string]interface{}{"id": 1, "name": "Alice"},
		})
	})

	svc, creds := newAuthFixture(t, handler)
	require.NoError(t, svc.Login(context.Background(), "a@b.com", "secret1"))
	require.True(t, svc.IsAuthenticated())

	var loggedOut bool
	svc.OnLoggedOut(func() { loggedOut = true })

	svc.Logout()

	assert.False(t, svc.IsAuthenticated())
	assert.Nil(t, creds.Current())
	assert.Equal(t, StepAuth, svc.Step())
	assert.True(t, loggedOut)
}

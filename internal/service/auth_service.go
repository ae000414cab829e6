package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bitcoin-gpt-client/internal/api"
	"bitcoin-gpt-client/internal/dto"
	"bitcoin-gpt-client/internal/pkg/authtoken"
	"bitcoin-gpt-client/internal/pkg/logger"
	"bitcoin-gpt-client/internal/store"

	"github.com/go-playground/validator/v10"
)

// AuthStep is the single active step of the authentication flow.
type AuthStep string

const (
	StepAuth    AuthStep = "auth"
	StepOTP     AuthStep = "otp"
	StepForgot  AuthStep = "forgot" // forgot-password, collecting the email
	StepReset   AuthStep = "reset"  // forgot-password, collecting OTP + new password
	StepSuccess AuthStep = "success"
)

// Validation failures. These are raised before any network call.
var (
	ErrInvalidEmail    = errors.New("enter a valid email")
	ErrShortPassword   = errors.New("password must be at least 6 characters")
	ErrShortName       = errors.New("name must be at least 3 characters")
	ErrAgeNotConfirmed = errors.New("you must confirm that you are 18 or older")
	ErrEmptyOtp        = errors.New("enter the OTP")
	ErrInvalidOtp      = errors.New("enter a valid 6-digit OTP")
)

// Classified login failures.
var (
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrEmailNotFound     = errors.New("invalid email not found")
)

// ErrActionInFlight rejects a second submission of the same action
// while one is pending. Submissions are never queued.
var ErrActionInFlight = errors.New("request already in flight")

const (
	loginSuccessMessage     = "Login successful"
	verifySuccessMessage    = "Email verified successfully"
	alreadyRegisteredDetail = "already registered but not verified"
)

// RegisterOutcome distinguishes a fresh registration from the resumable
// "registered but unverified" case, which also lands on the OTP step.
type RegisterOutcome struct {
	AlreadyRegistered bool
}

// AuthService drives the steps {auth, otp, forgot, reset, success}.
// All transitions are explicit; a failed operation leaves the step
// untouched except the documented resume-OTP case.
type AuthService struct {
	backend  *api.Client
	creds    *store.CredentialStore
	log      logger.ILogger
	validate *validator.Validate

	mu              sync.Mutex
	step            AuthStep
	registeredEmail string
	forgotEmail     string
	inFlight        map[string]bool

	onAuthenticated []func(store.Credential)
	onLoggedOut     []func()
}

func NewAuthService(backend *api.Client, creds *store.CredentialStore, log logger.ILogger) *AuthService {
	s := &AuthService{
		backend:  backend,
		creds:    creds,
		log:      log,
		validate: validator.New(),
		step:     StepAuth,
		inFlight: make(map[string]bool),
	}

	// A stored token past its expiry is dead weight; discard it so the
	// caller lands on the unauthenticated entry point.
	if cred := creds.Current(); cred != nil && authtoken.Expired(cred.Token, time.Now()) {
		s.log.Info("auth", "stored token expired, clearing credential", nil)
		if err := creds.Clear(); err != nil {
			s.log.Error("auth", "failed to clear expired credential", map[string]interface{}{"error": err.Error()})
		}
	}

	return s
}

// OnAuthenticated registers a subscriber for the terminal login event.
// Redirect timing is the caller's policy, not the state machine's.
func (s *AuthService) OnAuthenticated(fn func(store.Credential)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAuthenticated = append(s.onAuthenticated, fn)
}

// OnLoggedOut registers a subscriber invoked after logout has cleared
// the credential store. Session-scoped state is reset here.
func (s *AuthService) OnLoggedOut(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoggedOut = append(s.onLoggedOut, fn)
}

func (s *AuthService) Step() AuthStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *AuthService) RegisteredEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registeredEmail
}

func (s *AuthService) ForgotEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forgotEmail
}

// IsAuthenticated reports whether a credential is currently held.
func (s *AuthService) IsAuthenticated() bool {
	return s.creds.Current() != nil
}

func (s *AuthService) CurrentUser() (dto.UserDTO, bool) {
	cred := s.creds.Current()
	if cred == nil {
		return dto.UserDTO{}, false
	}
	return cred.User, true
}

// begin marks an action in flight. The flag is set under the lock
// before any suspension so concurrent submissions of the same action
// are rejected deterministically, never queued.
func (s *AuthService) begin(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[action] {
		return ErrActionInFlight
	}
	s.inFlight[action] = true
	return nil
}

func (s *AuthService) end(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, action)
}

// Login validates locally, submits, and on success persists the
// credential and transitions to the terminal success step. Failures
// are classified (password / email / generic) and leave state alone.
func (s *AuthService) Login(ctx context.Context, email, password string) error {
	req := &dto.LoginRequest{Email: email, Password: password, Role: "user"}
	if err := s.validate.Struct(req); err != nil {
		return loginValidationError(err)
	}

	if err := s.begin("login"); err != nil {
		return err
	}
	defer s.end("login")

	res, err := s.backend.Login(ctx, req)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			return classifyLoginFailure(apiErr.Text())
		}
		s.log.Error("auth", "login transport failure", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("server error during login: %w", err)
	}

	if res.Message != loginSuccessMessage || res.BearerToken() == "" {
		return classifyLoginFailure(res.Message)
	}

	cred := store.Credential{Token: res.BearerToken(), User: res.User}
	if err := s.creds.Save(&cred); err != nil {
		s.log.Error("auth", "failed to persist credential", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("store credential: %w", err)
	}

	s.mu.Lock()
	s.step = StepSuccess
	subscribers := append([]func(store.Credential){}, s.onAuthenticated...)
	s.mu.Unlock()

	s.log.Info("auth", "login successful", map[string]interface{}{"email": email})
	for _, fn := range subscribers {
		fn(cred)
	}
	return nil
}

// Register validates locally and submits. Success moves to the OTP
// step. The distinguished "already registered but not verified" server
// outcome also resumes at the OTP step instead of failing.
func (s *AuthService) Register(ctx context.Context, name, email, password string, ageConfirmed bool) (*RegisterOutcome, error) {
	if len(strings.TrimSpace(name)) < 3 {
		return nil, ErrShortName
	}
	req := &dto.RegisterRequest{Name: name, Email: email, Password: password, Role: "user"}
	if err := s.validate.Struct(req); err != nil {
		return nil, registerValidationError(err)
	}
	if !ageConfirmed {
		return nil, ErrAgeNotConfirmed
	}

	if err := s.begin("register"); err != nil {
		return nil, err
	}
	defer s.end("register")

	_, err := s.backend.Register(ctx, req)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			if strings.Contains(apiErr.Detail, alreadyRegisteredDetail) {
				s.enterOtpStep(email)
				s.log.Info("auth", "resuming unverified registration", map[string]interface{}{"email": email})
				return &RegisterOutcome{AlreadyRegistered: true}, nil
			}
			if apiErr.Text() != "" {
				return nil, errors.New(apiErr.Text())
			}
			return nil, errors.New("registration failed")
		}
		s.log.Error("auth", "register transport failure", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("server error during registration: %w", err)
	}

	s.enterOtpStep(email)
	s.log.Info("auth", "registration accepted, awaiting OTP", map[string]interface{}{"email": email})
	return &RegisterOutcome{}, nil
}

func (s *AuthService) enterOtpStep(email string) {
	s.mu.Lock()
	s.step = StepOTP
	s.registeredEmail = email
	s.mu.Unlock()
}

// VerifyOtp confirms the registration OTP. Success does NOT
// authenticate the user: verification and login are separate acts, and
// the caller advances the machine with CompleteVerification.
func (s *AuthService) VerifyOtp(ctx context.Context, code string) error {
	code = digitsOnly(code)
	if code == "" {
		return ErrEmptyOtp
	}

	s.mu.Lock()
	email := s.registeredEmail
	s.mu.Unlock()

	if err := s.begin("verify-otp"); err != nil {
		return err
	}
	defer s.end("verify-otp")

	res, err := s.backend.VerifyOtp(ctx, &dto.VerifyOtpRequest{Email: email, Otp: code})
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Text() != "" {
			return errors.New(apiErr.Text())
		}
		return fmt.Errorf("server error during OTP verification: %w", err)
	}
	if res.Message != verifySuccessMessage {
		if res.Message != "" {
			return errors.New(res.Message)
		}
		return errors.New("OTP verification failed")
	}

	s.log.Info("auth", "email verified", map[string]interface{}{"email": email})
	return nil
}

// CompleteVerification returns the machine to the auth step after a
// successful OTP verification, discarding the transient email.
func (s *AuthService) CompleteVerification() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepAuth
	s.registeredEmail = ""
}

// ResendOtp re-triggers OTP issuance for the registered email. No step
// transition; failure is reported and otherwise harmless.
func (s *AuthService) ResendOtp(ctx context.Context) error {
	s.mu.Lock()
	email := s.registeredEmail
	s.mu.Unlock()
	if email == "" {
		return errors.New("no registration in progress")
	}

	if err := s.begin("resend-otp"); err != nil {
		return err
	}
	defer s.end("resend-otp")

	res, err := s.backend.ResendOtp(ctx, &dto.ResendOtpRequest{Email: email})
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Text() != "" {
			return errors.New(apiErr.Text())
		}
		return fmt.Errorf("server error during resend OTP: %w", err)
	}
	if !res.Success {
		if res.Message != "" {
			return errors.New(res.Message)
		}
		return errors.New("failed to resend OTP")
	}
	return nil
}

// BeginForgotPassword enters the forgot-password flow at its email
// sub-step. Pure transition, no network.
func (s *AuthService) BeginForgotPassword() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepForgot
	s.forgotEmail = ""
}

// ForgotPassword requests a reset OTP. Success advances to the reset
// sub-step, keeping the email for the reset submission.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	req := &dto.ForgotPasswordRequest{Email: email}
	if err := s.validate.Struct(req); err != nil {
		return ErrInvalidEmail
	}

	if err := s.begin("forgot-password"); err != nil {
		return err
	}
	defer s.end("forgot-password")

	if _, err := s.backend.ForgotPassword(ctx, req); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Text() != "" {
			return errors.New(apiErr.Text())
		}
		return fmt.Errorf("server error during forgot password: %w", err)
	}

	s.mu.Lock()
	s.step = StepReset
	s.forgotEmail = email
	s.mu.Unlock()

	s.log.Info("auth", "reset OTP requested", map[string]interface{}{"email": email})
	return nil
}

// ResetPassword submits the reset OTP and new password. Success
// returns to the auth step and clears the forgot-flow state.
func (s *AuthService) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	otp = digitsOnly(otp)
	if len(otp) != 6 {
		return ErrInvalidOtp
	}
	if len(newPassword) < 6 {
		return ErrShortPassword
	}
	req := &dto.ResetPasswordRequest{Email: email, Otp: otp, NewPassword: newPassword}
	if err := s.validate.Struct(req); err != nil {
		return ErrInvalidEmail
	}

	if err := s.begin("reset-password"); err != nil {
		return err
	}
	defer s.end("reset-password")

	if _, err := s.backend.ResetPassword(ctx, req); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Text() != "" {
			return errors.New(apiErr.Text())
		}
		return fmt.Errorf("server error during password reset: %w", err)
	}

	s.mu.Lock()
	s.step = StepAuth
	s.forgotEmail = ""
	s.mu.Unlock()

	s.log.Info("auth", "password reset", map[string]interface{}{"email": email})
	return nil
}

// Back returns to the auth step from anywhere, discarding transient
// sub-state.
func (s *AuthService) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepAuth
	s.registeredEmail = ""
	s.forgotEmail = ""
}

// Logout synchronously clears the credential store and all
// session-scoped state, then notifies subscribers so the caller can
// navigate to the unauthenticated entry point.
func (s *AuthService) Logout() {
	if err := s.creds.Clear(); err != nil {
		s.log.Error("auth", "failed to clear credential store", map[string]interface{}{"error": err.Error()})
	}

	s.mu.Lock()
	s.step = StepAuth
	s.registeredEmail = ""
	s.forgotEmail = ""
	subscribers := append([]func(){}, s.onLoggedOut...)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn()
	}
	s.log.Info("auth", "logged out", nil)
}

// classifyLoginFailure inspects the server reason for password- or
// email-related wording, mirroring the messages users have learned.
func classifyLoginFailure(serverMsg string) error {
	msg := strings.ToLower(serverMsg)
	switch {
	case strings.Contains(msg, "password"):
		return ErrIncorrectPassword
	case strings.Contains(msg, "email"):
		return ErrEmailNotFound
	case serverMsg != "":
		return errors.New(serverMsg)
	default:
		return errors.New("login failed")
	}
}

func loginValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Field() == "Password" {
				return ErrShortPassword
			}
		}
	}
	return ErrInvalidEmail
}

func registerValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			switch fe.Field() {
			case "Name":
				return ErrShortName
			case "Password":
				return ErrShortPassword
			}
		}
	}
	return ErrInvalidEmail
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

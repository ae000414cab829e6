package dto

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	Message     string  `json:"message"`
	AccessToken string  `json:"access_token"`
	Token       string  `json:"token"`
	User        UserDTO `json:"user"`
}

// BearerToken returns the usable token; the backend has shipped it
// under both access_token and token across versions.
func (r *LoginResponse) BearerToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

type UserDTO struct {
	Id    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

type VerifyOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
	Otp   string `json:"otp" validate:"required"`
}

type VerifyOtpResponse struct {
	Message string `json:"message"`
}

type ResendOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResendOtpResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ForgotPasswordResponse struct {
	Message string `json:"message"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Otp         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type ResetPasswordResponse struct {
	Message string `json:"message"`
}

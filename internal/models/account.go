package models

// Credentials — тело запросов /login и /register.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePassword — тело /change-password.
type ChangePassword struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ForgotPassword — тело /forgot-password.
type ForgotPassword struct {
	Email string `json:"email"`
}

// ResetPassword — тело /change-forgot-password (код из письма + новый пароль).
type ResetPassword struct {
	Email              string `json:"email"`
	VerificationCode   string `json:"verificationCode"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// Status — типовой ответ мутаций API: {"status": "success"|"error"}.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK сообщает, что сервер подтвердил операцию.
func (s Status) OK() bool { return s.Status == "success" }

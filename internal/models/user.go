package models

// User is the authenticated profile returned at login.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Name            string `json:"name" validate:"required,notblank,max=50"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=3"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

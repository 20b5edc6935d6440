// Package accounts wraps the user endpoints: the current user, registration,
// profile updates, email verification and the password change and reset flows.
package accounts

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-opportuci/apiclient"
)

// UserType is the kind of account
type UserType string

const (
	UserTypeStudent      UserType = "student"
	UserTypeOrganization UserType = "organization"
	UserTypeAdmin        UserType = "admin"
)

const (
	endpointMe                   = "/auth/users/me/"
	endpointResetPassword        = "/auth/users/reset_password/"
	endpointResetPasswordConfirm = "/auth/users/reset_password_confirm/"
	endpointUsers                = "/accounts/users/"
	endpointPasswordChange       = "/accounts/auth/password/change/"
	endpointEmailVerify          = "/accounts/auth/email/verify/"

	// DefaultCountry is filled in when a registration leaves Country empty.
	DefaultCountry = "Côte d'Ivoire"
)

type User struct {
	ID               int       `json:"id"`                // Backend primary key
	Email            string    `json:"email"`             // Login identifier, read-only after registration
	Username         string    `json:"username"`          // Display handle
	FirstName        string    `json:"first_name"`        // Given name
	LastName         string    `json:"last_name"`         // Family name
	UserType         UserType  `json:"user_type"`         // student, organization or admin
	PhoneNumber      string    `json:"phone_number"`      // Contact number
	Bio              string    `json:"bio"`               // Free text profile
	City             string    `json:"city"`              // City of residence
	Country          string    `json:"country"`           // Country of residence
	EducationLevel   string    `json:"education_level"`   // Highest education level
	Institution      string    `json:"institution"`       // School or university
	OrganizationName string    `json:"organization_name"` // Set for organization accounts
	IsVerified       bool      `json:"is_verified"`       // Verified by an administrator
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FullName joins the first and last name, falling back to the username.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Username
	}
}

// Registration is the sign-up form.
type Registration struct {
	Email           string   `json:"email" validate:"required,email"`
	Username        string   `json:"username" validate:"required,min=3"`
	Password        string   `json:"password" validate:"required,min=8"`
	ConfirmPassword string   `json:"confirm_password" validate:"required,eqfield=Password"`
	FirstName       string   `json:"first_name,omitempty"`
	LastName        string   `json:"last_name,omitempty"`
	UserType        UserType `json:"user_type,omitempty" validate:"omitempty,oneof=student organization admin"`
	PhoneNumber     string   `json:"phone_number,omitempty"`
	City            string   `json:"city,omitempty"`
	Country         string   `json:"country,omitempty"`
}

// UserUpdate is a partial profile update. Nil fields are left unchanged.
// Changing the password requires CurrentPassword.
type UserUpdate struct {
	FirstName        *string `json:"first_name,omitempty"`
	LastName         *string `json:"last_name,omitempty"`
	PhoneNumber      *string `json:"phone_number,omitempty"`
	Bio              *string `json:"bio,omitempty"`
	City             *string `json:"city,omitempty"`
	Country          *string `json:"country,omitempty"`
	EducationLevel   *string `json:"education_level,omitempty"`
	Institution      *string `json:"institution,omitempty"`
	OrganizationName *string `json:"organization_name,omitempty"`
	CurrentPassword  string  `json:"current_password,omitempty" validate:"required_with=NewPassword"`
	NewPassword      string  `json:"new_password,omitempty"`
}

// PasswordChange replaces the logged-in user's password.
type PasswordChange struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password1" validate:"required"`
	ConfirmPassword string `json:"new_password2" validate:"required,eqfield=NewPassword"`
}

// Service calls the account endpoints through an authenticated client.
type Service struct {
	client *apiclient.Client
}

func New(client *apiclient.Client) *Service {
	return &Service{client: client}
}

// Me returns the logged-in user.
func (s *Service) Me(ctx context.Context) (*User, error) {
	resp, err := s.client.Get(ctx, endpointMe, nil)
	if err != nil {
		return nil, err
	}
	return decodeUser(resp)
}

// Register creates an account. The form is checked locally first: required
// fields, email format, matching passwords and password strength.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	if err := apiclient.Validate(r); err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(r.Password); err != nil {
		return nil, &apiclient.FieldValidationError{Fields: map[string][]string{"password": {err.Error()}}}
	}
	if r.UserType == "" {
		r.UserType = UserTypeStudent
	}
	if r.Country == "" {
		r.Country = DefaultCountry
	}

	resp, err := s.client.Post(ctx, endpointUsers, r)
	if err != nil {
		return nil, err
	}
	return decodeUser(resp)
}

// Update applies a partial update to user id.
func (s *Service) Update(ctx context.Context, id int, u UserUpdate) (*User, error) {
	if err := apiclient.Validate(u); err != nil {
		return nil, err
	}
	if u.NewPassword != "" {
		if err := ValidatePasswordStrength(u.NewPassword); err != nil {
			return nil, &apiclient.FieldValidationError{Fields: map[string][]string{"new_password": {err.Error()}}}
		}
	}

	resp, err := s.client.Patch(ctx, fmt.Sprintf("%s%d/", endpointUsers, id), u)
	if err != nil {
		return nil, err
	}
	return decodeUser(resp)
}

// UpdateProfile updates the logged-in user.
func (s *Service) UpdateProfile(ctx context.Context, u UserUpdate) (*User, error) {
	me, err := s.Me(ctx)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, me.ID, u)
}

// ResetPassword asks the backend to email a reset link. The backend answers
// the same way whether or not the address is registered.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	req := struct {
		Email string `json:"email" validate:"required,email"`
	}{Email: email}
	if err := apiclient.Validate(req); err != nil {
		return err
	}

	_, err := s.client.Post(ctx, endpointResetPassword, req)
	return err
}

// ResetPasswordConfirm sets a new password using the uid and token from the reset link.
func (s *Service) ResetPasswordConfirm(ctx context.Context, uid, token, newPassword string) error {
	req := struct {
		UID         string `json:"uid" validate:"required"`
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"new_password" validate:"required"`
	}{UID: uid, Token: token, NewPassword: newPassword}
	if err := apiclient.Validate(req); err != nil {
		return err
	}
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return &apiclient.FieldValidationError{Fields: map[string][]string{"new_password": {err.Error()}}}
	}

	resp, err := s.client.Post(ctx, endpointResetPasswordConfirm, req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("[accounts ResetPasswordConfirm] unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ChangePassword sets a new password for the logged-in user. The session
// stays valid: issued tokens are not revoked by a password change.
func (s *Service) ChangePassword(ctx context.Context, pc PasswordChange) error {
	if err := apiclient.Validate(pc); err != nil {
		return err
	}
	if err := ValidatePasswordStrength(pc.NewPassword); err != nil {
		return &apiclient.FieldValidationError{Fields: map[string][]string{"new_password1": {err.Error()}}}
	}

	_, err := s.client.Post(ctx, endpointPasswordChange, pc)
	return err
}

// VerifyEmail confirms an email address with the key from the confirmation
// email. No login is needed.
func (s *Service) VerifyEmail(ctx context.Context, key string) error {
	req := struct {
		Key string `json:"key" validate:"required"`
	}{Key: key}
	if err := apiclient.Validate(req); err != nil {
		return err
	}

	_, err := s.client.Post(ctx, endpointEmailVerify, req)
	return err
}

func decodeUser(resp *apiclient.Response) (*User, error) {
	var u User
	if err := resp.Decode(&u); err != nil {
		return nil, fmt.Errorf("[accounts decodeUser] %w", err)
	}
	return &u, nil
}

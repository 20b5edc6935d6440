package accounts

import (
	"fmt"
	"unicode"
)

// Strength is a 0-4 password score as shown by the sign-up form's meter.
type Strength int

const (
	StrengthTooShort Strength = iota
	StrengthVeryWeak
	StrengthWeak
	StrengthMedium
	StrengthStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthTooShort:
		return "Trop court"
	case StrengthVeryWeak:
		return "Très faible"
	case StrengthWeak:
		return "Faible"
	case StrengthMedium:
		return "Moyen"
	default:
		return "Fort"
	}
}

// PasswordStrength scores a password: too short under 8 characters,
// otherwise one point per character class present (upper, lower, digit,
// symbol), with at least one point.
func PasswordStrength(password string) Strength {
	if len([]rune(password)) < 8 {
		return StrengthTooShort
	}

	hasUpper, hasLower, hasNumber, hasSymbol := classes(password)
	score := 0
	for _, ok := range []bool{hasUpper, hasLower, hasNumber, hasSymbol} {
		if ok {
			score++
		}
	}
	return Strength(max(score, int(StrengthVeryWeak)))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len([]rune(password)) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	hasUpper, hasLower, hasNumber, _ := classes(password)
	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}

func classes(password string) (hasUpper, hasLower, hasNumber, hasSymbol bool) {
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSymbol = true
		}
	}
	return
}

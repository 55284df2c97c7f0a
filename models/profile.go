package models

import (
	"strings"
	"unicode/utf8"
)

// Column widths of user_profiles. Passwords are bounded by bcrypt's input
// limit, in bytes.
const (
	MaxUsernameLength = 50
	MaxEmailLength    = 254
	MaxNameLength     = 150
	MaxPasswordBytes  = 72
)

// Profile is the public view of a user. It is what the cache holds and what
// the API returns; credentials never appear here.
type Profile struct {
	Username  string `json:"username" db:"username"`
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}

// UpdateProfileInput replaces every mutable field of a profile.
type UpdateProfileInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (in UpdateProfileInput) Validate() error {
	return checkFields(
		field{name: "username", value: in.Username, maxRunes: MaxUsernameLength},
		field{name: "email", value: in.Email, maxRunes: MaxEmailLength},
		field{name: "first_name", value: in.FirstName, maxRunes: MaxNameLength},
		field{name: "last_name", value: in.LastName, maxRunes: MaxNameLength},
	)
}

func (in UpdateProfileInput) Profile() Profile {
	return Profile{
		Username:  strings.TrimSpace(in.Username),
		Email:     strings.TrimSpace(in.Email),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}
}

type CreateProfileInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

func (in CreateProfileInput) Validate() error {
	return checkFields(
		field{name: "username", value: in.Username, maxRunes: MaxUsernameLength},
		field{name: "email", value: in.Email, maxRunes: MaxEmailLength},
		field{name: "first_name", value: in.FirstName, maxRunes: MaxNameLength},
		field{name: "last_name", value: in.LastName, maxRunes: MaxNameLength},
		field{name: "password", value: in.Password, maxBytes: MaxPasswordBytes},
	)
}

// Profile drops the password.
func (in CreateProfileInput) Profile() Profile {
	return UpdateProfileInput{
		Username:  in.Username,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}.Profile()
}

// field limits of 0 are unchecked. maxRunes applies to the trimmed value,
// maxBytes to the raw one.
type field struct {
	name     string
	value    string
	maxRunes int
	maxBytes int
}

func checkFields(fields ...field) error {
	var missing, tooLong []string
	for _, f := range fields {
		value := strings.TrimSpace(f.value)
		switch {
		case value == "":
			missing = append(missing, f.name)
		case f.maxRunes > 0 && utf8.RuneCountInString(value) > f.maxRunes,
			f.maxBytes > 0 && len(f.value) > f.maxBytes:
			tooLong = append(tooLong, f.name)
		}
	}
	if len(missing) > 0 || len(tooLong) > 0 {
		return &ValidationError{Fields: missing, TooLong: tooLong}
	}
	return nil
}

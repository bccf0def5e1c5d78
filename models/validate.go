package models

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validation messages shown to the viewer
const (
	MsgClanRequired    = "Clan name and description are required"
	MsgClanNameFormat  = "Clan name must be lowercase letters, numbers, and underscores only"
	MsgClanNameLength  = "Clan name must be between 3 and 50 characters"
	MsgClanDescription = "Description must be at most 500 characters"
	MsgClanDisplayName = "Display name must be at most 100 characters"
	MsgPostRequired    = "All fields are required"
	MsgCommentEmpty    = "Comment cannot be empty"
	MsgReplyEmpty      = "Reply cannot be empty"
)

var clanNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("clanname", validateClanName)
}

// validateClanName checks the routing-safe clan name alphabet
func validateClanName(fl validator.FieldLevel) bool {
	return clanNamePattern.MatchString(fl.Field().String())
}

// ValidationError is a client-side validation failure; no request should be sent
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PrepareNewClan trims the form fields, defaults the display name and validates
// the result. The name is validated as typed, not lowercased.
func PrepareNewClan(name, displayName, description string) (NewClan, error) {
	clan := NewClan{
		Name:        strings.TrimSpace(name),
		DisplayName: strings.TrimSpace(displayName),
		Description: strings.TrimSpace(description),
	}
	if clan.DisplayName == "" {
		clan.DisplayName = clan.Name
	}

	err := validate.Struct(clan)
	if err == nil {
		return clan, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return clan, err
	}

	// report in the order the form checks them: required, format, then length
	failed := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		failed[fe.Field()+"."+fe.Tag()] = fe.Tag()
	}
	switch {
	case has(failed, "Name.required"), has(failed, "Description.required"):
		return clan, &ValidationError{Message: MsgClanRequired}
	case has(failed, "Name.clanname"):
		return clan, &ValidationError{Message: MsgClanNameFormat}
	case has(failed, "Name.min"), has(failed, "Name.max"):
		return clan, &ValidationError{Message: MsgClanNameLength}
	case has(failed, "Description.max"):
		return clan, &ValidationError{Message: MsgClanDescription}
	default:
		return clan, &ValidationError{Message: MsgClanDisplayName}
	}
}

// PrepareNewPost trims and validates the create post form
func PrepareNewPost(title, content, clan string) (NewPost, error) {
	post := NewPost{
		Title:   strings.TrimSpace(title),
		Content: strings.TrimSpace(content),
		Clan:    strings.TrimSpace(clan),
	}
	if err := validate.Struct(post); err != nil {
		return post, &ValidationError{Message: MsgPostRequired}
	}
	return post, nil
}

// ValidateClanName reports whether name is an acceptable clan name
func ValidateClanName(name string) error {
	if err := validate.Var(name, "required,clanname"); err != nil {
		return &ValidationError{Message: MsgClanNameFormat}
	}
	if err := validate.Var(name, "min=3,max=50"); err != nil {
		return &ValidationError{Message: MsgClanNameLength}
	}
	return nil
}

func has(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}

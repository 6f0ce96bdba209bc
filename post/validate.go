package post

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("post: invalid definition")

const (
	MaxDescriptionLen    = 1000
	MaxTags              = 20
	MaxTagNameLen        = 50
	MaxTagCategoryLen    = 50
	MaxTagDescriptionLen = 200
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a definition.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalid.Error()
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return ErrInvalid.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Invalid returns a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Validate checks d against the import schema and returns a
// *ValidationError when anything is out of bounds.
func Validate(d Definition) error {
	verr := &ValidationError{}
	if strings.TrimSpace(d.Name) == "" {
		verr.add("name", "is required")
	}
	if n := utf8.RuneCountInString(d.Description); n > MaxDescriptionLen {
		verr.add("description", "must be at most %d characters, got %d", MaxDescriptionLen, n)
	}
	if len(d.Tags) > MaxTags {
		verr.add("tags", "must have at most %d entries, got %d", MaxTags, len(d.Tags))
	}
	for i, t := range d.Tags {
		field := fmt.Sprintf("tags[%d]", i)
		name := utf8.RuneCountInString(strings.TrimSpace(t.Name))
		if name == 0 {
			verr.add(field+".name", "is required")
		} else if name > MaxTagNameLen {
			verr.add(field+".name", "must be at most %d characters", MaxTagNameLen)
		}
		if utf8.RuneCountInString(t.Category) > MaxTagCategoryLen {
			verr.add(field+".category", "must be at most %d characters", MaxTagCategoryLen)
		}
		if utf8.RuneCountInString(t.Description) > MaxTagDescriptionLen {
			verr.add(field+".description", "must be at most %d characters", MaxTagDescriptionLen)
		}
	}
	if d.Status != "" && !d.Status.Valid() {
		verr.add("status", "must be one of draft, published, archived")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

package sdruntime

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidatePrompt rejects prompts the text encoder cannot take.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidPrompt)
	}
	if err := checkPromptText(prompt); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrompt, err)
	}
	return nil
}

// ValidateNegativePrompt is ValidatePrompt for the optional negative prompt:
// empty is allowed.
func ValidateNegativePrompt(prompt string) error {
	if err := checkPromptText(prompt); err != nil {
		return fmt.Errorf("%w: negative %v", ErrInvalidParams, err)
	}
	return nil
}

func checkPromptText(prompt string) error {
	switch {
	case !utf8.ValidString(prompt):
		return fmt.Errorf("prompt is not valid UTF-8")
	case strings.ContainsRune(prompt, '\x00'):
		return fmt.Errorf("prompt contains null bytes")
	case len(prompt) > MaxPromptLength:
		return fmt.Errorf("prompt length %d exceeds maximum %d", len(prompt), MaxPromptLength)
	}
	return nil
}

// SanitizePrompt collapses runs of whitespace, including newlines from
// shell-quoted arguments, into single spaces.
func SanitizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}

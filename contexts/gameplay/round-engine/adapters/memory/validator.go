package memory

import (
	"context"
	"strings"
	"unicode/utf8"
)

const maxPhraseRunes = 120

// PhraseValidator is the deterministic rule-based implementation used when
// no external moderation service is wired. It enforces structural rules
// only; content moderation belongs to the external capability.
type PhraseValidator struct{}

func NewPhraseValidator() PhraseValidator { return PhraseValidator{} }

func (PhraseValidator) Validate(_ context.Context, phrase string) (bool, string, error) {
	return checkPhrase(phrase)
}

func (v PhraseValidator) ValidatePromptPhrase(ctx context.Context, phrase string, promptText string) (bool, string, error) {
	ok, reason, err := v.Validate(ctx, phrase)
	if !ok || err != nil {
		return ok, reason, err
	}
	if strings.EqualFold(strings.TrimSpace(phrase), strings.TrimSpace(promptText)) {
		return false, "phrase must not repeat the prompt", nil
	}
	return true, "", nil
}

func (v PhraseValidator) ValidateCopy(ctx context.Context, phrase string, original string, otherCopy string, promptText string) (bool, string, error) {
	ok, reason, err := v.ValidatePromptPhrase(ctx, phrase, promptText)
	if !ok || err != nil {
		return ok, reason, err
	}
	if strings.EqualFold(strings.TrimSpace(phrase), strings.TrimSpace(original)) {
		return false, "copy must differ from the original phrase", nil
	}
	if otherCopy != "" && strings.EqualFold(strings.TrimSpace(phrase), strings.TrimSpace(otherCopy)) {
		return false, "copy must differ from the other copy", nil
	}
	return true, "", nil
}

func checkPhrase(phrase string) (bool, string, error) {
	trimmed := strings.TrimSpace(phrase)
	if trimmed == "" {
		return false, "phrase must not be empty", nil
	}
	if utf8.RuneCountInString(trimmed) > maxPhraseRunes {
		return false, "phrase is too long", nil
	}
	return true, "", nil
}

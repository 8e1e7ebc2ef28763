package errors

import "errors"

var (
	ErrRoundNotFound          = errors.New("round not found")
	ErrRoundNotActive         = errors.New("round is not active")
	ErrRoundNotOwned          = errors.New("round belongs to another player")
	ErrRoundExpired           = errors.New("round expired past grace period")
	ErrInvalidPhrase          = errors.New("phrase failed validation")
	ErrDuplicatePhrase        = errors.New("phrase duplicates an existing submission")
	ErrNoPromptsAvailable     = errors.New("no prompts available")
	ErrNoPhrasesetsAvailable  = errors.New("no phrasesets available")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrAlreadyInRound         = errors.New("player already has an active round")
	ErrPlayerNotFound         = errors.New("player not found")
	ErrPromptRoundUnavailable = errors.New("prompt round is no longer available for copying")
	ErrPhrasesetNotFound      = errors.New("phraseset not found")
	ErrPhrasesetExists        = errors.New("phraseset already exists for prompt round")
	ErrLockTimeout            = errors.New("lock acquisition timed out")
)

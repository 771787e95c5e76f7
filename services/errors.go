package services

import "errors"

// Validation errors surface to callers as 4xx; anything else is a storage failure.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient currency balance")
	ErrNothingToConvert   = errors.New("conversion yields no currency")
	ErrRewardInactive     = errors.New("reward is not active")
	ErrOutOfStock         = errors.New("reward is out of stock")
	ErrNotSocialBadge     = errors.New("badge cannot be given by peers")
	ErrSelfRecognition    = errors.New("cannot give a badge to yourself")
	ErrDuplicateBadgeGift = errors.New("badge already given to this user today")
	ErrStaleActivity      = errors.New("activity is older than the last recorded activity")
	ErrChallengeEnded     = errors.New("challenge has ended")
	ErrChallengeNotActive = errors.New("challenge is not active")
	ErrNotParticipating   = errors.New("team is not part of this challenge")
	ErrConcurrentUpdate   = errors.New("concurrent update, retries exhausted")
)

// IsValidationError reports whether err belongs to the 4xx class.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrNotFound, ErrInsufficientFunds, ErrNothingToConvert,
		ErrRewardInactive, ErrOutOfStock, ErrNotSocialBadge, ErrSelfRecognition,
		ErrDuplicateBadgeGift, ErrStaleActivity, ErrChallengeEnded,
		ErrChallengeNotActive, ErrNotParticipating,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

package services

import "errors"

// Engine error taxonomy. Handlers map these to HTTP statuses; the dispatcher
// only logs them so one failing rule never blocks its siblings.
var (
	ErrRuleNotFound      = errors.New("rule not found")
	ErrRuleInactive      = errors.New("rule is inactive")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrUnknownActionType = errors.New("unknown action type")
	ErrTriggerConfig     = errors.New("invalid trigger configuration")
	ErrTemplateNotFound  = errors.New("rule template not found")
)

package fuzzy

import "errors"

var (
	ErrInvalidMembershipShape = errors.New("invalid membership shape")
	ErrInvalidUniverse        = errors.New("invalid universe")
	ErrInvalidVariable        = errors.New("invalid linguistic variable")
	ErrDuplicateTerm          = errors.New("duplicate term")
	ErrDuplicateVariable      = errors.New("duplicate variable")
	ErrUnknownVariable        = errors.New("unknown variable")
	ErrUnknownTerm            = errors.New("unknown term")
	ErrInvalidRule            = errors.New("invalid rule")
	ErrMissingInput           = errors.New("missing input")
	ErrOutOfDomainInput       = errors.New("input outside universe")
	ErrNoRuleFired            = errors.New("no rule fired")
)

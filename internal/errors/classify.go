package errors

import (
	"context"
	"errors"
	"strings"
)

// Class is the coarse failure category used to decide how the credential pool reacts.
type Class int

const (
	ClassUnknown Class = iota
	ClassRateLimit
	ClassInvalidCredential
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassRateLimit:
		return "rate_limit"
	case ClassInvalidCredential:
		return "invalid_credential"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

type classRule struct {
	class   Class
	signals []string
}

// Order matters: the first rule with a matching signal wins. The table depends on
// upstream error wording and must be revisited when the upstream changes its messages.
var classRules = []classRule{
	{ClassRateLimit, []string{
		"rate limit", "ratelimit", "quota", "resource_exhausted", "exhausted",
		"429", "too many requests", "limit exceeded",
	}},
	{ClassInvalidCredential, []string{
		"unauthorized", "unauthenticated", "permission denied", "permission_denied",
		"invalid api key", "api key not valid", "api_key_invalid", "401", "403",
	}},
	{ClassTransient, []string{
		"timeout", "timed out", "deadline exceeded", "connection", "network", "unavailable",
		"eof", "broken pipe", "no such host", "500", "502", "503", "504", "internal",
	}},
}

// Classify maps an upstream failure to a Class by matching known substrings.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage applies the rule table to raw error text.
func ClassifyMessage(msg string) Class {
	msg = strings.ToLower(msg)
	for _, rule := range classRules {
		for _, signal := range rule.signals {
			if strings.Contains(msg, signal) {
				return rule.class
			}
		}
	}
	return ClassUnknown
}

// UpstreamError is a transport failure that has been through the classifier.
type UpstreamError struct {
	Class Class
	Err   error
}

// NewUpstreamError classifies err and wraps it. Nil stays nil.
func NewUpstreamError(err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Class: Classify(err), Err: err}
}

func (e *UpstreamError) Error() string {
	return "upstream " + e.Class.String() + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

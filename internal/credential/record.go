package credential

import (
	"fmt"
	"strings"
	"time"

	"geminivoice-go/internal/secure"
)

// Status is the health state of a pooled credential. The string values are the
// ones written to the metadata document.
type Status string

const (
	StatusActive      Status = "active"
	StatusRateLimited Status = "rate_limited"
	StatusExpired     Status = "expired"
	StatusInvalid     Status = "invalid"
	StatusDisabled    Status = "disabled"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusActive, StatusRateLimited, StatusExpired, StatusInvalid, StatusDisabled}

// ParseStatus accepts the persisted lower-case form as well as the upper-case names.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown credential status %q", s)
}

// Origin records where a credential came from. Only file and admin credentials are
// written back to the metadata document.
type Origin string

const (
	OriginEnv     Origin = "env"
	OriginKeyring Origin = "keyring"
	OriginFile    Origin = "file"
	OriginAdmin   Origin = "admin"
)

// Persisted reports whether credentials of this origin belong in the metadata document.
func (o Origin) Persisted() bool {
	return o == OriginFile || o == OriginAdmin
}

const (
	// DefaultMaxErrors is the per-record disable threshold.
	DefaultMaxErrors = 5
	// DefaultRateLimitWindow applies when the upstream gives no reset time.
	DefaultRateLimitWindow = 60 * time.Minute
	// disabledDecayAfter is how long a disabled record must sit idle before the
	// health sweep forgives one error.
	disabledDecayAfter = time.Hour
)

// Record is one API credential plus its health bookkeeping.
type Record struct {
	Label            string
	Secret           secure.Secret
	Status           Status
	LastUsedAt       *time.Time
	RateLimitResetAt *time.Time
	UsageCount       int64
	ErrorCount       int
	MaxErrors        int
	Origin           Origin
}

// NewRecord builds an active record with the default error threshold.
func NewRecord(label, secret string, origin Origin) *Record {
	return &Record{
		Label:     label,
		Secret:    secure.NewSecret(secret),
		Status:    StatusActive,
		MaxErrors: DefaultMaxErrors,
		Origin:    origin,
	}
}

// Clone returns a copy that shares the sealed secret but none of the mutable fields.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.LastUsedAt = cloneTime(r.LastUsedAt)
	c.RateLimitResetAt = cloneTime(r.RateLimitResetAt)
	return &c
}

func (r *Record) maxErrors() int {
	if r.MaxErrors <= 0 {
		return DefaultMaxErrors
	}
	return r.MaxErrors
}

func (r *Record) recordFailure() {
	if r.ErrorCount < r.maxErrors() {
		r.ErrorCount++
	}
}

func (r *Record) recordSuccess() {
	if r.ErrorCount > 0 {
		r.ErrorCount--
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time { return &t }

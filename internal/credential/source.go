package credential

import (
	"context"
)

// Source supplies trusted credentials at load time. Records from a Source are never
// written to the metadata document.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]*Record, error)
}

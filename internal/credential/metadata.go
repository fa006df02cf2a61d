package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"geminivoice-go/internal/storage"

	"github.com/xeipuuv/gojsonschema"
)

// MetadataKey is the storage key of the credential metadata document. The file
// backend stores it as api_keys.json.
const MetadataKey = "api_keys"

// Metadata is the persisted form of the pool: non-env credentials (secret included)
// plus pool settings.
type Metadata struct {
	Keys            []KeyEntry `json:"keys"`
	CurrentIndex    int        `json:"current_index"`
	RotationEnabled bool       `json:"rotation_enabled"`
	LastUpdated     string     `json:"last_updated,omitempty"`
}

// KeyEntry is one credential in the metadata document.
type KeyEntry struct {
	Key            string  `json:"key"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	LastUsed       *string `json:"last_used"`
	RateLimitReset *string `json:"rate_limit_reset"`
	UsageCount     int64   `json:"usage_count"`
	ErrorCount     int     `json:"error_count"`
	MaxErrors      int     `json:"max_errors"`
}

const metadataSchema = `{
  "type": "object",
  "required": ["keys"],
  "properties": {
    "keys": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["key", "name", "status"],
        "properties": {
          "key": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "status": {"type": "string", "enum": ["active", "rate_limited", "expired", "invalid", "disabled"]},
          "last_used": {"type": ["string", "null"]},
          "rate_limit_reset": {"type": ["string", "null"]},
          "usage_count": {"type": "integer", "minimum": 0},
          "error_count": {"type": "integer", "minimum": 0},
          "max_errors": {"type": "integer", "minimum": 0}
        }
      }
    },
    "current_index": {"type": "integer", "minimum": 0},
    "rotation_enabled": {"type": "boolean"},
    "last_updated": {"type": ["string", "null"]}
  }
}`

var metadataSchemaLoader = gojsonschema.NewStringLoader(metadataSchema)

// DecodeMetadata validates data against the document schema and decodes it.
func DecodeMetadata(data []byte) (*Metadata, error) {
	result, err := gojsonschema.Validate(metadataSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("parse credential metadata: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, fmt.Errorf("invalid credential metadata: %s", strings.Join(problems, "; "))
	}

	// rotation_enabled defaults to true when the document omits it
	md := &Metadata{RotationEnabled: true}
	if err := json.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("decode credential metadata: %w", err)
	}
	return md, nil
}

// EncodeMetadata renders the document with two-space indentation.
func EncodeMetadata(md *Metadata) ([]byte, error) {
	if md.Keys == nil {
		md.Keys = []KeyEntry{}
	}
	return json.MarshalIndent(md, "", "  ")
}

func entryFromRecord(r *Record) (KeyEntry, error) {
	secret, err := r.Secret.Reveal()
	if err != nil {
		return KeyEntry{}, fmt.Errorf("credential %s: %w", r.Label, err)
	}
	return KeyEntry{
		Key:            secret,
		Name:           r.Label,
		Status:         string(r.Status),
		LastUsed:       formatTimestamp(r.LastUsedAt),
		RateLimitReset: formatTimestamp(r.RateLimitResetAt),
		UsageCount:     r.UsageCount,
		ErrorCount:     r.ErrorCount,
		MaxErrors:      r.maxErrors(),
	}, nil
}

func recordFromEntry(e KeyEntry) (*Record, error) {
	status, err := ParseStatus(e.Status)
	if err != nil {
		return nil, err
	}
	lastUsed, err := parseTimestamp(e.LastUsed)
	if err != nil {
		return nil, fmt.Errorf("last_used: %w", err)
	}
	reset, err := parseTimestamp(e.RateLimitReset)
	if err != nil {
		return nil, fmt.Errorf("rate_limit_reset: %w", err)
	}
	r := NewRecord(e.Name, e.Key, OriginFile)
	r.Status = status
	r.LastUsedAt = lastUsed
	r.RateLimitResetAt = reset
	r.UsageCount = e.UsageCount
	r.MaxErrors = e.MaxErrors
	if r.MaxErrors <= 0 {
		r.MaxErrors = DefaultMaxErrors
	}
	r.ErrorCount = e.ErrorCount
	if r.ErrorCount > r.MaxErrors {
		r.ErrorCount = r.MaxErrors
	}
	return r, nil
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

// Older documents carry naive ISO timestamps without a zone; those are read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(*s)
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, raw)
		} else {
			t, err = time.ParseInLocation(layout, raw, time.Local)
		}
		if err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", raw)
}

// MetadataStore loads and saves the metadata document. LoadMetadata returns nil, nil
// when no document has been written yet.
type MetadataStore interface {
	LoadMetadata(ctx context.Context) (*Metadata, error)
	SaveMetadata(ctx context.Context, md *Metadata) error
}

// DocumentStore keeps the metadata document in a storage backend.
type DocumentStore struct {
	backend storage.Backend
	key     string
}

// NewDocumentStore stores metadata under MetadataKey in backend.
func NewDocumentStore(backend storage.Backend) *DocumentStore {
	return &DocumentStore{backend: backend, key: MetadataKey}
}

func (s *DocumentStore) LoadMetadata(ctx context.Context) (*Metadata, error) {
	data, err := s.backend.GetDocument(ctx, s.key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return DecodeMetadata(data)
}

func (s *DocumentStore) SaveMetadata(ctx context.Context, md *Metadata) error {
	data, err := EncodeMetadata(md)
	if err != nil {
		return fmt.Errorf("encode credential metadata: %w", err)
	}
	return s.backend.PutDocument(ctx, s.key, data)
}

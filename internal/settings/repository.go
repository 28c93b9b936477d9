package settings

import (
	"context"
	"errors"
)

var (
	ErrSettingNotFound = errors.New("setting not found")

	// ErrSettingMissing means a required setting with no sane default is
	// absent from the store. Surfaced to operators, never defaulted.
	ErrSettingMissing = errors.New("required setting missing")
)

// Repository contains all DB interactions needed by the settings service.
type Repository interface {
	Get(ctx context.Context, key string) (*Setting, error)
	Upsert(ctx context.Context, s Setting) error
	List(ctx context.Context) ([]Setting, error)
}

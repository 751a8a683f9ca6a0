package core

import (
	"context"
	"time"
)

// FileStore is the relational state behind cloud storage conversion.
type FileStore interface {
	// HasUserFile reports whether userUUID owns fileUUID.
	HasUserFile(ctx context.Context, userUUID, fileUUID string) (bool, error)
	// FindFile returns the file row, or storage.ErrNotFound.
	FindFile(ctx context.Context, fileUUID string) (*CloudStorageFile, error)
	UpdateConvertStep(ctx context.Context, fileUUID string, step FileConvertStep) error
	MarkConverting(ctx context.Context, fileUUID, taskUUID, taskToken string, region Region) error
	ListStaleConverting(ctx context.Context, olderThan time.Time, limit int) ([]*CloudStorageFile, error)
}

// UserStore persists users signing in through an identity provider.
type UserStore interface {
	UpsertExternalUser(ctx context.Context, identity ExternalIdentity) (*User, error)
}

// AuthCache is the short-lived key-value state of login attempts.
type AuthCache interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string) (bool, error)
}

// ConversionClient talks to the external conversion service.
type ConversionClient interface {
	QueryTask(ctx context.Context, region Region, taskUUID string, typ ConversionType) (ConversionStatus, error)
	CreateTask(ctx context.Context, region Region, resource string, typ ConversionType) (*ConversionTask, error)
	CoursewareStatus(ctx context.Context, resource string) (ConversionStatus, error)
}

// ConversionTask is a task accepted by the conversion service.
type ConversionTask struct {
	UUID  string
	Token string
}

// FileEvent is published when a file reaches a terminal conversion step.
type FileEvent struct {
	FileUUID   string          `json:"file_uuid"`
	Step       FileConvertStep `json:"step"`
	OccurredAt string          `json:"occurred_at"`
}

// EventPublisher broadcasts file events.
type EventPublisher interface {
	PublishFileEvent(event *FileEvent) error
}

// IdentityProvider completes an OAuth code exchange.
type IdentityProvider interface {
	Exchange(ctx context.Context, code, state string) (*ExternalIdentity, error)
}

// TokenIssuer signs session tokens for users.
type TokenIssuer interface {
	Issue(userUUID string, source LoginSource) (string, error)
}

// FormatTime renders t the way events and logs carry timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

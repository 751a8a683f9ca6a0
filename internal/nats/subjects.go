package nats

import "fmt"

// Subject hierarchy for file events.
//
//	flat.events.file.converted  -- every terminal conversion
//	flat.events.file.{uuid}     -- events for one file
const (
	SubjectPrefix = "flat"

	// BucketAuth holds login attempts and their callback results.
	BucketAuth = "flat-auth"
)

// FileConvertedSubject is the subject every terminal conversion is published on.
func FileConvertedSubject() string {
	return fmt.Sprintf("%s.events.file.converted", SubjectPrefix)
}

// FileSubject returns the subject for events about one file.
// Example: flat.events.file.550e8400-e29b-41d4-a716-446655440000
func FileSubject(fileUUID string) string {
	return fmt.Sprintf("%s.events.file.%s", SubjectPrefix, fileUUID)
}

// Package convert drives cloud storage file conversion: submitting tasks,
// polling their status and persisting terminal outcomes.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flatroom/flat-server-go/internal/core"
	"github.com/flatroom/flat-server-go/internal/metrics"
	"github.com/flatroom/flat-server-go/internal/storage"
)

const tracerName = "github.com/flatroom/flat-server-go/internal/convert"

// Service implements the conversion operations.
type Service struct {
	files         core.FileStore
	client        core.ConversionClient
	events        core.EventPublisher
	defaultRegion core.Region
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEvents publishes terminal conversions to p.
func WithEvents(p core.EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithDefaultRegion sets the region new conversion tasks run in.
func WithDefaultRegion(r core.Region) Option {
	return func(s *Service) { s.defaultRegion = r }
}

// NewService creates a Service.
func NewService(files core.FileStore, client core.ConversionClient, opts ...Option) *Service {
	s := &Service{
		files:         files,
		client:        client,
		defaultRegion: core.RegionCNHZ,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartResult is returned by Start.
type StartResult struct {
	TaskUUID  string `json:"taskUUID"`
	TaskToken string `json:"taskToken"`
}

// Finish polls the conversion of a file owned by userUUID and persists
// the outcome once it is terminal. A nil error means the file is converted.
func (s *Service) Finish(ctx context.Context, userUUID, fileUUID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "convert.Finish")
	defer span.End()
	span.SetAttributes(attribute.String("file.uuid", fileUUID))

	file, err := s.ownedFile(ctx, userUUID, fileUUID)
	if err != nil {
		return err
	}

	if core.IsConvertDone(file.ConvertStep) {
		return core.NewFailed(core.ErrCodeFileIsConverted)
	}
	if core.IsConvertFailed(file.ConvertStep) {
		return core.NewFailed(core.ErrCodeFileConvertFailed)
	}
	if file.Region == core.RegionNone {
		return core.NewServerFail("unsupported current file conversion", nil)
	}

	return s.apply(ctx, file, "poll")
}

// Start submits a file owned by userUUID for conversion.
func (s *Service) Start(ctx context.Context, userUUID, fileUUID string) (*StartResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "convert.Start")
	defer span.End()
	span.SetAttributes(attribute.String("file.uuid", fileUUID))

	file, err := s.ownedFile(ctx, userUUID, fileUUID)
	if err != nil {
		return nil, err
	}

	switch file.ConvertStep {
	case core.ConvertStepDone:
		return nil, core.NewFailed(core.ErrCodeFileIsConverted)
	case core.ConvertStepFailed:
		return nil, core.NewFailed(core.ErrCodeFileConvertFailed)
	case core.ConvertStepConverting:
		return nil, core.NewFailed(core.ErrCodeFileIsConverting)
	}
	if !core.IsConvertible(file.FileURL) {
		return nil, core.NewFailed(core.ErrCodeFileNotSupportConvert)
	}

	region := s.defaultRegion
	result := &StartResult{}
	if !core.IsCourseware(file.FileURL) {
		task, err := s.client.CreateTask(ctx, region, file.FileURL, core.DetermineType(file.FileURL))
		if err != nil {
			return nil, fmt.Errorf("create conversion task: %w", err)
		}
		result.TaskUUID = task.UUID
		result.TaskToken = task.Token
	}

	if err := s.files.MarkConverting(ctx, fileUUID, result.TaskUUID, result.TaskToken, region); err != nil {
		return nil, fmt.Errorf("mark file converting: %w", err)
	}
	slog.InfoContext(ctx, "conversion started", "file_uuid", fileUUID, "task_uuid", result.TaskUUID, "region", region)
	return result, nil
}

// Reconcile applies the latest conversion status to files that have been
// converting since before olderThan. It returns how many files reached a
// terminal step.
func (s *Service) Reconcile(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "convert.Reconcile")
	defer span.End()

	files, err := s.files.ListStaleConverting(ctx, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("list converting files: %w", err)
	}

	settled := 0
	for _, file := range files {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if file.Region == core.RegionNone && !core.IsCourseware(file.FileURL) {
			metrics.ReconcileFilesTotal.WithLabelValues("skipped").Inc()
			continue
		}

		err := s.apply(ctx, file, "reconcile")
		var appErr *core.AppError
		switch {
		case err == nil:
			settled++
			metrics.ReconcileFilesTotal.WithLabelValues("done").Inc()
		case errors.As(err, &appErr) && appErr.Code == core.ErrCodeFileConvertFailed:
			settled++
			metrics.ReconcileFilesTotal.WithLabelValues("failed").Inc()
		case errors.As(err, &appErr) && appErr.Code != core.ErrCodeServerFail:
			metrics.ReconcileFilesTotal.WithLabelValues("pending").Inc()
		default:
			metrics.ReconcileFilesTotal.WithLabelValues("error").Inc()
			slog.WarnContext(ctx, "reconcile conversion", "file_uuid", file.FileUUID, "error", err)
		}
	}
	return settled, nil
}

func (s *Service) ownedFile(ctx context.Context, userUUID, fileUUID string) (*core.CloudStorageFile, error) {
	owned, err := s.files.HasUserFile(ctx, userUUID, fileUUID)
	if err != nil {
		return nil, fmt.Errorf("check file ownership: %w", err)
	}
	if !owned {
		return nil, core.NewFailed(core.ErrCodeFileNotFound)
	}

	file, err := s.files.FindFile(ctx, fileUUID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, core.NewFailed(core.ErrCodeFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find file: %w", err)
	}
	return file, nil
}

// apply queries the conversion status of file and persists terminal steps.
func (s *Service) apply(ctx context.Context, file *core.CloudStorageFile, source string) error {
	status, err := s.queryStatus(ctx, file)
	if err != nil {
		return fmt.Errorf("query conversion status: %w", err)
	}
	metrics.ConversionStatusTotal.WithLabelValues(source, statusLabel(status)).Inc()

	step, outcome := core.ConversionOutcome(status)
	if step != "" {
		if err := s.files.UpdateConvertStep(ctx, file.FileUUID, step); err != nil {
			return fmt.Errorf("update convert step: %w", err)
		}
		s.publish(ctx, file.FileUUID, step)
	}
	if outcome != nil {
		return outcome
	}
	return nil
}

// statusLabel keeps the status label set closed; the conversion service
// may report values we do not know about.
func statusLabel(status core.ConversionStatus) string {
	switch status {
	case core.ConversionWaiting, core.ConversionConverting, core.ConversionFinished, core.ConversionFail:
		return string(status)
	default:
		return "other"
	}
}

func (s *Service) queryStatus(ctx context.Context, file *core.CloudStorageFile) (core.ConversionStatus, error) {
	if core.IsCourseware(file.FileURL) {
		return s.client.CoursewareStatus(ctx, file.FileURL)
	}
	return s.client.QueryTask(ctx, file.Region, file.TaskUUID, core.DetermineType(file.FileURL))
}

func (s *Service) publish(ctx context.Context, fileUUID string, step core.FileConvertStep) {
	if s.events == nil {
		return
	}
	event := &core.FileEvent{FileUUID: fileUUID, Step: step, OccurredAt: core.FormatTime(s.now())}
	if err := s.events.PublishFileEvent(event); err != nil {
		slog.WarnContext(ctx, "publish file event", "file_uuid", fileUUID, "error", err)
	}
}

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
	"murmur/internal/services"
)

func (m *Manager) handleJobFailure(ctx context.Context, logger *slog.Logger, item *queue.Item, jobErr error) {
	kind := services.KindOf(jobErr)
	stage := item.PipelineState
	if stageErr, ok := pipeline.AsStageError(jobErr); ok {
		stage = string(stageErr.State)
	}
	message := classifyFailure(jobErr)
	item.SetFailed(string(kind), stage, message)

	logging.ErrorWithContext(logger, "job failed", "job_failure",
		logging.String("resolved_status", string(queue.StatusFailed)),
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.String("error_message", message),
		logging.String(logging.FieldErrorHint, hintForKind(kind)),
		logging.Alert("job_failure"),
		logging.Error(jobErr),
	)

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not record job failure")
		} else {
			logger.Error("failed to persist job failure", logging.Error(err))
		}
	}

	m.setLastItem(item)
	m.setLastError(jobErr)
	m.publish(ctx, logger, notifications.EventJobFailed, notifications.Payload{
		"job_id": item.JobID,
		"stage":  stage,
		"kind":   string(kind),
		"error":  message,
	})
	m.checkQueueCompletion(ctx)
}

// classifyFailure returns the message persisted on the failed row. The
// StageError prefix is dropped since the stage is stored separately.
func classifyFailure(err error) string {
	if err == nil {
		return "job failed without error detail"
	}
	if stageErr, ok := pipeline.AsStageError(err); ok && stageErr.Err != nil {
		err = stageErr.Err
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "job failed"
	}
	return message
}

func hintForKind(kind services.Kind) string {
	switch kind {
	case services.KindValidation:
		return "fix the request and resubmit"
	case services.KindSynthesis:
		return "check the TTS provider and retry the job"
	case services.KindExecution:
		return "inspect the ffmpeg stderr in the job log"
	case services.KindStorage:
		return "check free space and permissions on the staging and output directories"
	case services.KindNotFound:
		return "check the catalog entries referenced by the request"
	case services.KindConfiguration:
		return "review the murmur configuration"
	default:
		return "inspect the job log and retry"
	}
}

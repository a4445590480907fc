package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
	"murmur/internal/services"
)

// ActiveJob describes a job a worker is currently running.
type ActiveJob struct {
	Worker  int            `json:"worker"`
	JobID   string         `json:"job_id"`
	State   pipeline.State `json:"state"`
	Started time.Time      `json:"started"`
}

func (m *Manager) processJob(ctx context.Context, worker int, workerLogger *slog.Logger, item *queue.Item) {
	ctx = services.WithRequestID(services.WithJobID(ctx, item.JobID), uuid.NewString())
	logger, closeLog := m.jobLogs.Attach(workerLogger, item)
	defer closeLog()
	logger = logging.WithContext(ctx, logger)

	m.setActive(worker, ActiveJob{Worker: worker, JobID: item.JobID, State: pipeline.StateValidating, Started: time.Now()})
	defer m.clearActive(worker)
	m.setLastItem(item)
	m.onJobStarted(ctx)

	var req pipeline.SynthesisRequest
	if err := json.Unmarshal([]byte(item.Request), &req); err != nil {
		m.handleJobFailure(ctx, logger, item, &pipeline.StageError{
			State: pipeline.StateValidating,
			Err:   services.Wrap(services.ErrValidation, "workflow", "decode request", "stored request is not valid JSON", err),
		})
		return
	}

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("affirmations", len(req.Affirmations)),
		logging.String("voice_id", req.VoiceID),
		logging.String("track_id", req.TrackID),
		logging.Int("attempt", item.Attempts),
	)

	progress := pipeline.ObserverFunc(func(_ context.Context, _ string, t pipeline.Transition) {
		m.recordTransition(ctx, logger, worker, item, t)
	})

	result, runErr := m.runWithHeartbeat(ctx, item, req, progress)
	if runErr != nil {
		if ctx.Err() != nil && errors.Is(runErr, context.Canceled) {
			m.handleInterrupted(logger, item)
			return
		}
		m.handleJobFailure(ctx, logger, item, runErr)
		return
	}
	m.handleJobSuccess(ctx, logger, item, result)
}

func (m *Manager) runWithHeartbeat(ctx context.Context, item *queue.Item, req pipeline.SynthesisRequest, observer pipeline.Observer) (pipeline.JobResult, error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	result, err := m.runner.Run(ctx, item.JobID, req, observer)
	hbCancel()
	hbWG.Wait()
	return result, err
}

func (m *Manager) recordTransition(ctx context.Context, logger *slog.Logger, worker int, item *queue.Item, t pipeline.Transition) {
	if t.To == pipeline.StateFailed || t.To == pipeline.StateCompleted {
		return
	}
	m.updateActiveState(worker, t.To)
	item.SetProgress(string(t.To), t.To.Label(), t.To.Progress())
	if err := m.store.UpdateProgress(ctx, item.ID, string(t.To), t.To.Label(), t.To.Progress()); err != nil && ctx.Err() == nil {
		logger.Warn("failed to persist job progress",
			logging.Error(err),
			logging.String(logging.FieldStage, string(t.To)),
			logging.String(logging.FieldEventType, "progress_persist_failed"),
			logging.String(logging.FieldImpact, "job status may lag behind the pipeline"),
		)
	}
	logger.Debug("pipeline state changed",
		logging.String("from", string(t.From)),
		logging.String("to", string(t.To)),
		logging.Duration("elapsed", t.Elapsed),
	)
}

func (m *Manager) handleJobSuccess(ctx context.Context, logger *slog.Logger, item *queue.Item, result pipeline.JobResult) {
	item.SetCompleted(result.FinalPath, result.DurationSeconds, result.FragmentCount)
	if err := m.store.Update(ctx, item); err != nil {
		wrapped := fmt.Errorf("persist job result: %w", err)
		logger.Error("failed to persist job result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("final_path", result.FinalPath),
		logging.Int("fragments", result.FragmentCount),
		logging.Float64("duration_seconds", result.DurationSeconds),
		logging.Duration("job_duration", item.Elapsed()),
	)
	m.setLastItem(item)

	m.publish(ctx, logger, notifications.EventJobCompleted, notifications.Payload{
		"job_id":    item.JobID,
		"fragments": result.FragmentCount,
		"track":     trackOf(item),
		"location":  result.FinalPath,
	})
	m.checkQueueCompletion(ctx)
}

// handleInterrupted records a job cut short by shutdown. Its workspace has
// already been released by the pipeline.
func (m *Manager) handleInterrupted(logger *slog.Logger, item *queue.Item) {
	item.SetFailed(string(services.KindCanceled), item.PipelineState, queue.DaemonStopReason)
	if err := m.store.Update(context.Background(), item); err != nil {
		logger.Warn("failed to record interrupted job", logging.Error(err))
		return
	}
	logger.Info("job interrupted by shutdown",
		logging.String(logging.FieldEventType, "job_interrupted"),
		logging.String(logging.FieldStage, item.FailedStage),
	)
}

func trackOf(item *queue.Item) string {
	var req pipeline.SynthesisRequest
	if err := json.Unmarshal([]byte(item.Request), &req); err != nil {
		return ""
	}
	return req.TrackID
}

func (m *Manager) setActive(worker int, job ActiveJob) {
	m.mu.Lock()
	m.active[worker] = job
	m.mu.Unlock()
}

func (m *Manager) updateActiveState(worker int, state pipeline.State) {
	m.mu.Lock()
	if job, ok := m.active[worker]; ok {
		job.State = state
		m.active[worker] = job
	}
	m.mu.Unlock()
}

func (m *Manager) clearActive(worker int) {
	m.mu.Lock()
	delete(m.active, worker)
	m.mu.Unlock()
}

package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, job_id, status, request_json, pipeline_state, progress_percent, progress_message, error_kind, failed_stage, error_message, final_path, duration_seconds, fragment_count, attempts, created_at, updated_at, started_at, finished_at, last_heartbeat"

var expectedColumns = []string{
	"id",
	"job_id",
	"status",
	"request_json",
	"pipeline_state",
	"progress_percent",
	"progress_message",
	"error_kind",
	"failed_stage",
	"error_message",
	"final_path",
	"duration_seconds",
	"fragment_count",
	"attempts",
	"created_at",
	"updated_at",
	"started_at",
	"finished_at",
	"last_heartbeat",
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		jobID            string
		statusStr        string
		request          string
		pipelineState    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		errorKind        sql.NullString
		failedStage      sql.NullString
		errorMessage     sql.NullString
		finalPath        sql.NullString
		durationSeconds  sql.NullFloat64
		fragmentCount    sql.NullInt64
		attempts         int
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		startedRaw       sql.NullString
		finishedRaw      sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&statusStr,
		&request,
		&pipelineState,
		&progressPercent,
		&progressMessage,
		&errorKind,
		&failedStage,
		&errorMessage,
		&finalPath,
		&durationSeconds,
		&fragmentCount,
		&attempts,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		JobID:           jobID,
		Status:          Status(statusStr),
		Request:         request,
		PipelineState:   pipelineState.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		ErrorKind:       errorKind.String,
		FailedStage:     failedStage.String,
		ErrorMessage:    errorMessage.String,
		FinalPath:       finalPath.String,
		DurationSeconds: durationSeconds.Float64,
		FragmentCount:   int(fragmentCount.Int64),
		Attempts:        attempts,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	item.StartedAt = parseNullableTime(startedRaw)
	item.FinishedAt = parseNullableTime(finishedRaw)
	item.LastHeartbeat = parseNullableTime(lastHeartbeatRaw)
	return item, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

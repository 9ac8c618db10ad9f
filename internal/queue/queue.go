package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type Kind string

const (
	// KindCoordinate advances a user's round-robin by one step.
	KindCoordinate Kind = "coordinate"
	// KindChannelBatch runs one backfill batch for a single channel
	// (legacy single-channel continuation).
	KindChannelBatch Kind = "channel-batch"
)

// Task is one scheduled continuation. Name is deterministic and
// content-derived so duplicate enqueue attempts for the same logical
// step collapse to a single execution.
type Task struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"userId,omitempty"`
	ChannelID string    `json:"channelId,omitempty"`
	RunAt     time.Time `json:"runAt"`
	Attempts  int       `json:"attempts,omitempty"`
}

// Queue is an at-least-once delayed task queue. Enqueueing an already
// scheduled task name is success, not an error.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
}

// Handler executes one delivered task.
type Handler func(ctx context.Context, t Task) error

// CoordinateTask names the step by run epoch and iteration, so two
// racing invocations of the same iteration schedule one continuation
// while a later restarted run is never suppressed by the dedupe guard.
func CoordinateTask(userID string, runEpoch int64, iteration int, runAt time.Time) Task {
	return Task{
		Name:   fmt.Sprintf("coordinate:%s:%d:%d", userID, runEpoch, iteration),
		Kind:   KindCoordinate,
		UserID: userID,
		RunAt:  runAt,
	}
}

// ChannelBatchTask names the continuation by the checkpoint it resumes
// from: re-dispatching the same page twice collapses.
func ChannelBatchTask(channelID, pageToken string, runAt time.Time) Task {
	sum := sha256.Sum256([]byte(pageToken))
	return Task{
		Name:      fmt.Sprintf("batch:%s:%s", channelID, hex.EncodeToString(sum[:8])),
		Kind:      KindChannelBatch,
		ChannelID: channelID,
		RunAt:     runAt,
	}
}

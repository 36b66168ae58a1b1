package common

import "context"

// ProgressEvent is one published update for a Job or Batch entity id
// (spec §4.2, §6 push channel).
type ProgressEvent struct {
	EntityID    string `json:"entity_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step"`
}

// ProgressBus is the in-process pub/sub seam pipelines publish stage
// transitions to and the HTTP push-channel handler subscribes from. One
// key per entity id; delivery is best-effort under backpressure.
type ProgressBus interface {
	Publish(ctx context.Context, event ProgressEvent)
	Subscribe(entityID string) (ch <-chan ProgressEvent, unsubscribe func())
}

package scheduler

import (
	"time"

	"channel-clock/internal/models"
)

// RegionStatus is one region's part of a dispatch.
type RegionStatus struct {
	RegionID string                `json:"region_id"`
	Name     string                `json:"name"`
	Label    string                `json:"label"`
	Status   models.ResolvedStatus `json:"status"`
	Outcome  string                `json:"outcome"`
	Error    string                `json:"error,omitempty"`
}

// Snapshot is the immutable result of a dispatch, read by the HTTP API.
type Snapshot struct {
	DispatchID  string               `json:"dispatch_id"`
	EvaluatedAt time.Time            `json:"evaluated_at"`
	Mode        models.OperatingMode `json:"mode"`
	Regions     []RegionStatus       `json:"regions"`
	Outcomes    map[string]int       `json:"outcomes"`
	NextWakeAt  time.Time            `json:"next_wake_at"`
	NextReason  string               `json:"next_reason"`
}

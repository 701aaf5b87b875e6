package governance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/models"
)

// GateDecision is the verdict of the procedural gate.
type GateDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	// Pending lists the item numbers of procedural items not yet approved.
	Pending []int `json:"pending,omitempty"`
}

// CanOpenSubstantiveVote reports whether every procedural agenda item of the
// meeting has an APPROVED resolution. A meeting without procedural items is
// vacuously allowed.
func (e *Engine) CanOpenSubstantiveVote(ctx context.Context, meetingID uuid.UUID) (*GateDecision, error) {
	if _, err := e.loadMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	items, err := e.meetings.ListAgendaItems(ctx, meetingID)
	if err != nil {
		return nil, operationFailed("list agenda items", err)
	}
	return proceduralDecision(items), nil
}

func proceduralDecision(items []models.AgendaItem) *GateDecision {
	var pending []int
	for _, it := range items {
		if it.IsProcedural && !it.Approved() {
			pending = append(pending, it.ItemNo)
		}
	}
	if len(pending) == 0 {
		return &GateDecision{Allowed: true}
	}
	nums := make([]string, len(pending))
	for i, n := range pending {
		nums[i] = strconv.Itoa(n)
	}
	return &GateDecision{
		Allowed: false,
		Reason:  fmt.Sprintf("procedural items not approved: %s", strings.Join(nums, ", ")),
		Pending: pending,
	}
}

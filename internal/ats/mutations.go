package ats

import (
	"context"
	"fmt"
	"time"
)

// AddNote attaches a note to a candidate. The note is tagged with its
// provenance so a reader of the ATS can tell agent-written notes from
// human ones.
func (c *Client) AddNote(ctx context.Context, candidateID, note, requester string) (map[string]any, error) {
	tagged := fmt.Sprintf("%s\n\n[via Warden - %s - Req: %s]",
		note, time.Now().UTC().Format("2006-01-02 15:04 MST"), requester)
	return c.postObject(ctx, "candidate.createNote", map[string]any{
		"candidateId": candidateID,
		"note":        map[string]any{"type": "text/plain", "value": tagged},
	})
}

// MoveStage moves an application to a new interview stage.
func (c *Client) MoveStage(ctx context.Context, applicationID, stageID string) (map[string]any, error) {
	return c.postObject(ctx, "application.changeStage", map[string]any{
		"applicationId":    applicationID,
		"interviewStageId": stageID,
	})
}

// CreateCandidate creates a candidate profile.
func (c *Client) CreateCandidate(ctx context.Context, name, email string, extra map[string]any) (map[string]any, error) {
	params := map[string]any{"name": name}
	if email != "" {
		params["email"] = email
	}
	for k, v := range extra {
		params[k] = v
	}
	return c.postObject(ctx, "candidate.create", params)
}

// ScheduleInterview creates an interview schedule for an application.
func (c *Client) ScheduleInterview(ctx context.Context, applicationID, stageID, startISO, endISO string, interviewerIDs []string) (map[string]any, error) {
	return c.postObject(ctx, "interviewSchedule.create", map[string]any{
		"applicationId":    applicationID,
		"interviewStageId": stageID,
		"interviewEvents": []map[string]any{{
			"startTime":      startISO,
			"endTime":        endISO,
			"interviewerIds": interviewerIDs,
		}},
	})
}

// CancelInterview cancels an interview schedule.
func (c *Client) CancelInterview(ctx context.Context, scheduleID string) (map[string]any, error) {
	return c.postObject(ctx, "interviewSchedule.cancel", map[string]any{
		"interviewScheduleId": scheduleID,
	})
}

// RescheduleInterview moves an interview schedule to a new slot.
func (c *Client) RescheduleInterview(ctx context.Context, scheduleID, startISO, endISO string) (map[string]any, error) {
	return c.postObject(ctx, "interviewSchedule.update", map[string]any{
		"interviewScheduleId": scheduleID,
		"startTime":           startISO,
		"endTime":             endISO,
	})
}

// CreateOffer starts an offer for an application.
func (c *Client) CreateOffer(ctx context.Context, applicationID string, terms map[string]any) (map[string]any, error) {
	params := map[string]any{"applicationId": applicationID}
	for k, v := range terms {
		params[k] = v
	}
	return c.postObject(ctx, "offer.create", params)
}

// RejectApplication archives an application with a reason.
func (c *Client) RejectApplication(ctx context.Context, applicationID, archiveReasonID string) (map[string]any, error) {
	return c.postObject(ctx, "application.updateStatus", map[string]any{
		"applicationId":   applicationID,
		"status":          "Archived",
		"archiveReasonId": archiveReasonID,
	})
}

// ArchiveCandidate archives a candidate profile.
func (c *Client) ArchiveCandidate(ctx context.Context, candidateID string) (map[string]any, error) {
	return c.postObject(ctx, "candidate.archive", map[string]any{
		"candidateId": candidateID,
	})
}

// ApplyToJob creates an application for an existing candidate.
func (c *Client) ApplyToJob(ctx context.Context, candidateID, jobID string) (map[string]any, error) {
	resp, err := c.postObject(ctx, "application.create", map[string]any{
		"candidateId": candidateID,
		"jobId":       jobID,
	})
	if err != nil {
		return nil, err
	}
	c.InvalidateCaches()
	return resp, nil
}

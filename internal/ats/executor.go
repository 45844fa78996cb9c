package ats

import (
	"context"
	"fmt"

	"github.com/dativo-io/warden/internal/pending"
)

// Executor runs confirmed pending actions against the ATS. It satisfies
// the confirmation coordinator's Executor interface.
type Executor struct {
	client *Client
}

// NewExecutor wraps a client.
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client}
}

// Execute dispatches one consumed action to its ATS mutation and returns
// a short human-readable summary for the chat thread.
func (e *Executor) Execute(ctx context.Context, action pending.Action) (string, error) {
	p := payload(action.Payload)

	switch action.Kind {
	case pending.KindAddNote:
		candidateID, err := p.require("candidateId")
		if err != nil {
			return "", err
		}
		note, err := p.require("note")
		if err != nil {
			return "", err
		}
		if _, err := e.client.AddNote(ctx, candidateID, note, action.Owner); err != nil {
			return "", err
		}
		return "Note added to candidate.", nil

	case pending.KindMoveStage:
		applicationID, err := p.require("applicationId")
		if err != nil {
			return "", err
		}
		stageID, err := p.require("stageId")
		if err != nil {
			return "", err
		}
		if _, err := e.client.MoveStage(ctx, applicationID, stageID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Application moved to stage %s.", p.get("stageName", stageID)), nil

	case pending.KindCreateCandidate:
		name, err := p.require("name")
		if err != nil {
			return "", err
		}
		if _, err := e.client.CreateCandidate(ctx, name, p.get("email", ""), nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Candidate %s created.", name), nil

	case pending.KindScheduleInterview:
		applicationID, err := p.require("applicationId")
		if err != nil {
			return "", err
		}
		stageID, err := p.require("stageId")
		if err != nil {
			return "", err
		}
		start, err := p.require("startTime")
		if err != nil {
			return "", err
		}
		end, err := p.require("endTime")
		if err != nil {
			return "", err
		}
		if _, err := e.client.ScheduleInterview(ctx, applicationID, stageID, start, end, p.strings("interviewerIds")); err != nil {
			return "", err
		}
		return fmt.Sprintf("Interview scheduled for %s.", start), nil

	case pending.KindCancelInterview:
		scheduleID, err := p.require("scheduleId")
		if err != nil {
			return "", err
		}
		if _, err := e.client.CancelInterview(ctx, scheduleID); err != nil {
			return "", err
		}
		return "Interview cancelled.", nil

	case pending.KindRescheduleInterview:
		scheduleID, err := p.require("scheduleId")
		if err != nil {
			return "", err
		}
		start, err := p.require("startTime")
		if err != nil {
			return "", err
		}
		end, err := p.require("endTime")
		if err != nil {
			return "", err
		}
		if _, err := e.client.RescheduleInterview(ctx, scheduleID, start, end); err != nil {
			return "", err
		}
		return fmt.Sprintf("Interview moved to %s.", start), nil

	case pending.KindCreateOffer:
		applicationID, err := p.require("applicationId")
		if err != nil {
			return "", err
		}
		terms, _ := action.Payload["terms"].(map[string]any)
		if _, err := e.client.CreateOffer(ctx, applicationID, terms); err != nil {
			return "", err
		}
		return "Offer created.", nil

	case pending.KindRejectApplication:
		applicationID, err := p.require("applicationId")
		if err != nil {
			return "", err
		}
		if _, err := e.client.RejectApplication(ctx, applicationID, p.get("archiveReasonId", "")); err != nil {
			return "", err
		}
		return "Application rejected and archived.", nil

	case pending.KindArchiveCandidate:
		candidateID, err := p.require("candidateId")
		if err != nil {
			return "", err
		}
		if _, err := e.client.ArchiveCandidate(ctx, candidateID); err != nil {
			return "", err
		}
		return "Candidate archived.", nil

	case pending.KindApplyToJob:
		candidateID, err := p.require("candidateId")
		if err != nil {
			return "", err
		}
		jobID, err := p.require("jobId")
		if err != nil {
			return "", err
		}
		if _, err := e.client.ApplyToJob(ctx, candidateID, jobID); err != nil {
			return "", err
		}
		return "Candidate applied to job.", nil
	}

	return "", fmt.Errorf("unknown action kind %q", action.Kind)
}

// payload wraps the untyped action payload with typed accessors.
type payload map[string]any

func (p payload) require(key string) (string, error) {
	if v, ok := p[key].(string); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("action payload missing %q", key)
}

func (p payload) get(key, fallback string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func (p payload) strings(key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

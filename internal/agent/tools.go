package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dativo-io/warden/internal/access"
	"github.com/dativo-io/warden/internal/ats"
	"github.com/dativo-io/warden/internal/llm"
	"github.com/dativo-io/warden/internal/pending"
)

// defaultBatchLimit bounds list-shaped tool results so one tool call
// cannot flood the model context with an entire pipeline.
const defaultBatchLimit = 25

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// toolDefs is the catalog handed to the LLM. Read tools execute
// immediately (through the redaction engine); mutating tools only ever
// produce a proposal that waits for an acknowledgement.
func toolDefs() []llm.Tool {
	return []llm.Tool{
		// reads
		{Name: "get_pipeline_overview", Description: "Count of active applications per job and stage.", InputSchema: objectSchema(nil, map[string]any{})},
		{Name: "get_stale_candidates", Description: "Active applications stuck in their current stage for more than two weeks, excluding initial application review.", InputSchema: objectSchema(nil, map[string]any{})},
		{Name: "get_needs_decision", Description: "Active applications sitting at a decision point (offer, final round, debrief, reference).", InputSchema: objectSchema(nil, map[string]any{})},
		{Name: "search_candidates", Description: "Search candidates by name or email.", InputSchema: objectSchema([]string{"query"}, map[string]any{"query": strProp("Name or email fragment to search for.")})},
		{Name: "get_candidate_details", Description: "Full profile for one candidate, including applications.", InputSchema: objectSchema([]string{"candidateId"}, map[string]any{"candidateId": strProp("Candidate ID.")})},
		{Name: "get_candidate_notes", Description: "Notes on a candidate.", InputSchema: objectSchema([]string{"candidateId"}, map[string]any{"candidateId": strProp("Candidate ID.")})},
		{Name: "get_applications_by_job", Description: "Active applications for one job.", InputSchema: objectSchema([]string{"jobId"}, map[string]any{"jobId": strProp("Job ID.")})},
		{Name: "get_recent_applications", Description: "Recently updated active applications across all jobs.", InputSchema: objectSchema(nil, map[string]any{})},
		{Name: "get_applications_by_stage", Description: "Active applications whose current stage matches a name.", InputSchema: objectSchema([]string{"stageName"}, map[string]any{"stageName": strProp("Stage name, matched case-insensitively.")})},
		{Name: "get_open_jobs", Description: "Open jobs.", InputSchema: objectSchema(nil, map[string]any{})},
		{Name: "get_job_details", Description: "Full record for one job.", InputSchema: objectSchema([]string{"jobId"}, map[string]any{"jobId": strProp("Job ID.")})},
		{Name: "list_stages", Description: "Interview stages and their IDs.", InputSchema: objectSchema(nil, map[string]any{})},
		{Name: "get_upcoming_interviews", Description: "Scheduled upcoming interviews.", InputSchema: objectSchema(nil, map[string]any{})},
		{Name: "get_offers", Description: "Offers, optionally for one application.", InputSchema: objectSchema(nil, map[string]any{"applicationId": strProp("Application ID (optional).")})},

		// mutations: all confirmation-gated
		{Name: "add_note", Description: "Add a note to a candidate. Requires confirmation.", InputSchema: objectSchema([]string{"candidateId", "note"}, map[string]any{
			"candidateId": strProp("Candidate ID."),
			"note":        strProp("Note text."),
		})},
		{Name: "move_stage", Description: "Move an application to another interview stage. Requires confirmation.", InputSchema: objectSchema([]string{"applicationId", "stageId"}, map[string]any{
			"applicationId": strProp("Application ID."),
			"stageId":       strProp("Target interview stage ID."),
			"stageName":     strProp("Target stage name, for the confirmation text."),
		})},
		{Name: "create_candidate", Description: "Create a candidate profile. Requires confirmation.", InputSchema: objectSchema([]string{"name"}, map[string]any{
			"name":  strProp("Candidate full name."),
			"email": strProp("Candidate email (optional)."),
		})},
		{Name: "schedule_interview", Description: "Schedule an interview. Requires confirmation.", InputSchema: objectSchema([]string{"applicationId", "stageId", "startTime", "endTime"}, map[string]any{
			"applicationId":  strProp("Application ID."),
			"stageId":        strProp("Interview stage ID."),
			"startTime":      strProp("Start time, RFC3339."),
			"endTime":        strProp("End time, RFC3339."),
			"interviewerIds": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Interviewer user IDs."},
		})},
		{Name: "cancel_interview", Description: "Cancel a scheduled interview. Requires confirmation.", InputSchema: objectSchema([]string{"scheduleId"}, map[string]any{
			"scheduleId": strProp("Interview schedule ID."),
		})},
		{Name: "reschedule_interview", Description: "Move a scheduled interview to a new slot. Requires confirmation.", InputSchema: objectSchema([]string{"scheduleId", "startTime", "endTime"}, map[string]any{
			"scheduleId": strProp("Interview schedule ID."),
			"startTime":  strProp("New start time, RFC3339."),
			"endTime":    strProp("New end time, RFC3339."),
		})},
		{Name: "create_offer", Description: "Start an offer for an application. Requires confirmation.", InputSchema: objectSchema([]string{"applicationId"}, map[string]any{
			"applicationId": strProp("Application ID."),
		})},
		{Name: "reject_application", Description: "Reject and archive an application. Requires confirmation.", InputSchema: objectSchema([]string{"applicationId"}, map[string]any{
			"applicationId":   strProp("Application ID."),
			"archiveReasonId": strProp("Archive reason ID (optional)."),
		})},
		{Name: "archive_candidate", Description: "Archive a candidate profile. Requires confirmation.", InputSchema: objectSchema([]string{"candidateId"}, map[string]any{
			"candidateId": strProp("Candidate ID."),
		})},
		{Name: "apply_to_job", Description: "Apply an existing candidate to a job. Requires confirmation.", InputSchema: objectSchema([]string{"candidateId", "jobId"}, map[string]any{
			"candidateId": strProp("Candidate ID."),
			"jobId":       strProp("Job ID."),
		})},
	}
}

// errorResult wraps an error message as a JSON tool result so the model
// can relay it instead of the turn aborting.
func errorResult(msg string) string {
	out, _ := json.Marshal(map[string]any{"error": msg})
	return string(out)
}

// listResult marshals a list-shaped result, capped at batchLimit.
func listResult(items []map[string]any, batchLimit int) (string, error) {
	total := len(items)
	if batchLimit > 0 && total > batchLimit {
		items = items[:batchLimit]
	}
	out, err := json.Marshal(map[string]any{
		"total":    total,
		"returned": len(items),
		"results":  items,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling tool result: %w", err)
	}
	return string(out), nil
}

// executeReadTool dispatches one read-only tool call against the ATS.
// The result is raw; the caller redacts it before it reaches the model.
func (c *Controller) executeReadTool(ctx context.Context, name string, args map[string]any, role access.Role) (string, error) {
	p := toolArgs(args)

	switch name {
	case "get_pipeline_overview":
		summary, err := c.cfg.ATS.PipelineSummary(ctx)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(summary)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "get_stale_candidates":
		apps, err := c.cfg.ATS.StaleApplications(ctx, c.now())
		if err != nil {
			return "", err
		}
		return listResult(apps, c.batchLimit())

	case "get_needs_decision":
		apps, err := c.cfg.ATS.NeedsDecision(ctx)
		if err != nil {
			return "", err
		}
		return listResult(apps, c.batchLimit())

	case "search_candidates":
		query, err := p.require("query")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		results, err := c.cfg.ATS.SearchCandidates(ctx, query)
		if err != nil {
			return "", err
		}
		return listResult(results, c.batchLimit())

	case "get_candidate_details":
		candidateID, err := p.require("candidateId")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		candidate, err := c.cfg.ATS.GetCandidate(ctx, candidateID)
		if err != nil {
			return "", err
		}
		if role < access.RoleAdmin && ats.IsHired(candidate) {
			return errorResult("records for hired candidates are restricted"), nil
		}
		out, err := json.Marshal(candidate)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "get_candidate_notes":
		candidateID, err := p.require("candidateId")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		notes, err := c.cfg.ATS.ListNotes(ctx, candidateID)
		if err != nil {
			return "", err
		}
		return listResult(notes, c.batchLimit())

	case "get_applications_by_job":
		jobID, err := p.require("jobId")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		apps, err := c.cfg.ATS.ListApplications(ctx, jobID, "Active")
		if err != nil {
			return "", err
		}
		return listResult(apps, c.batchLimit())

	case "get_recent_applications":
		apps, err := c.cfg.ATS.ListApplications(ctx, "", "Active")
		if err != nil {
			return "", err
		}
		return listResult(apps, c.batchLimit())

	case "get_applications_by_stage":
		stageName, err := p.require("stageName")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		apps, err := c.cfg.ATS.ApplicationsInStage(ctx, stageName)
		if err != nil {
			return "", err
		}
		return listResult(apps, c.batchLimit())

	case "get_open_jobs":
		jobs, err := c.cfg.ATS.ListJobs(ctx)
		if err != nil {
			return "", err
		}
		return listResult(jobs, c.batchLimit())

	case "get_job_details":
		jobID, err := p.require("jobId")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		job, err := c.cfg.ATS.GetJob(ctx, jobID)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(job)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "list_stages":
		stages, err := c.cfg.ATS.ListStages(ctx)
		if err != nil {
			return "", err
		}
		return listResult(stages, c.batchLimit())

	case "get_upcoming_interviews":
		interviews, err := c.cfg.ATS.ListUpcomingInterviews(ctx)
		if err != nil {
			return "", err
		}
		return listResult(interviews, c.batchLimit())

	case "get_offers":
		offers, err := c.cfg.ATS.ListOffers(ctx, p.get("applicationId", ""))
		if err != nil {
			return "", err
		}
		return listResult(offers, c.batchLimit())
	}

	return errorResult(fmt.Sprintf("unknown tool %q", name)), nil
}

// proposalResult builds the requires_confirmation tool result for a
// mutating call and the pending action it describes.
func proposalResult(name string, args map[string]any, owner string) (string, *pending.Action) {
	payload := make(map[string]any, len(args))
	for k, v := range args {
		payload[k] = v
	}

	body := map[string]any{
		"action":                name,
		"requires_confirmation": true,
		"message":               "Proposed. Ask the requester to react with :white_check_mark: to confirm or :x: to cancel.",
	}
	for k, v := range payload {
		body[k] = v
	}
	out, _ := json.Marshal(body)

	return string(out), &pending.Action{
		Kind:    name,
		Payload: payload,
		Owner:   owner,
	}
}

// toolArgs wraps untyped tool arguments with typed accessors.
type toolArgs map[string]any

func (a toolArgs) require(key string) (string, error) {
	if v, ok := a[key].(string); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing required argument %q", key)
}

func (a toolArgs) get(key, fallback string) string {
	if v, ok := a[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

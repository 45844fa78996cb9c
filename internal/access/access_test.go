package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateCheck(t *testing.T) {
	gate := NewGate()

	tests := []struct {
		name      string
		operation string
		tier      Tier
		wantDeny  bool
	}{
		{"read at read_only", "get_candidate_details", TierReadOnly, false},
		{"unknown op defaults to read", "some_future_tool", TierReadOnly, false},
		{"note denied at read_only", "add_note", TierReadOnly, true},
		{"note denied at schedule_only", "add_note", TierScheduleOnly, true},
		{"note allowed at comment_only", "add_note", TierCommentOnly, false},
		{"note allowed at full_write", "add_note", TierFullWrite, false},
		{"schedule allowed at schedule_only", "schedule_interview", TierScheduleOnly, false},
		{"schedule denied at read_only", "schedule_interview", TierReadOnly, true},
		{"cancel allowed at comment_only", "cancel_interview", TierCommentOnly, false},
		{"move_stage denied at comment_only", "move_stage", TierCommentOnly, true},
		{"move_stage allowed at full_write", "move_stage", TierFullWrite, false},
		{"offer denied at schedule_only", "create_offer", TierScheduleOnly, true},
		{"archive allowed at full_write", "archive_candidate", TierFullWrite, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Check(tt.operation, tt.tier)
			if tt.wantDeny {
				require.Error(t, err)
				var denied *DeniedError
				require.True(t, errors.As(err, &denied))
				assert.Equal(t, tt.operation, denied.Operation)
				assert.Equal(t, tt.tier, denied.Actual)
				assert.Greater(t, denied.Required, denied.Actual)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGateDeniesIffBelowRequired(t *testing.T) {
	gate := NewGate()
	ops := []string{
		"add_note", "move_stage", "create_candidate", "schedule_interview",
		"cancel_interview", "reschedule_interview", "create_offer",
		"reject_application", "archive_candidate", "apply_to_job",
		"get_pipeline_overview",
	}
	for _, op := range ops {
		required := gate.RequiredTier(op)
		for tier := TierReadOnly; tier <= TierFullWrite; tier++ {
			err := gate.Check(op, tier)
			if tier < required {
				assert.Error(t, err, "op=%s tier=%s", op, tier)
			} else {
				assert.NoError(t, err, "op=%s tier=%s", op, tier)
			}
		}
	}
}

func TestDeniedErrorMessage(t *testing.T) {
	err := &DeniedError{Operation: "create_offer", Required: TierFullWrite, Actual: TierReadOnly}
	assert.Contains(t, err.Error(), "create_offer")
	assert.Contains(t, err.Error(), "full_write")
	assert.Contains(t, err.Error(), "read_only")
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"full_write", TierFullWrite},
		{"FULL_WRITE", TierFullWrite},
		{"comment_only", TierCommentOnly},
		{"schedule_only", TierScheduleOnly},
		{"read_only", TierReadOnly},
		{"", TierReadOnly},
		{"bogus", TierReadOnly},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTier(tt.in), "input %q", tt.in)
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "user", RoleUser.String())
	assert.Equal(t, "admin", RoleAdmin.String())
}

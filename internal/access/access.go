// Package access implements the ordered write-access hierarchy and the
// static operation gate consulted before any ATS call.
package access

import (
	"fmt"
	"strings"
)

// Tier is the ordered write-access level granted to the whole deployment.
// Higher tiers include everything below them.
type Tier int

const (
	TierReadOnly Tier = iota
	TierScheduleOnly
	TierCommentOnly
	TierFullWrite
)

var tierNames = map[Tier]string{
	TierReadOnly:     "read_only",
	TierScheduleOnly: "schedule_only",
	TierCommentOnly:  "comment_only",
	TierFullWrite:    "full_write",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier maps a config string to a Tier. Unknown values resolve to
// TierReadOnly so a typo in the environment can only under-grant.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full_write", "full":
		return TierFullWrite
	case "comment_only", "comment":
		return TierCommentOnly
	case "schedule_only", "schedule":
		return TierScheduleOnly
	default:
		return TierReadOnly
	}
}

// Role is the claimed viewer role of the person driving a conversation.
// Roles are claims from the chat surface, not verified identities; they
// gate what a viewer SEES, while Tier gates what the deployment may DO.
type Role int

const (
	RoleUser Role = iota
	RoleAdmin
)

func (r Role) String() string {
	if r >= RoleAdmin {
		return "admin"
	}
	return "user"
}

// DeniedError is returned when an operation requires a higher tier than
// the deployment is granted. Its message is shown to the requester as-is.
type DeniedError struct {
	Operation string
	Required  Tier
	Actual    Tier
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("operation %q requires access level %s but this deployment is configured as %s",
		e.Operation, e.Required, e.Actual)
}

// minTiers is the static table of minimum tiers per mutating operation.
// Operations absent from the table are reads and need only TierReadOnly.
var minTiers = map[string]Tier{
	"add_note":             TierCommentOnly,
	"schedule_interview":   TierScheduleOnly,
	"cancel_interview":     TierScheduleOnly,
	"reschedule_interview": TierScheduleOnly,
	"move_stage":           TierFullWrite,
	"create_candidate":     TierFullWrite,
	"create_offer":         TierFullWrite,
	"reject_application":   TierFullWrite,
	"archive_candidate":    TierFullWrite,
	"apply_to_job":         TierFullWrite,
}

// Gate answers whether a named operation is permitted at a given tier.
// The zero value is usable.
type Gate struct{}

// NewGate returns a Gate backed by the built-in operation table.
func NewGate() *Gate { return &Gate{} }

// RequiredTier returns the minimum tier for an operation.
func (g *Gate) RequiredTier(operation string) Tier {
	if t, ok := minTiers[operation]; ok {
		return t
	}
	return TierReadOnly
}

// Check returns nil when the operation is permitted at the given tier and
// a *DeniedError otherwise. Denial means the operation must not be
// attempted at all; this check happens once, before any external call.
func (g *Gate) Check(operation string, actual Tier) error {
	required := g.RequiredTier(operation)
	if actual >= required {
		return nil
	}
	return &DeniedError{Operation: operation, Required: required, Actual: actual}
}

package botauth

// RoleSkill marks an activity recipient acting as a skill. Used to decide
// whether an anonymous request still needs a synthetic skill claim.
const RoleSkill = "skill"

// Activity carries the slice of an inbound activity this subsystem needs:
// the channel the caller claims to be, the service URL replies go to, and
// the recipient's role. Wire-level activity shapes are out of scope.
type Activity struct {
	ChannelID     string
	ServiceURL    string
	RecipientRole string
}

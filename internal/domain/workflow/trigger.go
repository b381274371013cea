package workflow

// Trigger represents an event that can cause a state transition.
type Trigger string

const (
	TriggerCommit        Trigger = "COMMIT"
	TriggerCommitPartial Trigger = "COMMIT_PARTIAL"
	TriggerIgnore        Trigger = "IGNORE"
	TriggerCancel        Trigger = "CANCEL"
	TriggerFail          Trigger = "FAIL"
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}

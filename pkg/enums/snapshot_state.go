package enums

// SnapshotState is the lifecycle of a checkout snapshot line.
// pending moves to exactly one of paid or failed and never moves again.
type SnapshotState string

const (
	SnapshotStatePending SnapshotState = "pending"
	SnapshotStatePaid    SnapshotState = "paid"
	SnapshotStateFailed  SnapshotState = "failed"
)

var snapshotStates = members[SnapshotState]{SnapshotStatePending, SnapshotStatePaid, SnapshotStateFailed}

func (s SnapshotState) String() string { return string(s) }

func (s SnapshotState) IsValid() bool { return snapshotStates.has(s) }

func (s SnapshotState) IsTerminal() bool {
	return s == SnapshotStatePaid || s == SnapshotStateFailed
}

func ParseSnapshotState(value string) (SnapshotState, error) {
	return snapshotStates.parse("snapshot state", value)
}

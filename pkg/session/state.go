package session

// State is a step of the session lifecycle. A run moves forward through
// the states in order and ends in Completed or Failed.
type State int

const (
	Idle State = iota
	Navigated
	ChallengeChecked
	ConsentResolved
	ImagesView
	Harvesting
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Navigated:
		return "navigated"
	case ChallengeChecked:
		return "challenge_checked"
	case ConsentResolved:
		return "consent_resolved"
	case ImagesView:
		return "images_view"
	case Harvesting:
		return "harvesting"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

package models

// SessionStatus is the lifecycle state of a tutoring session
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// LinksParticipants reports whether a session in this state makes its
// student and teacher contacts of each other
func (s SessionStatus) LinksParticipants() bool {
	return s == SessionScheduled || s == SessionCompleted
}

// LinkingSessionStatuses lists the session states that create a contact relation
var LinkingSessionStatuses = []string{string(SessionScheduled), string(SessionCompleted)}

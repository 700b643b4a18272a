package pipeline

import "github.com/google/uuid"

// Event identifies a user-visible pipeline notification.
type Event string

const (
	EventPermissionDenied   Event = "RecordingPermissionDenied"
	EventRecordingRejected  Event = "RecordingRejected"
	EventRecordingUploaded  Event = "RecordingUploaded"
	EventUploadFailed       Event = "RecordingUploadFailed"
	EventRecordingDeleted   Event = "RecordingDeleted"
	EventAnalysisCompleted  Event = "AnalysisCompleted"
	EventAnalysisFailed     Event = "AnalysisFailed"
	EventSubmissionBlocked  Event = "SubmissionBlocked"
	EventSubmissionAccepted Event = "SubmissionAccepted"
	EventSubmissionRejected Event = "SubmissionRejected"
)

// Notifier surfaces pipeline outcomes to the student. Every error in
// the pipeline taxonomy ends up here as a notification; none of them
// crash or block other items. Submission-level events carry a nil item
// id.
type Notifier interface {
	Notify(itemID uuid.UUID, event Event, message string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(uuid.UUID, Event, string) {}

package logging

const (
	// FieldComponent is rendered as the line prefix by the console handler.
	FieldComponent = "component"
	// FieldEventType classifies a line for filtering (artifact_published, evict_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the consequence of a warning.
	FieldImpact = "impact"
	FieldWorker = "worker"
	// FieldPhase names the critical section holding the shared resource lock.
	FieldPhase    = "phase"
	FieldDeviceID = "device_id"
	FieldPath     = "path"
	// FieldRemoteID is the object store identifier of an uploaded artifact.
	FieldRemoteID = "remote_id"
	FieldBucket   = "bucket"
	FieldTopic    = "topic"
	FieldAttempt  = "attempt"
)

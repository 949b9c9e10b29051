package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. "job_started").
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldRunID identifies one daemon process lifetime.
	FieldRunID = "run_id"
	// FieldFile is the inbox filename a line refers to.
	FieldFile = "file"
	// FieldOutcome is the terminal classification of a job.
	FieldOutcome = "job_outcome"
	// FieldExitCode is the decoder exit status.
	FieldExitCode = "exit_code"
	// FieldPID is the decoder process id.
	FieldPID = "pid"
)

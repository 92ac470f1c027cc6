package domain

import "time"

// Build status filters accepted by the build listing.
const (
	BuildStatusCompleted  = "completed"
	BuildStatusInProgress = "inProgress"
)

// Build reasons that count as a deployable run.
const (
	BuildReasonIndividualCI = "individualCI"
	BuildReasonManual       = "manual"
)

// ProcessTypeYAML selects pipeline-as-code definitions.
const ProcessTypeYAML = 2

// Timeline record type and states for approval gates.
const (
	RecordTypeApproval    = "Checkpoint.Approval"
	RecordStateCompleted  = "completed"
	RecordStateInProgress = "inProgress"
)

// Definition describes a pipeline definition as listed upstream.
type Definition struct {
	ID   int
	Name string
	// LastChanged is the last-changed timestamp of the definition's latest build, zero when unknown.
	LastChanged time.Time
}

// Build is one execution of a pipeline definition.
type Build struct {
	ID           int
	DefinitionID int
	BuildNumber  string
	Status       string
	Reason       string
	QueueTime    time.Time
	StartTime    time.Time
	FinishTime   time.Time
	WebURL       string
}

// TimelineRecord is a checkpoint or stage record of a build timeline.
type TimelineRecord struct {
	ID         string
	Type       string
	Name       string
	State      string
	Result     string
	StartTime  time.Time
	FinishTime time.Time
}

// Timeline is the ordered record set of one build.
type Timeline struct {
	BuildID int
	Records []TimelineRecord
}

// Approval returns the first approval record in the given state.
func (t *Timeline) Approval(state string) (TimelineRecord, bool) {
	if t == nil {
		return TimelineRecord{}, false
	}
	for _, rec := range t.Records {
		if rec.Type == RecordTypeApproval && rec.State == state {
			return rec, true
		}
	}
	return TimelineRecord{}, false
}

// HasApproval reports whether the timeline contains any approval record.
func (t *Timeline) HasApproval() bool {
	if t == nil {
		return false
	}
	for _, rec := range t.Records {
		if rec.Type == RecordTypeApproval {
			return true
		}
	}
	return false
}

package domain

// Release is the externally visible report entry for one pending deployment.
type Release struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Version   string     `json:"version"`
	URL       string     `json:"url,omitempty"`
	WorkItems []WorkItem `json:"workItems"`
}

// CandidateKind tags where a release candidate came from.
type CandidateKind string

// Candidate kinds.
const (
	CandidatePipeline CandidateKind = "pipeline"
	CandidateClassic  CandidateKind = "classic"
)

// BuildDelta names the builds whose work items ship with a release.
// A nil Baseline means only the target build's own work items are used.
type BuildDelta struct {
	Alias    string
	Baseline *int
	Target   int
}

// ReleaseCandidate is a resolved release awaiting work item assembly.
type ReleaseCandidate struct {
	Kind    CandidateKind
	ID      int
	Name    string
	Version string
	URL     string
	Deltas  []BuildDelta
	Status  *DeploymentStatus
}

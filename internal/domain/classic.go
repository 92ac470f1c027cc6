package domain

// ReleaseApproval is a pending approval of a classic release.
type ReleaseApproval struct {
	ID              int
	ReleaseID       int
	ReleaseName     string
	DefinitionID    int
	DefinitionName  string
	EnvironmentID   int
	EnvironmentName string
}

// ReleaseArtifact is a build artifact consumed by a classic release.
type ReleaseArtifact struct {
	Alias   string
	Version string
}

// ReleaseEnvironment is a stage of a classic release.
type ReleaseEnvironment struct {
	ID                      int
	DefinitionEnvironmentID int
	Name                    string
}

// ClassicRelease is a classic release with its artifacts and environments.
type ClassicRelease struct {
	ID           int
	Name         string
	DefinitionID int
	WebURL       string
	Artifacts    []ReleaseArtifact
	Environments []ReleaseEnvironment
}

// DefinitionEnvironment returns the definition environment id of a release environment.
func (r ClassicRelease) DefinitionEnvironment(environmentID int) (int, bool) {
	for _, env := range r.Environments {
		if env.ID == environmentID {
			return env.DefinitionEnvironmentID, true
		}
	}
	return 0, false
}

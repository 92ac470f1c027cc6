package domain

import "time"

// ProductionDeployment identifies the build last approved into production.
type ProductionDeployment struct {
	At      time.Time `json:"at"`
	BuildID int       `json:"buildId"`
}

// PendingDeployment identifies a build waiting on an approval gate.
type PendingDeployment struct {
	Since   time.Time `json:"since"`
	BuildID int       `json:"buildId"`
	Version string    `json:"version"`
	URL     string    `json:"url,omitempty"`
}

// DeploymentStatus is the resolved deployment state of one pipeline definition.
type DeploymentStatus struct {
	DefinitionID             int                   `json:"definitionId"`
	Name                     string                `json:"name"`
	LastProductionDeployment *ProductionDeployment `json:"lastProductionDeployment,omitempty"`
	PendingDeployment        *PendingDeployment    `json:"pendingDeployment,omitempty"`
	LastChanged              time.Time             `json:"lastChanged"`
}

// IsPending reports whether a deployment awaits approval.
func (s DeploymentStatus) IsPending() bool {
	return s.PendingDeployment != nil
}

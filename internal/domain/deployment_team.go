package domain

// DeploymentTeamMember lists a person involved in executing the change.
type DeploymentTeamMember struct {
	ID              string
	ChangeRequestID string
	MemberName      string
	Designation     string
	Contact         string
	Role            string
}

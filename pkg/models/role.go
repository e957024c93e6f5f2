package models

// Role names the kind of worker a task is delegated to.
//
// Roles are an open set: the delegation capability may introduce new ones in
// a continuation and the orchestrator forwards them unchanged. The constants
// below are the roles the built-in prompts know about.
type Role string

const (
	// RoleExplorer surveys the target and decides how to split the work.
	// Every run starts with an Explorer at depth 0.
	RoleExplorer Role = "Explorer"
	// RoleWorker analyzes one focused slice of the target.
	RoleWorker Role = "Worker"
	// RoleSynthesizer merges child results into a single answer.
	RoleSynthesizer Role = "Synthesizer"
)

// Known returns true if the role is one of the built-in roles.
func (r Role) Known() bool {
	switch r {
	case RoleExplorer, RoleWorker, RoleSynthesizer:
		return true
	default:
		return false
	}
}

// Valid returns true if the role can be dispatched. Unknown roles are valid;
// only the empty role is rejected.
func (r Role) Valid() bool {
	return r != ""
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

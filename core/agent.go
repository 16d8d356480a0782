package core

// Stage kinds reported in AgentInfo.Type.
const (
	KindLeaf       = "leaf"
	KindSequential = "sequential"
	KindParallel   = "parallel"
)

// AgentInfo carries identifying details about the stage currently executing.
// Name is the external identifier; Type is one of the Kind* constants.
type AgentInfo struct{ Name, Type string }

package bench

// State is the lifecycle position of one benchmark session.
type State int

const (
	Uninitialized State = iota
	EnvironmentReady
	ModelLoaded
	FirstRunComplete
	RepeatsComplete
	Reported
	Failed
)

var stateNames = [...]string{
	Uninitialized:    "Uninitialized",
	EnvironmentReady: "EnvironmentReady",
	ModelLoaded:      "ModelLoaded",
	FirstRunComplete: "FirstRunComplete",
	RepeatsComplete:  "RepeatsComplete",
	Reported:         "Reported",
	Failed:           "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(?)"
	}
	return stateNames[s]
}

package attachment

// Capability names an external facility an editing session may launch.
type Capability string

const (
	CapCapture     Capability = "capture"
	CapPickContact Capability = "pick-contact"
)

// Availability reports whether a facility can currently handle requests.
// Actions whose capability is unavailable are not offered.
type Availability func(Capability) bool

// AllAvailable offers every action.
func AllAvailable(Capability) bool { return true }

// Only offers exactly the listed capabilities.
func Only(caps ...Capability) Availability {
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return func(c Capability) bool { return set[c] }
}

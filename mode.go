package fallcache

// Mode is the backend a Cache routes to. It is fixed by New and never changes.
type Mode uint8

const (
	// ModeRemote routes every call to the remote backend.
	ModeRemote Mode = iota + 1
	// ModeLocal routes to the in-process store; remote-only features report
	// ErrUnsupported.
	ModeLocal
)

func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeLocal:
		return "local"
	default:
		return "unknown"
	}
}

package domain

// CallMode selects which media an initiated call asks for.
type CallMode string

const (
	CallModeAudio CallMode = "audio"
	CallModeVideo CallMode = "video"
)

func (m CallMode) Valid() bool {
	return m == CallModeAudio || m == CallModeVideo
}

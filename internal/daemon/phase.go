package daemon

// Phase is the daemon's position in the transmission cycle.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseWaitingForWindow Phase = "waiting_for_window"
	PhaseAcquiringRig     Phase = "acquiring_rig"
	PhaseCheckingChannel  Phase = "checking_channel"
	PhaseTransmitting     Phase = "transmitting"
	PhasePostTxPause      Phase = "post_tx_pause"
	PhaseError            Phase = "error"
	PhaseStopped          Phase = "stopped"
)

func (p Phase) String() string { return string(p) }

// Safe reports whether schedule reloads may be consumed in this phase.
// A reload during an active transmission is deferred until the cycle
// completes.
func (p Phase) Safe() bool {
	switch p {
	case PhaseTransmitting, PhasePostTxPause:
		return false
	default:
		return true
	}
}

package rig

import (
	"context"
	"sync"
)

func init() {
	Register("simulated", func(cfg Config) (Controller, error) {
		return NewSimulated(), nil
	})
}

// Simulated is an in-memory rig used for development without hardware
// and as the test double for the daemon. It records every command it
// receives in order.
type Simulated struct {
	mu    sync.Mutex
	state State
	ops   []string

	signalLevel func() float64
	connectErr  error
	opErr       map[string]error
	pttStates   []bool
}

// NewSimulated returns a disconnected simulated rig reporting a quiet
// channel (-120 dBm) until scripted otherwise.
func NewSimulated() *Simulated {
	return &Simulated{
		state:       State{FrequencyHz: 145_500_000, Mode: ModeFM},
		signalLevel: func() float64 { return -120 },
		opErr:       map[string]error{},
	}
}

// SetSignalLevel scripts the value returned by SignalLevel.
func (s *Simulated) SetSignalLevel(fn func() float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signalLevel = fn
}

// FailConnect makes Connect return err until cleared with nil.
func (s *Simulated) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// FailOp makes the named operation (set_frequency, set_mode, set_power,
// set_ptt, signal_level) return err until cleared with nil.
func (s *Simulated) FailOp(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.opErr, op)
		return
	}
	s.opErr[op] = err
}

// Ops returns the recorded command sequence.
func (s *Simulated) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ops))
	copy(out, s.ops)
	return out
}

// PTTHistory returns every PTT state change in order.
func (s *Simulated) PTTHistory() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.pttStates))
	copy(out, s.pttStates)
	return out
}

// Snapshot returns the current simulated state.
func (s *Simulated) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.SignalDBm = s.signalLevel()
	return st
}

func (s *Simulated) record(op string) { s.ops = append(s.ops, op) }

func (s *Simulated) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("connect")
	if s.connectErr != nil {
		return s.connectErr
	}
	s.state.Connected = true
	return nil
}

func (s *Simulated) SetFrequency(ctx context.Context, hz int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("set_frequency")
	if err := s.opErr["set_frequency"]; err != nil {
		return &OpError{Op: "set_frequency", Err: err}
	}
	s.state.FrequencyHz = hz
	return nil
}

func (s *Simulated) SetMode(ctx context.Context, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("set_mode")
	if err := s.opErr["set_mode"]; err != nil {
		return &OpError{Op: "set_mode", Err: err}
	}
	s.state.Mode = mode
	return nil
}

func (s *Simulated) SetPower(ctx context.Context, watts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("set_power")
	if err := s.opErr["set_power"]; err != nil {
		return &OpError{Op: "set_power", Err: err}
	}
	s.state.PowerW = watts
	return nil
}

func (s *Simulated) SetPTT(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.record("ptt_on")
	} else {
		s.record("ptt_off")
	}
	if err := s.opErr["set_ptt"]; err != nil {
		return &OpError{Op: "set_ptt", Err: err}
	}
	s.state.PTT = on
	s.pttStates = append(s.pttStates, on)
	return nil
}

func (s *Simulated) SignalLevel(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("signal_level")
	if err := s.opErr["signal_level"]; err != nil {
		return 0, &OpError{Op: "signal_level", Err: err}
	}
	return s.signalLevel(), nil
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("close")
	s.state.Connected = false
	return nil
}

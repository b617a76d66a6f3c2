package gateway

import "sync/atomic"

const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Readiness tracks whether the gateway should receive traffic. It is safe
// for concurrent use.
type Readiness struct {
	state atomic.Int32
}

func NewReadiness() *Readiness {
	return &Readiness{}
}

func (r *Readiness) SetReady() {
	r.state.Store(stateReady)
}

// SetDraining stops new turns from being accepted while in-flight turns
// finish.
func (r *Readiness) SetDraining() {
	r.state.Store(stateDraining)
}

func (r *Readiness) IsReady() bool {
	return r.state.Load() == stateReady
}

func (r *Readiness) State() string {
	switch r.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

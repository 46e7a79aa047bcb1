package attention

import "go.uber.org/zap"

// State is the plain serializable form of a selector.
type State struct {
	Current               *Focus     `json:"current,omitempty"`
	Buffer                []Entry    `json:"buffer"`
	History               []Focus    `json:"history"`
	Recent                []Stimulus `json:"recent"`
	Weights               Weights    `json:"weights"`
	DistractionResistance float64    `json:"distraction_resistance"`
}

// State copies the selector into plain structures.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Buffer:                s.buffer.Items(),
		History:               s.history.Items(),
		Recent:                s.recent.Items(),
		Weights:               s.weights,
		DistractionResistance: s.resistance,
	}
	if s.current != nil {
		f := *s.current
		st.Current = &f
	}
	return st
}

// Restore replaces the selector state. Histories longer than the configured
// capacities keep their newest entries.
func (s *Selector) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.Clear()
	for _, e := range st.Buffer {
		s.buffer.Push(e)
	}
	s.history.Clear()
	for _, f := range st.History {
		s.history.Push(f)
	}
	s.recent.Clear()
	for _, r := range st.Recent {
		s.recent.Push(r)
	}
	s.current = nil
	if st.Current != nil {
		f := *st.Current
		s.current = &f
	}
	s.weights = st.Weights.Normalize()
	s.resistance = clamp01(st.DistractionResistance)

	s.logger.Debug("attention restored",
		zap.Int("buffer", s.buffer.Len()),
		zap.Bool("focused", s.current != nil))
}

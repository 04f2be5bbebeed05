package vnode

// CoreKinds maps every built-in node kind to its constructor. Group is
// absent on purpose: group expansion is driven by the graph manager, which
// instantiates the template internals before building the group shell.
func CoreKinds() map[string]Constructor {
	return map[string]Constructor{
		KindOscillator:  NewOscillator,
		KindGain:        NewGain,
		KindFilter:      NewFilter,
		KindDelay:       NewDelay,
		KindCompressor:  NewCompressor,
		KindConvolver:   NewConvolver,
		KindWorklet:     NewWorklet,
		KindMixer:       NewMixer,
		KindDestination: NewDestination,
		KindConstant:    NewConstant,
		KindADSR:        NewADSR,
		KindClock:       NewClock,
		KindSequencer:   NewSequencer,
		KindSwitch:      NewSwitch,
		KindBlockSwitch: NewBlockingSwitch,
		KindFormula:     NewFormula,
		KindInput:       NewInputMarker,
		KindOutput:      NewOutputMarker,
	}
}

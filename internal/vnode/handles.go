package vnode

import "fmt"

// Numbered boundary handles. Multi-port kinds (mixer, switch, sequencer,
// group markers) address their ports with these.
func inputHandle(i int) string  { return fmt.Sprintf("input-%d", i) }
func outputHandle(i int) string { return fmt.Sprintf("output-%d", i) }

// Package gpio drives the two binary pattern outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Output selects one of the two pattern outputs.
type Output int

const (
	OutputA Output = iota // fast output
	OutputB               // slow output in the asynchronous blink
)

// NumOutputs is the number of driven outputs.
const NumOutputs = 2

func (o Output) String() string {
	switch o {
	case OutputA:
		return "A"
	case OutputB:
		return "B"
	default:
		return fmt.Sprintf("Output(%d)", int(o))
	}
}

// Valid reports whether o names a driven output.
func (o Output) Valid() bool { return o >= 0 && o < NumOutputs }

// Writer sets output levels.
type Writer interface {
	// Set drives the output to on (true) or off (false).
	Set(out Output, on bool) error

	// Toggle inverts the output's current level.
	Toggle(out Output) error

	// Level returns the last level written.
	Level(out Output) bool

	// Close turns the outputs off and releases GPIO resources.
	Close() error
}

// Default line offsets on gpiochip0 (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultPinA = 12
	DefaultPinB = 13
)

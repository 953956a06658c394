package ptyx

import (
	"io"
)

// Proc is a started child process whose combined stdout and stderr can be read as one stream.
type Proc interface {
	// Output is the merged output stream. Reads end with io.EOF, or with an error once the
	// child has exited and the terminal side is gone.
	Output() io.Reader

	// Wait blocks until the child exits.
	Wait() error

	// Pid is the child's pid. The child leads its own process group, so it is also the pgid.
	Pid() int

	// Close releases the output stream. Call it after Wait.
	Close() error
}

// Winsize is a cross-platform terminal size definition.
type Winsize struct {
	Rows uint16
	Cols uint16
}

// DefaultWinsize is wide enough that rsync's progress lines do not wrap.
var DefaultWinsize = Winsize{Rows: 24, Cols: 250}

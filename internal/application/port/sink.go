package port

import "time"

// Sink is where the console monitor writes its board lines.
type Sink interface {
	WriteLive(line string) error
	WriteSnapshot(ts time.Time, line string) error
	NewLine() error
}

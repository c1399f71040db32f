// Package executor applies a validated plan to a project root, one action
// at a time, and runs shell commands with captured or live-forwarded output.
package executor

import (
	"fmt"
	"io"
	"sync"
)

// Stream labels which process pipe a forwarded line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// OutputSink receives log lines and, in streaming mode, command output as
// it arrives. The GUI, a terminal, or a test recorder are all just sinks;
// none of them is a structural dependency of the pipeline.
type OutputSink interface {
	Logf(format string, args ...interface{})
	Line(stream Stream, line string)
}

// WriterSink forwards everything to an io.Writer, prefixing stderr lines.
type WriterSink struct {
	W  io.Writer
	mu sync.Mutex
}

func (s *WriterSink) Logf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.W, format+"\n", args...)
}

func (s *WriterSink) Line(stream Stream, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stream == StreamStderr {
		fmt.Fprintln(s.W, "! "+line)
		return
	}
	fmt.Fprintln(s.W, line)
}

// discardSink drops everything.
type discardSink struct{}

func (discardSink) Logf(string, ...interface{}) {}
func (discardSink) Line(Stream, string)         {}

// DiscardSink is the sink used when the caller provides none.
var DiscardSink OutputSink = discardSink{}

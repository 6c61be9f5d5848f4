package process

import (
	"io"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kahiteam/spawnkit/eventbus"
)

// Label identifies which of a process's three standard streams a Stream
// instance drives.
type Label string

const (
	LabelStdin  Label = "stdin"
	LabelStdout Label = "stdout"
	LabelStderr Label = "stderr"
)

// ReadPayload is published on proc.<pid>.read.<label> for every
// non-empty chunk a readable Stream pulls off its pipe, and once more
// (with Error set, Data nil) when a read fails with an error other than
// io.EOF. Reaching EOF publishes nothing further.
type ReadPayload struct {
	Name  string
	Pid   int
	Data  []byte
	Error error
}

// WritePayload is the expected payload callers publish on
// proc.<pid>.write.<label> to push bytes to a stdin Stream.
type WritePayload struct {
	Data []byte
}

// WriteLinesPayload is the expected payload callers publish on
// proc.<pid>.writelines.<label>; each line is written in order, with a
// newline appended to any line that lacks one.
type WriteLinesPayload struct {
	Lines [][]byte
}

// Stream is bound to one Process, one Label, and owns one pipe handle.
// Reading streams (stdout/stderr) run a dedicated goroutine that blocks
// on Read and publishes every chunk. Writing streams (stdin) instead
// subscribe to their write topic and forward bytes as they arrive.
type Stream struct {
	bus    *eventbus.Emitter
	logger *slog.Logger
	name   string
	pid    int
	label  Label

	reader io.ReadCloser
	writer io.WriteCloser

	readTopic       Topic
	writeTopic      Topic
	writeLinesTopic Topic

	writeSub      eventbus.Subscription
	writeLinesSub eventbus.Subscription
	eg            errgroup.Group

	mu      sync.Mutex
	stopped bool
}

// ReadTopic names the "proc.<pid>.read.<label>" topic a Process's read
// stream publishes chunks on.
func ReadTopic(pid int, label Label) Topic {
	return Topic{"proc", strconv.Itoa(pid), "read", string(label)}
}

// WriteTopic names the "proc.<pid>.write.<label>" topic a caller
// publishes WritePayloads on to push bytes into a stdin Stream.
func WriteTopic(pid int, label Label) Topic {
	return Topic{"proc", strconv.Itoa(pid), "write", string(label)}
}

// WriteLinesTopic names the "proc.<pid>.writelines.<label>" topic for
// WriteLinesPayloads.
func WriteLinesTopic(pid int, label Label) Topic {
	return Topic{"proc", strconv.Itoa(pid), "writelines", string(label)}
}

// NewReadStream builds a Stream that drains a readable pipe (stdout or
// stderr) and publishes each chunk.
func NewReadStream(bus *eventbus.Emitter, logger *slog.Logger, name string, pid int, label Label, reader io.ReadCloser) *Stream {
	return &Stream{
		bus: bus, logger: logger, name: name, pid: pid, label: label,
		reader: reader, readTopic: ReadTopic(pid, label),
	}
}

// NewWriteStream builds a Stream that forwards published bytes to a
// writable pipe (stdin).
func NewWriteStream(bus *eventbus.Emitter, logger *slog.Logger, name string, pid int, label Label, writer io.WriteCloser) *Stream {
	return &Stream{
		bus: bus, logger: logger, name: name, pid: pid, label: label,
		writer: writer,
		writeTopic: WriteTopic(pid, label), writeLinesTopic: WriteLinesTopic(pid, label),
	}
}

// Start begins read callbacks (for readable streams) and subscribes the
// write handler (for writable streams).
func (s *Stream) Start() {
	if s.reader != nil {
		s.eg.Go(s.readLoop)
	}
	if s.writer != nil {
		s.writeSub = s.bus.Subscribe(s.writeTopic, s.onWrite, false)
		s.writeLinesSub = s.bus.Subscribe(s.writeLinesTopic, s.onWriteLines, false)
	}
}

func (s *Stream) readLoop() error {
	buf := make([]byte, 8192)
	for {
		n, err := s.reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.bus.Publish(s.readTopic, ReadPayload{Name: s.name, Pid: s.pid, Data: chunk})
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			s.bus.Publish(s.readTopic, ReadPayload{Name: s.name, Pid: s.pid, Error: err})
			return err
		}
	}
}

func (s *Stream) onWrite(topic Topic, payload any) {
	p, ok := payload.(WritePayload)
	if !ok || s.writer == nil {
		return
	}
	if _, err := s.writer.Write(p.Data); err != nil && s.logger != nil {
		s.logger.Error("process: stream write failed", "pid", s.pid, "label", s.label, "error", err)
	}
}

func (s *Stream) onWriteLines(topic Topic, payload any) {
	p, ok := payload.(WriteLinesPayload)
	if !ok || s.writer == nil {
		return
	}
	for _, line := range p.Lines {
		if len(line) == 0 || line[len(line)-1] != '\n' {
			line = append(append([]byte(nil), line...), '\n')
		}
		if _, err := s.writer.Write(line); err != nil {
			if s.logger != nil {
				s.logger.Error("process: stream writelines failed", "pid", s.pid, "label", s.label, "error", err)
			}
			return
		}
	}
}

// SpeculativeRead blocks until the readable stream's goroutine has
// observed EOF (or errored), guaranteeing every byte buffered before
// child exit has been published: the child's own death closes its end
// of the pipe, so the read goroutine drains whatever is left and then
// unblocks on its own. A drain that ends in a non-EOF error is logged,
// not propagated. Calling it on a writable Stream is a no-op.
func (s *Stream) SpeculativeRead() {
	if err := s.eg.Wait(); err != nil && s.logger != nil {
		s.logger.Error("process: stream drain ended with error",
			"pid", s.pid, "label", s.label, "error", err)
	}
}

// Stop unsubscribes write handlers and closes the pipe. Idempotent and
// tolerant of an already-closed pipe.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if s.writer != nil {
		s.bus.Unsubscribe(s.writeSub)
		s.bus.Unsubscribe(s.writeLinesSub)
		_ = s.writer.Close()
	}
	if s.reader != nil {
		_ = s.reader.Close()
		_ = s.eg.Wait()
	}
}

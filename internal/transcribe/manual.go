package transcribe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/kioskvoice/pkg/audio"
)

// ManualPrompt is written before waiting for a typed line.
const ManualPrompt = "음성 인식을 사용할 수 없습니다. 원하시는 내용을 입력해주세요: "

type line struct {
	text string
	err  error
}

// Manual reads one typed line per call. A single background goroutine owns
// the reader, so a call abandoned on context cancellation leaves the next
// line for the following call.
type Manual struct {
	in     io.Reader
	prompt io.Writer
	filter Filter

	once  sync.Once
	lines chan line
}

var _ Transcriber = (*Manual)(nil)

// NewManual reads lines from in and writes [ManualPrompt] to prompt, which
// may be nil. Typed lines pass through f like spoken transcripts.
func NewManual(in io.Reader, prompt io.Writer, f Filter) *Manual {
	return &Manual{in: in, prompt: prompt, filter: f, lines: make(chan line)}
}

func (m *Manual) start() {
	go func() {
		sc := bufio.NewScanner(m.in)
		for sc.Scan() {
			m.lines <- line{text: sc.Text()}
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		for {
			m.lines <- line{err: err}
		}
	}()
}

// ReadLine waits for the next line. A blank or filtered line yields an error
// matching [ErrEmpty]. The reader reaching EOF yields [ErrUnavailable].
func (m *Manual) ReadLine(ctx context.Context) (string, error) {
	m.once.Do(m.start)
	if m.prompt != nil {
		fmt.Fprint(m.prompt, ManualPrompt)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-m.lines:
		if l.err != nil {
			return "", fmt.Errorf("%w: manual entry: %w", ErrUnavailable, l.err)
		}
		return m.filter.Apply(l.text)
	}
}

// Transcribe implements [Transcriber] by ignoring the clip and reading a line.
func (m *Manual) Transcribe(ctx context.Context, _ audio.Clip) (string, error) {
	return m.ReadLine(ctx)
}

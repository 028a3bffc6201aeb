package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"sylph/internal/landmark"
)

// ErrExhausted - a non-looping script has no frames left.
var ErrExhausted = errors.New("frame script exhausted")

// Script replays a recorded landmark sequence in order. Frames keep their
// recorded timestamps, so time-based analysis (breath phases, movement
// rates) reproduces the original run.
type Script struct {
	mu     sync.Mutex
	frames []*landmark.Frame
	idx    int
	loop   bool
}

// NewScript wraps frames as a frame source. With loop set the sequence
// wraps around; replaying wrapped timestamps confuses rate estimation, so
// looping is only for soak-style runs that ignore the numbers.
func NewScript(frames []*landmark.Frame, loop bool) *Script {
	return &Script{frames: frames, loop: loop}
}

func (s *Script) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) > 0 && (s.loop || s.idx < len(s.frames))
}

func (s *Script) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return 0, 0
	}
	return s.frames[0].Width, s.frames[0].Height
}

func (s *Script) Acquire(ctx context.Context) (*landmark.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, ErrExhausted
		}
		s.idx = 0
	}
	f := s.frames[s.idx]
	s.idx++
	return f, nil
}

// Len is the total number of scripted frames.
func (s *Script) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Remaining counts frames not yet replayed in the current pass.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) - s.idx
}

// ReadScript decodes newline-delimited JSON, one landmark frame per line.
// Blank lines are skipped; a malformed line fails with its line number.
func ReadScript(r io.Reader) ([]*landmark.Frame, error) {
	sc := bufio.NewScanner(r)
	// A dense refined mesh serializes to tens of KB per line.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out []*landmark.Frame
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var f landmark.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("script line %d: %w", line, err)
		}
		out = append(out, &f)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

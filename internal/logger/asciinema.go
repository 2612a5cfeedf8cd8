// Package logger records terminal session transcripts in Asciinema v2 format.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Header is the first line of an Asciinema v2 recording.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Env       map[string]string `json:"env,omitempty"`
}

// Event is one recorded event line: [time_offset, type, data] where
// type is "o" for output and "i" for input.
type Event struct {
	TimeOffset float64
	Type       string
	Data       string
}

// MarshalJSON renders the event as the three-element JSON array the
// format requires.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeOffset, e.Type, e.Data})
}

// UnmarshalJSON parses the three-element array form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event: expected 3 elements, got %d", len(arr))
	}

	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset")
	}
	typ, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event type")
	}
	payload, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event data")
	}

	e.TimeOffset = offset
	e.Type = typ
	e.Data = payload
	return nil
}

// Recorder writes a session transcript as Asciinema v2 JSON lines.
type Recorder struct {
	mu        sync.Mutex
	w         io.Writer
	file      *os.File // set only when the recorder owns the file
	startTime time.Time
}

// NewRecorder creates a Recorder writing to the file at path.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}
	return &Recorder{w: f, file: f, startTime: time.Now()}, nil
}

// NewRecorderWithWriter creates a Recorder writing to w. Useful for tests.
func NewRecorderWithWriter(w io.Writer) *Recorder {
	return &Recorder{w: w, startTime: time.Now()}
}

// WriteHeader writes the v2 header line. Call once before any event.
func (r *Recorder) WriteHeader(cols, rows int, env map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	header := Header{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: r.startTime.Unix(),
		Env:       env,
	}
	return r.writeLine(header)
}

// WriteOutput records terminal output.
func (r *Recorder) WriteOutput(data []byte) error {
	return r.writeEvent("o", data)
}

// WriteInput records client input.
func (r *Recorder) WriteInput(data []byte) error {
	return r.writeEvent("i", data)
}

func (r *Recorder) writeEvent(typ string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeLine(Event{
		TimeOffset: time.Since(r.startTime).Seconds(),
		Type:       typ,
		Data:       string(data),
	})
}

func (r *Recorder) writeLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript line: %w", err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transcript line: %w", err)
	}
	return nil
}

// StartTime returns when the recording began.
func (r *Recorder) StartTime() time.Time {
	return r.startTime
}

// Close closes the transcript file, if the recorder owns one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

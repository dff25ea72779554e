// ABOUTME: Typed events delivered for one assistant turn and their wire decoding
// ABOUTME: Each wire event name maps to one Go type so payload shape is checked at decode time

package turn

import (
	"encoding/json"
	"fmt"
)

// Wire names of the events a turn can receive.
const (
	NameStage1Start    = "stage1_start"
	NameStage1Complete = "stage1_complete"
	NameStage2Start    = "stage2_start"
	NameStage2Complete = "stage2_complete"
	NameStage3Start    = "stage3_start"
	NameStage3Complete = "stage3_complete"
	NameTitleComplete  = "title_complete"
	NameComplete       = "complete"
	NameError          = "error"
)

// Event is one named event of a turn's stream.
type Event interface {
	// Name returns the wire name of the event.
	Name() string
}

// Stage1Start marks the start of stage 1.
type Stage1Start struct{}

// Stage1Complete carries the stage 1 result.
type Stage1Complete struct {
	Data json.RawMessage
}

// Stage2Start marks the start of stage 2.
type Stage2Start struct{}

// Stage2Complete carries the stage 2 result and the metadata that goes with it.
type Stage2Complete struct {
	Data     json.RawMessage
	Metadata json.RawMessage
}

// Stage3Start marks the start of stage 3.
type Stage3Start struct{}

// Stage3Complete carries the stage 3 result.
type Stage3Complete struct {
	Data json.RawMessage
}

// TitleComplete announces that the backend generated a conversation title.
type TitleComplete struct {
	Title string
}

// Complete ends a turn successfully.
type Complete struct{}

// Error ends a turn with a failure reported by the backend.
type Error struct {
	Message string
}

// Unknown is any event whose name is not recognized.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Stage1Start) Name() string    { return NameStage1Start }
func (Stage1Complete) Name() string { return NameStage1Complete }
func (Stage2Start) Name() string    { return NameStage2Start }
func (Stage2Complete) Name() string { return NameStage2Complete }
func (Stage3Start) Name() string    { return NameStage3Start }
func (Stage3Complete) Name() string { return NameStage3Complete }
func (TitleComplete) Name() string  { return NameTitleComplete }
func (Complete) Name() string       { return NameComplete }
func (Error) Name() string          { return NameError }
func (u Unknown) Name() string      { return u.Type }

// IsTerminal reports whether ev ends a turn.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Complete, Error:
		return true
	default:
		return false
	}
}

// wirePayload is the union of every field a frame may carry.
type wirePayload struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Metadata json.RawMessage `json:"metadata"`
	Message  string          `json:"message"`
}

// titleData is the shape of the data field of title_complete.
type titleData struct {
	Title string `json:"title"`
}

// Known reports whether name is one of the events a turn understands.
func Known(name string) bool {
	switch name {
	case NameStage1Start, NameStage1Complete, NameStage2Start, NameStage2Complete,
		NameStage3Start, NameStage3Complete, NameTitleComplete, NameComplete, NameError:
		return true
	default:
		return false
	}
}

// Decode builds the typed event for a wire frame. name may be empty, in which
// case the frame's "type" field names the event. An empty or absent body is
// accepted for events that carry no payload. A frame named by its event line
// with an unrecognized name is returned as Unknown without reading its body.
func Decode(name string, data []byte) (Event, error) {
	if name != "" && !Known(name) {
		return Unknown{Type: name, Raw: json.RawMessage(data)}, nil
	}

	var p wirePayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding %q payload: %w", name, err)
		}
	}
	if name == "" {
		name = p.Type
	}

	switch name {
	case NameStage1Start:
		return Stage1Start{}, nil
	case NameStage1Complete:
		return Stage1Complete{Data: p.Data}, nil
	case NameStage2Start:
		return Stage2Start{}, nil
	case NameStage2Complete:
		return Stage2Complete{Data: p.Data, Metadata: p.Metadata}, nil
	case NameStage3Start:
		return Stage3Start{}, nil
	case NameStage3Complete:
		return Stage3Complete{Data: p.Data}, nil
	case NameTitleComplete:
		var td titleData
		if len(p.Data) > 0 {
			// A title payload we cannot read still triggers the list refresh.
			_ = json.Unmarshal(p.Data, &td)
		}
		return TitleComplete{Title: td.Title}, nil
	case NameComplete:
		return Complete{}, nil
	case NameError:
		return Error{Message: p.Message}, nil
	default:
		return Unknown{Type: name, Raw: json.RawMessage(data)}, nil
	}
}

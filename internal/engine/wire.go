package engine

import (
	"encoding/json"
	"fmt"
)

// Wire type names, one JSON object per line on the engine's stdout.
const (
	wireProgress          = "progress"
	wireError             = "error"
	wireComplete          = "complete"
	wireAnalyticsComplete = "analyticsComplete"
)

type wireLine struct {
	Type     string          `json:"type"`
	Progress *wireStatus     `json:"progress,omitempty"`
	Error    *wireStatus     `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

type wireStatus struct {
	Step    string `json:"step"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// DecodeLine parses one protocol line into an Event tagged with sessionID.
func DecodeLine(line []byte, sessionID string) (Event, error) {
	var w wireLine
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}

	switch w.Type {
	case wireProgress:
		if w.Progress == nil {
			return nil, fmt.Errorf("progress event without progress payload")
		}
		step, err := ParseStep(w.Progress.Step)
		if err != nil {
			return nil, err
		}
		return ProgressEvent{SessionID: sessionID, Step: step, Message: w.Progress.Message}, nil

	case wireError:
		if w.Error == nil {
			return nil, fmt.Errorf("error event without error payload")
		}
		step, err := ParseStep(w.Error.Step)
		if err != nil {
			return nil, err
		}
		return ErrorEvent{SessionID: sessionID, Step: step, Title: w.Error.Title, Message: w.Error.Message}, nil

	case wireComplete:
		var r PrimaryResult
		if err := decodeResult(w.Result, &r); err != nil {
			return nil, fmt.Errorf("decoding complete result: %w", err)
		}
		return CompleteEvent{SessionID: sessionID, Result: r}, nil

	case wireAnalyticsComplete:
		var r AnalyticsResult
		if err := decodeResult(w.Result, &r); err != nil {
			return nil, fmt.Errorf("decoding analytics result: %w", err)
		}
		return AnalyticsCompleteEvent{SessionID: sessionID, Result: r}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, w.Type)
	}
}

func decodeResult(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing result")
	}
	return json.Unmarshal(raw, v)
}

// EncodeLine renders an Event as one protocol line (without trailing newline).
// The session id is not part of the line; it is implied by the process.
func EncodeLine(e Event) ([]byte, error) {
	var w wireLine
	switch ev := e.(type) {
	case ProgressEvent:
		w = wireLine{Type: wireProgress, Progress: &wireStatus{Step: ev.Step.WireName(), Message: ev.Message}}
	case ErrorEvent:
		w = wireLine{Type: wireError, Error: &wireStatus{Step: ev.Step.WireName(), Title: ev.Title, Message: ev.Message}}
	case CompleteEvent:
		raw, err := json.Marshal(ev.Result)
		if err != nil {
			return nil, err
		}
		w = wireLine{Type: wireComplete, Result: raw}
	case AnalyticsCompleteEvent:
		raw, err := json.Marshal(ev.Result)
		if err != nil {
			return nil, err
		}
		w = wireLine{Type: wireAnalyticsComplete, Result: raw}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventType, e)
	}
	return json.Marshal(w)
}

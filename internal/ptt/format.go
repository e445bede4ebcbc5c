package ptt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Details holds the optional payload fields shown to users. A nil field
// was absent (or not a string); a non-nil field may still be blank.
type Details struct {
	Status     *string
	CaptureID  *string
	Transcript *string
}

// ParseDetails extracts the known string fields from a payload object.
func ParseDetails(payload json.RawMessage) Details {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Details{}
	}
	return Details{
		Status:     stringField(fields, "status"),
		CaptureID:  stringField(fields, "captureId"),
		Transcript: stringField(fields, "transcript"),
	}
}

func stringField(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

// Lines returns the detail lines in fixed order: status, captureId,
// transcript. Blank values produce no line.
func (d Details) Lines() []string {
	var lines []string
	for _, f := range []struct {
		label string
		value *string
	}{
		{"status", d.Status},
		{"captureId", d.CaptureID},
		{"transcript", d.Transcript},
	} {
		if f.value == nil || strings.TrimSpace(*f.value) == "" {
			continue
		}
		lines = append(lines, f.label+": "+*f.value)
	}
	return lines
}

// Header returns the first line of the human-readable form.
func Header(action Action, result InvocationResult) string {
	if !result.OK {
		return fmt.Sprintf("PTT %s failed → %s", action.Name(), result.NodeID)
	}
	return fmt.Sprintf("PTT %s → %s", action.Name(), result.NodeID)
}

// RenderText returns the human-readable form of result. Both front ends
// print exactly this text.
func RenderText(action Action, result InvocationResult) string {
	lines := append([]string{Header(action, result)}, ParseDetails(result.Payload).Lines()...)
	return strings.Join(lines, "\n")
}

// RenderJSON returns the payload indented with two spaces, keys in the
// order the node sent them.
func RenderJSON(result InvocationResult) (string, error) {
	payload := bytes.TrimSpace(result.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return "", fmt.Errorf("ptt: format payload: %w", err)
	}
	return buf.String(), nil
}

// Package patcher merges a candidate file into the current one through a
// fast-apply model endpoint, or replaces it outright.
package patcher

import (
	"context"
	"fmt"
	"strings"

	"live_artifact_editor/generator"
)

// Mode selects how a candidate reaches the artifact.
type Mode string

const (
	// ModeApply routes the candidate through the remote apply service.
	ModeApply Mode = "apply"
	// ModeReplace writes the candidate as the whole new file.
	ModeReplace Mode = "replace"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeApply):
		return ModeApply, nil
	case string(ModeReplace):
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("unknown patch mode %q", s)
	}
}

// PatchRequest is what the apply service sees.
type PatchRequest struct {
	Before      string `json:"before"`
	Instruction string `json:"instruction"`
	Candidate   string `json:"candidate"`
}

// PatchResult mirrors generator.GenerationResult for the merged text.
type PatchResult struct {
	Raw       string          `json:"raw"`
	Sanitized string          `json:"sanitized"`
	Fixes     generator.Fixes `json:"fixes"`
}

// Patcher returns the merged text for a request. The output is not verified.
type Patcher interface {
	Apply(ctx context.Context, req PatchRequest) (string, error)
}

// Replace skips the round trip: the instruction is always a whole-file
// replacement, so the candidate already is the answer.
type Replace struct{}

func (Replace) Apply(_ context.Context, req PatchRequest) (string, error) {
	return req.Candidate, nil
}

// Instruction is the fixed natural-language instruction naming the artifact and idea.
func Instruction(path, idea, component string) string {
	return fmt.Sprintf(
		"Replace the entire contents of %s with the updated %s component, which implements the game %q. "+
			"Discard every line of the old file; keep nothing from it.",
		path, component, strings.TrimSpace(idea))
}

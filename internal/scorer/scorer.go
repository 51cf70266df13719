// Package scorer wraps the external facial-similarity scorer process.
//
// The scorer is an untyped boundary: an executable that receives a reference
// image path and a directory of candidate images, and prints a JSON list of
// candidates to stdout, possibly surrounded by free-form log noise. This
// package narrows it to the Scorer interface so ingestion logic can be tested
// against a fake without spawning a real process.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrProcess reports that the scorer exited non-zero or timed out. Any
	// partial output is disregarded.
	ErrProcess = errors.New("scorer process failed")
	// ErrOutput reports that the scorer exited cleanly but its stdout did not
	// contain a parseable candidate list.
	ErrOutput = errors.New("scorer output not parseable")
)

// Candidate is one scorer-produced entry linking the reference image to a
// candidate image. Identity is a path-like string naming the candidate file;
// lower distance means more similar.
type Candidate struct {
	Identity   string  `json:"identity"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Scorer scores a reference image against a directory of candidate images.
type Scorer interface {
	Score(ctx context.Context, referenceImage, candidateDir string) ([]Candidate, error)
}

// Process runs the scorer as a child process bounded by a timeout.
type Process struct {
	// Command is the executable to spawn; Script, when non-empty, is passed
	// as its first argument (e.g. python3 + compare.py).
	Command string
	Script  string
	Timeout time.Duration
}

// NewProcess returns a Process scorer for the given command line.
func NewProcess(command, script string, timeout time.Duration) *Process {
	return &Process{Command: command, Script: script, Timeout: timeout}
}

// Score spawns the scorer and parses its stdout. The child is killed when
// the timeout elapses; a timeout is reported the same way as a non-zero
// exit, since partial output from a killed scorer is worthless.
func (p *Process) Score(ctx context.Context, referenceImage, candidateDir string) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var args []string
	if p.Script != "" {
		args = append(args, p.Script)
	}
	args = append(args, referenceImage, candidateDir)

	cmd := exec.CommandContext(ctx, p.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: timed out after %s", ErrProcess, p.Timeout)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrProcess, detail)
	}

	return Parse(stdout.Bytes())
}

// Parse extracts the candidate list from raw scorer stdout. The list is
// located as the outermost bracketed structure, so banner lines or progress
// noise around it do not break parsing.
func Parse(out []byte) ([]Candidate, error) {
	start := bytes.IndexByte(out, '[')
	end := bytes.LastIndexByte(out, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no bracketed list in output", ErrOutput)
	}

	var candidates []Candidate
	if err := json.Unmarshal(out[start:end+1], &candidates); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutput, err)
	}
	return candidates, nil
}

// Package transcript persists call conversations as JSON documents.
//
// While a call is open its conversation is rewritten to a live document after
// every turn, so a crash or dropped socket loses at most the turn in flight. When
// the stream stops the conversation is written under a permanent name carrying
// the call SID and completion time, and the live document is removed.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrOutsideDir is returned for paths that resolve outside the recorder's directory.
var ErrOutsideDir = errors.New("path outside transcripts dir")

// Role identifies who spoke a turn.
type Role string

const (
	RoleAgent   Role = "agent"
	RolePatient Role = "patient"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Document is the on-disk shape of both live and final transcripts.
type Document struct {
	ScenarioID string `json:"scenario_id"`
	CallSid    string `json:"call_sid,omitempty"`
	Transcript []Turn `json:"transcript"`
}

// Recorder writes transcript documents into a directory. Each call writes only
// its own files, so a Recorder may be shared by all sessions.
type Recorder struct {
	dir    string
	logger *zap.Logger
}

// NewRecorder creates dir if needed and returns a recorder writing into it.
func NewRecorder(dir string, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve transcripts dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcripts dir: %w", err)
	}
	return &Recorder{dir: dir, logger: logger.With(zap.String("component", "transcript"))}, nil
}

// Dir returns the directory transcripts are written to.
func (r *Recorder) Dir() string {
	return r.dir
}

// LivePath returns the in-progress document path for a stream.
func (r *Recorder) LivePath(streamSid, scenarioID string) string {
	return filepath.Join(r.dir, fmt.Sprintf("call_live_%s_%s.json", SafeName(streamSid), SafeName(scenarioID)))
}

// FinalPath returns the permanent document path for a completed call.
func (r *Recorder) FinalPath(callSid, scenarioID string, completed time.Time) string {
	return filepath.Join(r.dir, fmt.Sprintf("call_%s_%s_%d.json", SafeName(callSid), SafeName(scenarioID), completed.Unix()))
}

// SafeName maps an ID from the wire to a file name component: every character
// outside [A-Za-z0-9_-] becomes '_', and an empty ID becomes "unknown".
func SafeName(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}

// contain rejects paths that escape the recorder's directory.
func (r *Recorder) contain(path string) error {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%s: %w", path, ErrOutsideDir)
	}
	return nil
}

// SaveLive rewrites the live document. An empty conversation writes nothing.
func (r *Recorder) SaveLive(path, scenarioID string, turns []Turn) error {
	if path == "" || len(turns) == 0 {
		return nil
	}
	return r.write(path, Document{ScenarioID: scenarioID, Transcript: turns})
}

// Finalize writes the permanent document for callSid and removes the live one.
// It returns the permanent path.
func (r *Recorder) Finalize(livePath, callSid, scenarioID string, turns []Turn, completed time.Time) (string, error) {
	if callSid == "" {
		callSid = "unknown"
	}
	if turns == nil {
		turns = []Turn{}
	}

	finalPath := r.FinalPath(callSid, scenarioID, completed)
	if err := r.write(finalPath, Document{ScenarioID: scenarioID, CallSid: callSid, Transcript: turns}); err != nil {
		return "", err
	}

	if livePath != "" {
		if err := r.contain(livePath); err != nil {
			return finalPath, err
		}
		if err := os.Remove(livePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return finalPath, fmt.Errorf("remove live transcript: %w", err)
		}
	}
	return finalPath, nil
}

// write replaces path atomically with the JSON encoding of doc.
func (r *Recorder) write(path string, doc Document) error {
	if err := r.contain(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".transcript-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp transcript: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close transcript: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename transcript: %w", err)
	}

	r.logger.Debug("saved transcript", zap.String("path", path), zap.Int("turns", len(doc.Transcript)))
	return nil
}

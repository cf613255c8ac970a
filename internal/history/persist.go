package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the on-disk form of a saved conversation.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
	Messages  []Message `json:"messages"`
}

// Save writes the conversation to path as JSON. When path is empty a
// timestamped file is created under dir.
func (c *Context) Save(path, dir, sessionID string) (string, error) {
	if path == "" {
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create save directory: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("conversation_%s.json", time.Now().Format("20060102_150405")))
	}

	snap := Snapshot{
		SessionID: sessionID,
		SavedAt:   time.Now(),
		Messages:  c.Messages(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal conversation: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write conversation: %w", err)
	}
	return path, nil
}

// Load replaces the conversation with the snapshot at path. Messages
// beyond the ceiling are evicted on load the same way Append would.
func (c *Context) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read conversation: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse conversation: %w", err)
	}

	c.messages = nil
	for _, m := range snap.Messages {
		c.append(m)
	}
	return nil
}

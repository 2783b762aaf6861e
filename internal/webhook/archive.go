package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
)

// ObjectWriter stores a single object under key.
type ObjectWriter interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
}

// Archiver writes every event as a JSON object keyed by envelope and event
// id, so replays overwrite rather than duplicate.
type Archiver struct {
	objects ObjectWriter
	prefix  string
}

func NewArchiver(objects ObjectWriter, prefix string) *Archiver {
	return &Archiver{objects: objects, prefix: prefix}
}

func (a *Archiver) HandleEvent(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	if err := a.objects.PutObject(ctx, a.Key(ev), payload, "application/json"); err != nil {
		return fmt.Errorf("archive event %s: %w", ev.ID, err)
	}
	return nil
}

func (a *Archiver) Key(ev Event) string {
	owner := ev.EnvelopeID
	if owner == "" {
		owner = "document-" + ev.DocumentID
	}
	return path.Join(a.prefix, owner, ev.ID+".json")
}

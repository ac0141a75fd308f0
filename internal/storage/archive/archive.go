// Package archive exports finished conversation transcripts to durable
// blob storage, local disk or S3-compatible.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/store"
)

// Storage is a flat blob store keyed by slash-separated paths.
type Storage interface {
	// Write stores data at the given path, creating or replacing it.
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves the data at the given path.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether data exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)
}

// New builds the configured Storage backend.
func New(cfg config.ArchiveConfig) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}

// Transcript is the archived form of a conversation.
type Transcript struct {
	Conversation core.Conversation    `json:"conversation"`
	Messages     []core.StoredMessage `json:"messages"`
	ArchivedAt   time.Time            `json:"archived_at"`
}

// Exporter serializes conversations out of the store into the archive.
type Exporter struct {
	store   store.Store
	storage Storage
}

// NewExporter creates an exporter over the given store and backend.
func NewExporter(st store.Store, storage Storage) *Exporter {
	return &Exporter{store: st, storage: storage}
}

// transcriptPath keys transcripts by conversation ID.
func transcriptPath(conversationID string) string {
	return "conversations/" + conversationID + ".json"
}

// Export writes the conversation's transcript JSON to the archive and
// returns its path. The conversation stays in the store; archival is a
// copy, not a move.
func (e *Exporter) Export(ctx context.Context, conversationID string) (string, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	msgs, err := e.store.Messages(ctx, conversationID)
	if err != nil {
		return "", err
	}

	t := Transcript{
		Conversation: *conv,
		Messages:     msgs,
		ArchivedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", core.WrapError(core.ErrArchiveFailed, err)
	}

	path := transcriptPath(conversationID)
	if err := e.storage.Write(ctx, path, data); err != nil {
		return "", core.WrapError(core.ErrArchiveFailed, err)
	}
	return path, nil
}

// Load reads a previously archived transcript.
func (e *Exporter) Load(ctx context.Context, conversationID string) (*Transcript, error) {
	data, err := e.storage.Read(ctx, transcriptPath(conversationID))
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, err)
	}
	return &t, nil
}

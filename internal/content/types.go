package content

import (
	"time"

	"github.com/hari2309s/meerkat-sub001/internal/blobcipher"
)

// Note is a private journal entry. A note marked shared also has a projection
// in the shared document, encrypted under the sharedNotes key; the flag and
// the projection are kept consistent by the share/unshare operations.
type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	IsShared  bool      `json:"isShared"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Analysis is the transcription and mood read attached to a voice memo after
// the fact.
type Analysis struct {
	Transcript string    `json:"transcript"`
	Mood       string    `json:"mood"`
	Tone       string    `json:"tone"`
	Valence    float64   `json:"valence"`
	Arousal    float64   `json:"arousal"`
	Confidence float64   `json:"confidence"`
	AnalysedAt time.Time `json:"analysedAt"`
}

// VoiceMemo records one captured audio clip. The audio bytes live in the blob
// store under BlobRef; the memo carries only the pointer.
type VoiceMemo struct {
	ID              string    `json:"id"`
	BlobRef         string    `json:"blobRef"`
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
	Analysis        *Analysis `json:"analysis,omitempty"`
}

// MoodEntry is one append-only mood journal record, usually derived from a
// voice memo's analysis.
type MoodEntry struct {
	ID          string    `json:"id"`
	VoiceMemoID string    `json:"voiceMemoId,omitempty"`
	Mood        string    `json:"mood"`
	Valence     float64   `json:"valence"`
	Arousal     float64   `json:"arousal"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// DropboxItem is one visitor-deposited payload. The payload is encrypted
// under the dropbox namespace key, which visitors do not hold: they can
// deposit but never read back.
type DropboxItem struct {
	ID               string                   `json:"id"`
	EncryptedPayload blobcipher.EncryptedBlob `json:"encryptedPayload"`
	VisitorID        string                   `json:"visitorId"`
	DroppedAt        time.Time                `json:"droppedAt"`
}

// PresenceInfo describes one connected visitor. Presence is session state:
// it is replicated but never journaled, so a restart starts from empty.
type PresenceInfo struct {
	VisitorID   string    `json:"visitorId"`
	DisplayName string    `json:"displayName"`
	Scopes      []string  `json:"scopes,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

package domain

import "time"

// MaxAttachmentBytes bounds attachments and biometric captures.
const MaxAttachmentBytes = 1 << 20

// Attachment describes a message attachment. The bytes live in the blob store
// under Ref.
type Attachment struct {
	Name     string `json:"name" bson:"name"`
	MimeType string `json:"mime_type" bson:"mime_type"`
	Size     int    `json:"size" bson:"size"`
	Ref      string `json:"-" bson:"ref"`
}

// Message is an entry of the append-only channel log. Sender and Recipient are
// callsign snapshots taken at send time; RecipientUserID carries the routing
// identity of a directed message.
type Message struct {
	ID              string      `json:"id" bson:"_id"`
	Seq             int64       `json:"seq" bson:"seq"`
	Sender          string      `json:"sender" bson:"sender"`
	UserID          string      `json:"user_id" bson:"user_id"`
	Recipient       string      `json:"recipient" bson:"recipient"`
	RecipientUserID string      `json:"recipient_user_id,omitempty" bson:"recipient_user_id,omitempty"`
	Content         string      `json:"content" bson:"content"`
	Attachment      *Attachment `json:"attachment,omitempty" bson:"attachment,omitempty"`
	SentAt          time.Time   `json:"sent_at" bson:"sent_at"`
}

// Viewer is the identity a message log is read as.
type Viewer struct {
	UserID           string
	Callsign         string
	IsAdmin          bool
	SessionStartedAt time.Time
}

// ViewerOf builds the viewer for an actor.
func ViewerOf(a Actor) Viewer {
	return Viewer{
		UserID:           a.UserID,
		Callsign:         a.Callsign,
		IsAdmin:          a.IsAdmin,
		SessionStartedAt: a.SessionStartedAt,
	}
}

// CanSee applies the channel confidentiality rule. Admins see the whole log.
// Everyone else sees messages sent during their current session that are
// broadcast, addressed to them, or sent by them.
func (v Viewer) CanSee(m *Message) bool {
	if v.IsAdmin {
		return true
	}
	if m.SentAt.Before(v.SessionStartedAt) {
		return false
	}
	if m.Recipient == RecipientAll || m.UserID == v.UserID {
		return true
	}
	if m.RecipientUserID != "" {
		return m.RecipientUserID == v.UserID
	}
	// records written before recipient ids were resolved
	return m.Recipient == v.Callsign
}

package domain

type (
	RoomName  string
	SessionID string
)

// Room is the provider-side target of a Session: an SFU room name or a WHIP ingest URL.
type Room struct {
	Name      RoomName
	IngestURL string
}

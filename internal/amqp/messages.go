package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeEntrySync   = "entry.sync"
	TypeEntryDelete = "entry.delete"

	KindTrip      = "trip"
	KindEquipment = "equipment"
)

// EntrySyncMessage asks the export worker to mirror one entry to the
// report spreadsheet. It carries only kind, id and version; the worker
// fetches the full record from the database.
type EntrySyncMessage struct {
	Type      string    `json:"type"`
	Kind      string    `json:"kind"`
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// EntryDeleteMessage tells the export worker that an entry was removed.
// Year selects the report sheet the row lives on; the entry itself is
// already gone from the database when this message arrives.
type EntryDeleteMessage struct {
	Type      string    `json:"type"`
	Kind      string    `json:"kind"`
	ID        int64     `json:"id"`
	Year      int       `json:"year"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntrySyncMessage(kind string, id, version int64) *EntrySyncMessage {
	return &EntrySyncMessage{
		Type:      TypeEntrySync,
		Kind:      kind,
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func NewEntryDeleteMessage(kind string, id int64, year int) *EntryDeleteMessage {
	return &EntryDeleteMessage{
		Type:      TypeEntryDelete,
		Kind:      kind,
		ID:        id,
		Year:      year,
		Timestamp: time.Now(),
	}
}

func (m *EntrySyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *EntryDeleteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// envelope is used to sniff the message type before full decoding.
type envelope struct {
	Type string `json:"type"`
}

func messageType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode message envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("message without type field")
	}
	return env.Type, nil
}

func EntrySyncMessageFromJSON(data []byte) (*EntrySyncMessage, error) {
	var msg EntrySyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func EntryDeleteMessageFromJSON(data []byte) (*EntryDeleteMessage, error) {
	var msg EntryDeleteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

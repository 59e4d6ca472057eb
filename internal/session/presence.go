package session

import (
	"encoding/base64"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

const sessionLoopInGame = "INGAME"

// Presence is one participant's status as broadcast over the chat presence feed
type Presence struct {
	PUUID   string
	InGame  bool
	QueueID string

	// Private is the decoded private payload
	Private json.RawMessage

	// Document is the presence as received with the private blob replaced by
	// its decoded form. This is what gets archived.
	Document json.RawMessage
}

type privatePayload struct {
	SessionLoopState string `json:"sessionLoopState"`
	QueueID          string `json:"queueId"`
}

// DecodePresence parses one presence entry and decodes its base64 private payload
func DecodePresence(raw json.RawMessage) (Presence, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Presence{}, fmt.Errorf("invalid presence: %w", err)
	}

	var puuid string
	if err := json.Unmarshal(fields["puuid"], &puuid); err != nil || puuid == "" {
		return Presence{}, errors.New("presence has no puuid")
	}

	var encoded string
	if err := json.Unmarshal(fields["private"], &encoded); err != nil {
		return Presence{}, fmt.Errorf("presence %s: private is not a string", puuid)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Presence{}, fmt.Errorf("presence %s: private is not base64: %w", puuid, err)
	}

	var private privatePayload
	if err := json.Unmarshal(decoded, &private); err != nil {
		return Presence{}, fmt.Errorf("presence %s: private is not a JSON object: %w", puuid, err)
	}

	fields["private"] = decoded
	document, err := json.Marshal(fields)
	if err != nil {
		return Presence{}, fmt.Errorf("presence %s: %w", puuid, err)
	}

	return Presence{
		PUUID:    puuid,
		InGame:   private.SessionLoopState == sessionLoopInGame,
		QueueID:  private.QueueID,
		Private:  decoded,
		Document: document,
	}, nil
}

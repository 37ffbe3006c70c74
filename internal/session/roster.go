package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var errNoRoster = errors.New("no roster in payload")

// Roster is the participant information carried by a room-joined event.
// Names is empty when the broker only reports a count.
type Roster struct {
	Names []string
	Count int
}

// parseRoster accepts a clients map keyed by connection id, a clients
// list, or a bare participants count.
func parseRoster(rj *RoomJoined) (Roster, error) {
	if raw := bytes.TrimSpace(rj.Clients); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		return parseClients(raw)
	}

	raw := bytes.TrimSpace(rj.Participants)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Roster{}, errNoRoster
	}
	if raw[0] == '[' {
		return parseClients(raw)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Roster{}, fmt.Errorf("participants: %w", err)
		}
		n = json.Number(s)
	}
	count, err := strconv.Atoi(n.String())
	if err != nil || count < 0 {
		return Roster{}, fmt.Errorf("participants: invalid count %q", n)
	}
	return Roster{Count: count}, nil
}

func parseClients(raw []byte) (Roster, error) {
	var entries []json.RawMessage
	if raw[0] == '{' {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return Roster{}, fmt.Errorf("clients: %w", err)
		}
		for _, v := range m {
			entries = append(entries, v)
		}
	} else if err := json.Unmarshal(raw, &entries); err != nil {
		return Roster{}, fmt.Errorf("clients: %w", err)
	}

	r := Roster{Count: len(entries)}
	for _, e := range entries {
		if name := clientName(e); name != "" {
			r.Names = append(r.Names, name)
		}
	}
	sort.Strings(r.Names)
	return r, nil
}

func clientName(raw json.RawMessage) string {
	var c struct {
		Pseudo   looseString `json:"pseudo"`
		Username looseString `json:"username"`
		Name     looseString `json:"name"`
	}
	if err := json.Unmarshal(raw, &c); err == nil {
		return firstNonEmpty(c.Pseudo, c.Username, c.Name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

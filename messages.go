package server

import (
	"sort"

	"github.com/iancoleman/orderedmap"
)

// stateMessage is the authoritative full snapshot fanned out after every
// accepted mutation. Hadrons is a JSON object keyed by hadron id so clients
// can address entries directly; orderedmap keeps the key order stable.
type stateMessage struct {
	Ver        int                    `json:"ver"`
	Type       string                 `json:"type"`
	Hadrons    *orderedmap.OrderedMap `json:"hadrons"`
	Sequence   uint64                 `json:"sequence"`
	ServerTime int64                  `json:"serverTime"`
}

type chatMessage struct {
	Ver     int    `json:"ver"`
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type diagnosticsSession struct {
	Ver           int    `json:"ver"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
}

// encodeSnapshot converts the active partition into the ordered wire
// mapping, smallest id first.
func encodeSnapshot(snapshot map[string]Hadron) *orderedmap.OrderedMap {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ordered := orderedmap.New()
	for _, id := range ids {
		ordered.Set(id, snapshot[id])
	}
	return ordered
}

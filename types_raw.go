package tiktok

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Embedded-JSON containers, by script element id. The same names are the
// window globals a rendering transport evaluates.
const (
	sigiStateID     = "SIGI_STATE"
	universalDataID = "__UNIVERSAL_DATA_FOR_REHYDRATION__"
	nextDataID      = "__NEXT_DATA__"
)

// Source tags recorded on a Payload.
const (
	SourceSigiState     = "sigi_state"
	SourceUniversalData = "universal_data"
	SourceNextData      = "next_data"
	SourceScriptScan    = "script_scan"
	SourceDOMText       = "dom_text"
)

var pageGlobals = []string{sigiStateID, universalDataID, nextDataID}

// Payload is the raw user and stats subtrees of one profile, untrusted.
type Payload struct {
	User   map[string]any
	Stats  map[string]any
	Source string
}

// container is one known page-state shape.
type container interface {
	id() string
	source() string
	extract(data []byte, username string) (*Payload, bool)
}

// containers in priority order: oldest shape first.
var containers = []container{
	sigiStateContainer{},
	universalDataContainer{},
	nextDataContainer{},
}

// decodeJSON keeps numbers as json.Number so large counts stay exact.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// rawUserInfo is the {user, stats} pair shared by the later shapes.
// statsV2 carries the same counters as strings.
type rawUserInfo struct {
	User    map[string]any `json:"user"`
	Stats   map[string]any `json:"stats"`
	StatsV2 map[string]any `json:"statsV2"`
}

func (r rawUserInfo) payload(username string) (*Payload, bool) {
	if len(r.User) == 0 {
		return nil, false
	}
	if id, ok := r.User["uniqueId"].(string); ok && !strings.EqualFold(id, username) {
		return nil, false
	}
	stats := r.Stats
	if len(stats) == 0 {
		stats = r.StatsV2
	}
	if stats == nil {
		stats = map[string]any{}
	}
	return &Payload{User: r.User, Stats: stats}, true
}

// SIGI_STATE: module state keyed by username.

type sigiStateContainer struct{}

type sigiStateData struct {
	UserModule struct {
		Users map[string]map[string]any `json:"users"`
		Stats map[string]map[string]any `json:"stats"`
	} `json:"UserModule"`
}

func (sigiStateContainer) id() string     { return sigiStateID }
func (sigiStateContainer) source() string { return SourceSigiState }

func (sigiStateContainer) extract(data []byte, username string) (*Payload, bool) {
	var d sigiStateData
	if err := decodeJSON(data, &d); err != nil {
		return nil, false
	}
	key, user := lookupFold(d.UserModule.Users, username)
	if user == nil {
		return nil, false
	}
	stats := d.UserModule.Stats[key]
	if stats == nil {
		_, stats = lookupFold(d.UserModule.Stats, username)
	}
	if stats == nil {
		stats = map[string]any{}
	}
	return &Payload{User: user, Stats: stats}, true
}

// lookupFold finds key in m, exactly first, then case-insensitively.
func lookupFold(m map[string]map[string]any, key string) (string, map[string]any) {
	if v, ok := m[key]; ok {
		return key, v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return k, v
		}
	}
	return "", nil
}

// __UNIVERSAL_DATA_FOR_REHYDRATION__: server-rendered hydration scope.

type universalDataContainer struct{}

type universalData struct {
	DefaultScope struct {
		UserDetail struct {
			UserInfo rawUserInfo `json:"userInfo"`
		} `json:"webapp.user-detail"`
	} `json:"__DEFAULT_SCOPE__"`
}

func (universalDataContainer) id() string     { return universalDataID }
func (universalDataContainer) source() string { return SourceUniversalData }

func (universalDataContainer) extract(data []byte, username string) (*Payload, bool) {
	var d universalData
	if err := decodeJSON(data, &d); err != nil {
		return nil, false
	}
	return d.DefaultScope.UserDetail.UserInfo.payload(username)
}

// __NEXT_DATA__: page props.

type nextDataContainer struct{}

type nextData struct {
	Props struct {
		PageProps struct {
			UserInfo rawUserInfo `json:"userInfo"`
		} `json:"pageProps"`
	} `json:"props"`
}

func (nextDataContainer) id() string     { return nextDataID }
func (nextDataContainer) source() string { return SourceNextData }

func (nextDataContainer) extract(data []byte, username string) (*Payload, bool) {
	var d nextData
	if err := decodeJSON(data, &d); err != nil {
		return nil, false
	}
	return d.Props.PageProps.UserInfo.payload(username)
}

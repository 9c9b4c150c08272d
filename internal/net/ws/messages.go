package ws

// clientMessage is the single inbound envelope; Type selects which fields
// are meaningful.
type clientMessage struct {
	Ver     int            `json:"ver,omitempty"`
	Type    string         `json:"type"`
	Token   string         `json:"token,omitempty"`
	Hadron  map[string]any `json:"hadron,omitempty"`
	Name    string         `json:"name,omitempty"`
	Content string         `json:"content,omitempty"`
	Cmd     string         `json:"cmd,omitempty"`
	SentAt  int64          `json:"sentAt,omitempty"`
}

type requestCredentialsMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
}

type unauthorizedMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
}

type welcomeMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
}

type identityMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

type heartbeatMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

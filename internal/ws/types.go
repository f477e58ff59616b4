package ws

// Message is the envelope for everything pushed to a live-view client.
// Types: "state" (full session snapshot), "abandoned", "rematch", "error".
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

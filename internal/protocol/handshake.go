package protocol

import (
	"encoding/json"
	"fmt"
)

// Handshake response codes.
const (
	HandshakeOK              = 200
	HandshakeVersionMismatch = 501
)

// HandshakeRequest is the JSON body of the client's Handshake frame.
type HandshakeRequest struct {
	Sys  HandshakeClientSys `json:"sys"`
	User json.RawMessage    `json:"user,omitempty"`
}

// HandshakeClientSys identifies the client library to the server.
type HandshakeClientSys struct {
	Type    string         `json:"type"`
	Version string         `json:"version"`
	RSA     map[string]any `json:"rsa"`
}

// HandshakeResponse is the JSON body of the server's Handshake frame.
type HandshakeResponse struct {
	Code int                `json:"code"`
	Sys  HandshakeServerSys `json:"sys"`
	User json.RawMessage    `json:"user,omitempty"`
}

// HandshakeServerSys carries the negotiated session parameters.
type HandshakeServerSys struct {
	Heartbeat int            `json:"heartbeat"` // seconds, 0 disables heartbeats
	Dict      map[string]int `json:"dict,omitempty"`
}

// NewHandshakeRequest builds the client hello. user may be nil.
func NewHandshakeRequest(clientType, clientVersion string, user any) (*HandshakeRequest, error) {
	req := &HandshakeRequest{
		Sys: HandshakeClientSys{
			Type:    clientType,
			Version: clientVersion,
			RSA:     map[string]any{},
		},
	}
	if user != nil {
		raw, err := json.Marshal(user)
		if err != nil {
			return nil, fmt.Errorf("marshal handshake user data: %w", err)
		}
		req.User = raw
	}
	return req, nil
}

// Encode returns the UTF-8 JSON body for a Handshake frame.
func (r *HandshakeRequest) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal handshake: %w", err)
	}
	return data, nil
}

// DecodeHandshakeResponse parses the body of a server Handshake frame.
func DecodeHandshakeResponse(body []byte) (*HandshakeResponse, error) {
	var resp HandshakeResponse
	if err := json.Unmarshal([]byte(DecodeString(body)), &resp); err != nil {
		return nil, fmt.Errorf("decode handshake response: %w", err)
	}
	return &resp, nil
}

// Dictionary returns the route table carried by the response, or nil when
// the server sent none.
func (r *HandshakeResponse) Dictionary() *RouteDictionary {
	if len(r.Sys.Dict) == 0 {
		return nil
	}
	return NewRouteDictionary(r.Sys.Dict)
}

// DecodeKick parses the body of a Kick frame. An empty body yields an empty
// object so callers always get valid JSON.
func DecodeKick(body []byte) (json.RawMessage, error) {
	if len(body) == 0 {
		return json.RawMessage("{}"), nil
	}
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode kick: %w", err)
	}
	return raw, nil
}

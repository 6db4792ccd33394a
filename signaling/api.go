package signaling

import (
	"github.com/pion/webrtc/v4"
	"peertag/applog"
	"time"
)

type RegisterRequest struct {
	Id string `json:"id"`
}

type RegisterResponse struct {
	Id    string `json:"id"`
	Token string `json:"token"`
}

type IceServersResponse struct {
	ForceRelay bool                       `json:"forceRelay"`
	Servers    []IceServersResponseServer `json:"servers"`
}

type IceServersResponseServer struct {
	Id         string   `json:"id"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
	Urls       []string `json:"urls"`
}

// ToWebrtc converts the listed servers into pion's configuration type.
func (r *IceServersResponse) ToWebrtc() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(r.Servers))
	for _, s := range r.Servers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.Urls,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type LogsMessageRequest struct {
	Timestamp time.Time              `json:"timestamp"`
	Message   string                 `json:"message"`
	MetaData  map[string]interface{} `json:"metaData"`
}

// NewLogMessagesFromAppLogEntries converts buffered log entries into the
// request shape of the logs endpoint.
func NewLogMessagesFromAppLogEntries(entries []*applog.LogEntry) []LogsMessageRequest {
	ret := make([]LogsMessageRequest, 0, len(entries))

	for _, entry := range entries {
		requestEntry := LogsMessageRequest{
			Timestamp: entry.Entry.Time,
			Message:   entry.Entry.Message,
			MetaData: map[string]interface{}{
				"level":  entry.Entry.Level.String(),
				"caller": entry.Entry.Caller.String(),
			},
		}

		for _, field := range entry.Fields {
			data, err := applog.ExtractFieldValue(field)
			if err != nil {
				continue
			}

			requestEntry.MetaData[field.Key] = data
		}

		ret = append(ret, requestEntry)
	}

	return ret
}

package bridge

import (
	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

// Event tags emitted on the output stream.
const (
	EventInit             = "init"
	EventMessage          = "message"
	EventLinkEstablished  = "link_established"
	EventSendSuccess      = "send_success"
	EventSendFailed       = "send_failed"
	EventAnnounceSent     = "announce_sent"
	EventPong             = "pong"
	EventTransportAdded   = "transport_added"
	EventTransportRemoved = "transport_removed"
	EventTransportError   = "transport_error"
	EventTransportsList   = "transports_list"
)

type identityInfo struct {
	Hash      string `json:"hash"`
	PublicKey string `json:"public_key"`
	Name      string `json:"name"`
}

type destinationInfo struct {
	Hash string `json:"hash"`
	Name string `json:"name"`
}

type initData struct {
	Identity    identityInfo    `json:"identity"`
	Destination destinationInfo `json:"destination"`
}

type messageData struct {
	FromHash string   `json:"from_hash"`
	ToHash   string   `json:"to_hash"`
	Text     string   `json:"text"`
	RSSI     *int     `json:"rssi"`
	SNR      *float64 `json:"snr"`
}

type linkEstablishedData struct {
	DestinationHash string `json:"destination_hash"`
	LinkID          string `json:"link_id"`
}

type sendSuccessData struct {
	DestinationHash string `json:"destination_hash"`
	PacketID        string `json:"packet_id"`
}

type sendFailedData struct {
	DestinationHash string `json:"destination_hash"`
	Error           string `json:"error"`
}

type announceSentData struct {
	DestinationHash string `json:"destination_hash"`
}

type transportAddedData struct {
	Type   string                    `json:"type"`
	Port   string                    `json:"port"`
	Config meshstack.TransportConfig `json:"config"`
}

type transportRemovedData struct {
	Type string `json:"type"`
	Port string `json:"port"`
}

type transportErrorData struct {
	Port  string `json:"port"`
	Error string `json:"error"`
}

type transportInfo struct {
	Type             string                    `json:"type"`
	Port             string                    `json:"port"`
	Config           meshstack.TransportConfig `json:"config"`
	Connected        bool                      `json:"connected"`
	MessagesSent     uint64                    `json:"messages_sent"`
	MessagesReceived uint64                    `json:"messages_received"`
}

type transportsListData struct {
	Transports []transportInfo `json:"transports"`
	Total      int             `json:"total"`
}

package bridge

import (
	"context"
	"encoding/json"

	"github.com/meshbridge/rnsbridge-go/internal/registry"
	"github.com/meshbridge/rnsbridge-go/pkg/logger"
	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

// command is the inbound wire shape.
type command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleLine decodes and dispatches one input line. A bad line is logged
// and skipped; intake never stops because of a single malformed command.
func (b *Bridge) handleLine(line string) {
	var cmd command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		logger.ErrorCf("dispatcher", "invalid JSON received: %v", err)
		return
	}
	b.handleCommand(cmd)
}

func (b *Bridge) handleCommand(cmd command) {
	switch cmd.Type {
	case "send":
		b.handleSend(cmd.Data)
	case "announce":
		b.announce()
	case "ping":
		b.emitter.Emit(EventPong, struct{}{})
	case "shutdown":
		logger.InfoC("dispatcher", "shutdown requested")
		b.Shutdown()
	case "add_rnode":
		b.handleAddRNode(cmd.Data)
	case "remove_rnode":
		b.handleRemoveRNode(cmd.Data)
	case "list_transports":
		b.handleListTransports()
	default:
		logger.WarnCf("dispatcher", "unknown command type: %s", cmd.Type)
	}
}

func (b *Bridge) handleSend(raw json.RawMessage) {
	var data struct {
		DestinationHash string `json:"destination_hash"`
		Text            string `json:"text"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			logger.ErrorCf("dispatcher", "invalid send command: %v", err)
			return
		}
	}
	if data.DestinationHash == "" || data.Text == "" {
		logger.ErrorC("dispatcher", "invalid send command: missing destination or text")
		return
	}
	b.sendPacket(data.DestinationHash, data.Text)
}

// sendPacket resolves the remote destination and transmits, reporting
// exactly one of send_success or send_failed. Events echo the caller's
// destination_hash verbatim; only internal lookups use the normalized form.
func (b *Bridge) sendPacket(destHash, text string) {
	normalized, err := meshstack.NormalizeAddressHash(destHash)
	if err != nil {
		b.emitter.Emit(EventSendFailed, sendFailedData{
			DestinationHash: destHash,
			Error:           "malformed destination hash",
		})
		return
	}

	dest, ok := b.reg.Remote(normalized)
	if !ok {
		dest, err = b.stack.ResolveOrCreateRemote(normalized)
		if err != nil {
			b.emitter.Emit(EventSendFailed, sendFailedData{
				DestinationHash: destHash,
				Error:           err.Error(),
			})
			return
		}
		b.reg.AddRemote(dest)
		logger.InfoCf("bridge", "created new destination reference: %s", normalized)
	}

	receipt, err := b.stack.Send(context.Background(), dest, []byte(text))
	switch {
	case err != nil:
		logger.ErrorCf("bridge", "error sending packet: %v", err)
		b.emitter.Emit(EventSendFailed, sendFailedData{
			DestinationHash: destHash,
			Error:           err.Error(),
		})
	case receipt == nil:
		logger.WarnCf("bridge", "failed to send packet to %.16s...", normalized)
		b.emitter.Emit(EventSendFailed, sendFailedData{
			DestinationHash: destHash,
			Error:           "No receipt received",
		})
	default:
		logger.InfoCf("bridge", "packet sent to %.16s...", normalized)
		b.emitter.Emit(EventSendSuccess, sendSuccessData{
			DestinationHash: destHash,
			PacketID:        receipt.PacketID,
		})
	}
}

// transportConfigPatch distinguishes absent fields from explicit zeroes so
// defaults apply only where the caller said nothing.
type transportConfigPatch struct {
	BaudRate        *int   `json:"baudRate"`
	Frequency       *int64 `json:"frequency"`
	Bandwidth       *int   `json:"bandwidth"`
	TXPower         *int   `json:"txPower"`
	SpreadingFactor *int   `json:"spreadingFactor"`
	CodingRate      *int   `json:"codingRate"`
}

func (p *transportConfigPatch) apply(cfg *meshstack.TransportConfig) {
	if p == nil {
		return
	}
	if p.BaudRate != nil {
		cfg.BaudRate = *p.BaudRate
	}
	if p.Frequency != nil {
		cfg.Frequency = *p.Frequency
	}
	if p.Bandwidth != nil {
		cfg.Bandwidth = *p.Bandwidth
	}
	if p.TXPower != nil {
		cfg.TXPower = *p.TXPower
	}
	if p.SpreadingFactor != nil {
		cfg.SpreadingFactor = *p.SpreadingFactor
	}
	if p.CodingRate != nil {
		cfg.CodingRate = *p.CodingRate
	}
}

func (b *Bridge) handleAddRNode(raw json.RawMessage) {
	var data struct {
		Port   string                `json:"port"`
		Config *transportConfigPatch `json:"config"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			logger.ErrorCf("dispatcher", "invalid add_rnode command: %v", err)
			return
		}
	}
	if data.Port == "" {
		b.emitter.Emit(EventTransportError, transportErrorData{
			Port:  "",
			Error: "port is required",
		})
		return
	}

	var cfg meshstack.TransportConfig
	data.Config.apply(&cfg)
	cfg.SetDefaults()

	rec := registry.TransportRecord{Type: "rnode", Port: data.Port, Config: cfg}
	if err := b.reg.AddTransport(rec); err != nil {
		b.emitter.Emit(EventTransportError, transportErrorData{
			Port:  data.Port,
			Error: err.Error(),
		})
		return
	}

	if err := b.stack.AttachTransport(data.Port, cfg); err != nil {
		// Roll back tracking so a later attach can succeed.
		b.reg.RemoveTransport(data.Port)
		logger.ErrorCf("bridge", "error attaching transport %s: %v", data.Port, err)
		b.emitter.Emit(EventTransportError, transportErrorData{
			Port:  data.Port,
			Error: err.Error(),
		})
		return
	}

	logger.InfoCf("bridge", "transport attached on %s", data.Port)
	b.emitter.Emit(EventTransportAdded, transportAddedData{
		Type:   "rnode",
		Port:   data.Port,
		Config: cfg,
	})
}

func (b *Bridge) handleRemoveRNode(raw json.RawMessage) {
	var data struct {
		Port string `json:"port"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			logger.ErrorCf("dispatcher", "invalid remove_rnode command: %v", err)
			return
		}
	}
	if data.Port == "" {
		logger.WarnC("dispatcher", "invalid remove_rnode command: missing port")
		return
	}

	if err := b.reg.RemoveTransport(data.Port); err != nil {
		logger.WarnCf("bridge", "unknown transport handle: %s", data.Port)
		return
	}
	if err := b.stack.DetachTransport(data.Port); err != nil {
		logger.WarnCf("bridge", "error detaching transport %s: %v", data.Port, err)
	}

	logger.InfoCf("bridge", "transport detached from %s", data.Port)
	b.emitter.Emit(EventTransportRemoved, transportRemovedData{
		Type: "rnode",
		Port: data.Port,
	})
}

func (b *Bridge) handleListTransports() {
	records := b.reg.Transports()
	infos := make([]transportInfo, 0, len(records))
	for _, rec := range records {
		status, err := b.stack.TransportStatus(rec.Port)
		if err != nil {
			status = meshstack.TransportStatus{}
		}
		infos = append(infos, transportInfo{
			Type:             rec.Type,
			Port:             rec.Port,
			Config:           rec.Config,
			Connected:        status.Connected,
			MessagesSent:     status.MessagesSent,
			MessagesReceived: status.MessagesReceived,
		})
	}
	b.emitter.Emit(EventTransportsList, transportsListData{
		Transports: infos,
		Total:      len(infos),
	})
}

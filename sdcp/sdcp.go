// Package sdcp implements the wire format of the Smart Device Control
// Protocol spoken by Elegoo Centauri Carbon and similar resin/FDM printers:
// UDP broadcast discovery on port 3000 and a JSON envelope dialect carried
// over a websocket on port 3030.
//
// See https://suchmememanyskill.github.io/OpenCentauri/software/api/
package sdcp

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DiscoveryPort is the UDP port printers listen on for the probe.
	DiscoveryPort = 3000
	// StatusPort is the TCP port serving the websocket status channel.
	StatusPort = 3030
	// Probe is the discovery broadcast payload.
	Probe = "M99999"

	// CmdStatus requests a status report.
	CmdStatus = 0
)

var (
	// ErrMalformedPayload marks messages that are not valid JSON or miss
	// required envelope fields. The connection stays open.
	ErrMalformedPayload = errors.New("malformed SDCP payload")
	// ErrMalformedStatus marks status payloads with missing or non-numeric
	// sub-fields. The message is dropped, the connection stays open.
	ErrMalformedStatus = errors.New("malformed SDCP status")
	// ErrNoDevices is returned when the discovery window elapses without a
	// single valid reply.
	ErrNoDevices = errors.New("no SDCP devices found")
)

// Machine status values (the top-level CurrentStatus enum).
const (
	MachineIdle   = 0
	MachinePrint  = 1
	MachineUpload = 2
	MachineCalib  = 3
	MachineTest   = 4
)

// Print phase values (PrintInfo.Status). The Centauri Carbon sends some
// non-standard values, so unknown phases must be tolerated and rendered
// numerically. See https://github.com/suchmememanyskill/OpenCentauri/issues/23
const (
	PhaseIdle      = 0
	PhaseHoming    = 1
	PhaseDropping  = 2
	PhaseExposing  = 3
	PhaseLifting   = 4
	PhasePausing   = 5
	PhasePaused    = 6
	PhaseStopping  = 7
	PhaseStopped   = 8
	PhaseComplete  = 9
	PhaseFileCheck = 10
	PhasePrinting  = 13
	PhaseHeating   = 16
)

var machineLabels = map[int]string{
	MachineIdle:   "Idle",
	MachinePrint:  "Print",
	MachineUpload: "Upload",
	MachineCalib:  "Calib",
	MachineTest:   "Test",
}

var phaseLabels = map[int]string{
	PhaseIdle:      "IDLE",
	PhaseHoming:    "HOMING",
	PhaseDropping:  "DROPPING",
	PhaseExposing:  "EXPOSING",
	PhaseLifting:   "LIFTING",
	PhasePausing:   "PAUSING",
	PhasePaused:    "PAUSED",
	PhaseStopping:  "STOPPING",
	PhaseStopped:   "STOPPED",
	PhaseComplete:  "COMPLETE",
	PhaseFileCheck: "FILECHECK",
	PhasePrinting:  "PRINTING",
	PhaseHeating:   "HEATING",
}

// MachineLabel returns the display name for a machine status value,
// falling back to the raw number for unknown values.
func MachineLabel(s int) string {
	if l, ok := machineLabels[s]; ok {
		return l
	}
	return strconv.Itoa(s)
}

// PhaseLabel returns the display name for a print phase value,
// falling back to the raw number for unknown values.
func PhaseLabel(p int) string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return strconv.Itoa(p)
}

// Device describes one discovered printer. Immutable after discovery;
// identity is the protocol-assigned ID.
type Device struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	MachineName     string `json:"machine_name,omitempty"`
	BrandName       string `json:"brand_name,omitempty"`
	MainboardID     string `json:"mainboard_id"`
	MainboardIP     string `json:"mainboard_ip"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// String returns a human-readable representation of the device.
func (d Device) String() string {
	return fmt.Sprintf("%s@%s - firmware %s", d.Name, d.MainboardIP, d.FirmwareVersion)
}

// StatusURL returns the websocket URL of the device's status channel.
// A port of 0 or less selects the protocol default.
func (d Device) StatusURL(port int) string {
	if port <= 0 {
		port = StatusPort
	}
	return fmt.Sprintf("ws://%s:%d/websocket", d.MainboardIP, port)
}

// StatusSnapshot is one wholesale status report from a printer. Snapshots
// replace each other entirely; there is no partial merge.
type StatusSnapshot struct {
	CurrentStatus int     `json:"current_status"`
	PrintStatus   int     `json:"print_status"`
	TempOfHotbed  float64 `json:"temp_of_hotbed"`
	CurrentTicks  float64 `json:"current_ticks"`
	TotalTicks    float64 `json:"total_ticks"`
}

// number accepts JSON numbers as well as numeric strings. The firmware is
// not consistent about which one it sends.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", string(data))
	}
	*n = number(f)
	return nil
}

// Envelope is the top-level JSON object of every SDCP message.
type Envelope struct {
	ID     string          `json:"Id"`
	Data   json.RawMessage `json:"Data,omitempty"`
	Status json.RawMessage `json:"Status,omitempty"`
	Topic  string          `json:"Topic,omitempty"`
}

// DecodeEnvelope parses a raw SDCP message. Messages that are not JSON
// objects fail with ErrMalformedPayload.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &env, nil
}

type statusPayload struct {
	CurrentStatus []number `json:"CurrentStatus"`
	TempOfHotbed  *number  `json:"TempOfHotbed"`
	PrintInfo     *struct {
		Status       *number `json:"Status"`
		CurrentTicks number  `json:"CurrentTicks"`
		TotalTicks   number  `json:"TotalTicks"`
	} `json:"PrintInfo"`
}

// Snapshot extracts the status report from an envelope. Returns (nil, nil)
// when the envelope carries no Status object at all; acknowledgements and
// other non-status traffic are expected and skipped silently. A Status
// object with missing or non-numeric required sub-fields fails with
// ErrMalformedStatus.
func (e *Envelope) Snapshot() (*StatusSnapshot, error) {
	if len(e.Status) == 0 {
		return nil, nil
	}
	var p statusPayload
	if err := json.Unmarshal(e.Status, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}
	if len(p.CurrentStatus) == 0 {
		return nil, fmt.Errorf("%w: missing CurrentStatus", ErrMalformedStatus)
	}
	if p.PrintInfo == nil || p.PrintInfo.Status == nil {
		return nil, fmt.Errorf("%w: missing PrintInfo.Status", ErrMalformedStatus)
	}
	if p.TempOfHotbed == nil {
		return nil, fmt.Errorf("%w: missing TempOfHotbed", ErrMalformedStatus)
	}
	return &StatusSnapshot{
		CurrentStatus: int(p.CurrentStatus[0]),
		PrintStatus:   int(*p.PrintInfo.Status),
		TempOfHotbed:  float64(*p.TempOfHotbed),
		CurrentTicks:  float64(p.PrintInfo.CurrentTicks),
		TotalTicks:    float64(p.PrintInfo.TotalTicks),
	}, nil
}

type requestData struct {
	Cmd         int      `json:"Cmd"`
	Data        struct{} `json:"Data"`
	RequestID   string   `json:"RequestID"`
	MainboardID string   `json:"MainboardID"`
	TimeStamp   int64    `json:"TimeStamp"`
	From        int      `json:"From"`
}

type requestEnvelope struct {
	ID    string      `json:"Id"`
	Data  requestData `json:"Data"`
	Topic string      `json:"Topic"`
}

// EncodeStatusRequest builds the request envelope asking a printer for a
// status report. Every call uses a fresh random request id so responses can
// never be ambiguously correlated on the wire.
func EncodeStatusRequest(deviceID, mainboardID string) ([]byte, error) {
	rid := make([]byte, 8)
	if _, err := rand.Read(rid); err != nil {
		return nil, fmt.Errorf("request id: %w", err)
	}
	req := requestEnvelope{
		ID: deviceID,
		Data: requestData{
			Cmd:         CmdStatus,
			RequestID:   hex.EncodeToString(rid),
			MainboardID: mainboardID,
			TimeStamp:   time.Now().Unix(),
			From:        0,
		},
		Topic: "sdcp/request/" + mainboardID,
	}
	return json.Marshal(req)
}

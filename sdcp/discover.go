package sdcp

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// deviceData is the Data object of a discovery reply.
type deviceData struct {
	Name            string `json:"Name"`
	MachineName     string `json:"MachineName"`
	BrandName       string `json:"BrandName"`
	MainboardID     string `json:"MainboardID"`
	MainboardIP     string `json:"MainboardIP"`
	FirmwareVersion string `json:"FirmwareVersion"`
	ProtocolVersion string `json:"ProtocolVersion"`
}

// ParseDeviceReply parses a discovery reply into a Device. srcIP is the
// sender address of the datagram, used when the reply omits MainboardIP.
// Replies missing Id or Data are rejected with ErrMalformedPayload.
func ParseDeviceReply(data []byte, srcIP string) (*Device, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if env.ID == "" || len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: discovery reply needs Id and Data", ErrMalformedPayload)
	}
	var d deviceData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	ip := d.MainboardIP
	if ip == "" {
		ip = srcIP
	}
	return &Device{
		ID:              env.ID,
		Name:            d.Name,
		MachineName:     d.MachineName,
		BrandName:       d.BrandName,
		MainboardID:     d.MainboardID,
		MainboardIP:     ip,
		FirmwareVersion: d.FirmwareVersion,
		ProtocolVersion: d.ProtocolVersion,
	}, nil
}

// Discover probes every local subnet for SDCP printers via UDP broadcast on
// DiscoveryPort. The idle window resets on every reply: discovery finishes
// once no new datagram arrives for idleWindow. Duplicate device ids are
// last-reply-wins. Returns ErrNoDevices when nothing answered.
func Discover(log zerolog.Logger, idleWindow time.Duration) ([]Device, error) {
	addrs, err := broadcastAddresses()
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	targets := make([]string, 0, len(addrs))
	for _, a := range addrs {
		targets = append(targets, fmt.Sprintf("%s:%d", a, DiscoveryPort))
	}
	return DiscoverTargets(log, targets, idleWindow)
}

// DiscoverTargets probes the given host:port targets. Split out from
// Discover so tests can point the probe at a loopback responder.
func DiscoverTargets(log zerolog.Logger, targets []string, idleWindow time.Duration) ([]Device, error) {
	var (
		mu      sync.Mutex
		devices = map[string]Device{}
	)

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			probeTarget(log, target, idleWindow, func(d Device) {
				mu.Lock()
				if _, seen := devices[d.ID]; seen {
					log.Debug().Str("device_id", d.ID).Msg("duplicate discovery reply, keeping latest")
				}
				devices[d.ID] = d
				mu.Unlock()
			})
		}(target)
	}
	wg.Wait()

	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, d)
	}
	return out, nil
}

// probeTarget sends one probe datagram and collects replies until the idle
// window elapses with no new data.
func probeTarget(log zerolog.Logger, target string, idleWindow time.Duration, found func(Device)) {
	raddr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		log.Debug().Err(err).Str("target", target).Msg("skipping discovery target")
		return
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("discovery socket failed")
		return
	}
	defer conn.Close()

	if _, err := conn.WriteTo([]byte(Probe), raddr); err != nil {
		log.Warn().Err(err).Str("target", target).Msg("discovery probe failed")
		return
	}

	buf := make([]byte, 1500)
	for {
		// The deadline is per read, so every reply re-arms the window.
		conn.SetReadDeadline(time.Now().Add(idleWindow))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			log.Warn().Err(err).Str("target", target).Msg("discovery read failed")
			return
		}

		dev, err := ParseDeviceReply(buf[:n], src.IP.String())
		if err != nil {
			log.Warn().Err(err).Str("from", src.IP.String()).Msg("unrecognised discovery reply")
			continue
		}
		log.Info().
			Str("device_id", dev.ID).
			Str("name", dev.Name).
			Str("ip", dev.MainboardIP).
			Str("firmware", dev.FirmwareVersion).
			Msg("discovered printer")
		found(*dev)
	}
}

// broadcastAddresses enumerates the IPv4 broadcast address of every
// non-loopback interface.
func broadcastAddresses() ([]string, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	addrMap := map[string]bool{}
	for _, iface := range ifs {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			n, ok := addr.(*net.IPNet)
			if !ok || n.IP.IsLoopback() {
				continue
			}
			v4addr := n.IP.To4()
			v4mask := net.IP(n.Mask).To4()
			if v4addr == nil || v4mask == nil {
				continue
			}
			baddr := make(net.IP, len(v4addr))
			binary.BigEndian.PutUint32(baddr, binary.BigEndian.Uint32(v4addr)|^binary.BigEndian.Uint32(v4mask))
			if s := baddr.String(); !addrMap[s] {
				addrMap[s] = true
			}
		}
	}

	addrs := make([]string, 0, len(addrMap))
	for addr := range addrMap {
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/alex/sdcp_monitor/notify"
	"github.com/alex/sdcp_monitor/sdcp"
)

// View is the derived render of a snapshot: the values notifications are
// decided on and displayed with.
type View struct {
	Machine int `json:"machine"`
	Phase   int `json:"phase"`
	// Percent is the job progress rounded to the nearest 5%. 0 when no job
	// is active (TotalTicks == 0).
	Percent int `json:"percent"`
	// BedTemp is the hotbed temperature rounded to whole degrees.
	BedTemp int `json:"bed_temp"`
}

// NewView derives the comparison values from a raw snapshot.
func NewView(s sdcp.StatusSnapshot) View {
	v := View{
		Machine: s.CurrentStatus,
		Phase:   s.PrintStatus,
		BedTemp: int(math.Round(s.TempOfHotbed)),
	}
	// Two-step rounding keeps the 5% granularity: x20, round, x5.
	if s.TotalTicks > 0 {
		v.Percent = int(math.Round(s.CurrentTicks*20/s.TotalTicks)) * 5
	}
	return v
}

// Label returns the combined status display, e.g. "Print:PRINTING".
func (v View) Label() string {
	return sdcp.MachineLabel(v.Machine) + ":" + sdcp.PhaseLabel(v.Phase)
}

// inPauseBand reports whether a phase is in the paused/stopped band
// (pausing, paused, stopping, stopped).
func inPauseBand(phase int) bool {
	return phase >= sdcp.PhasePausing && phase <= sdcp.PhaseStopped
}

// coolThreshold is the bed temperature below which a completed print is
// considered safe to remove; cooling past it re-fires the completion alert.
const coolThreshold = 40

// Evaluate decides whether the change from prev to cur is worth a
// notification, and with what severity. prev == nil means no history yet:
// the snapshot only establishes the baseline and nothing is emitted.
// Evaluate is stateless; all history lives in the registry pair.
func Evaluate(dev sdcp.Device, prev *sdcp.StatusSnapshot, cur sdcp.StatusSnapshot) *notify.Notification {
	if prev == nil {
		return nil
	}
	cv := NewView(cur)
	pv := NewView(*prev)

	severity := notify.SeverityNone
	attention := false
	switch {
	case inPauseBand(cv.Phase):
		severity = notify.SeverityAlertRed
		attention = !inPauseBand(pv.Phase)
	case cv.Phase == sdcp.PhaseComplete:
		// Alert once on completion, and once more when the bed finishes
		// cooling below the threshold while still complete.
		if pv.Phase != sdcp.PhaseComplete || (cv.BedTemp <= coolThreshold && pv.BedTemp > coolThreshold) {
			severity = notify.SeverityAlertGreen
			attention = true
		}
	case cv.Machine == sdcp.MachinePrint:
		severity = notify.SeverityInfo
	}

	// Active phases report progress; idle/complete report bed temperature,
	// throttled to 5-degree steps to avoid chatter. The cooled-below-
	// threshold refire bypasses the throttle so it cannot be skipped when
	// the bed lands between 5-degree marks.
	var detail string
	if cv.Phase != sdcp.PhaseIdle && cv.Phase != sdcp.PhaseComplete {
		if cv.Phase == pv.Phase && cv.Percent == pv.Percent {
			return nil
		}
		detail = fmt.Sprintf("%d %%", cv.Percent)
	} else {
		throttled := cv.BedTemp != pv.BedTemp && cv.BedTemp%5 == 0
		if cv.Phase == pv.Phase && !attention && !throttled {
			return nil
		}
		detail = fmt.Sprintf("bed %d°C", cv.BedTemp)
	}

	return &notify.Notification{
		DeviceID:  dev.ID,
		Device:    dev,
		Severity:  severity,
		Attention: attention,
		Label:     cv.Label(),
		Detail:    detail,
		Time:      time.Now(),
	}
}

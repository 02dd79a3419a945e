package sdcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeStatusRequest(t *testing.T) {
	data, err := EncodeStatusRequest("dev-1", "board-abc")
	require.NoError(t, err)

	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", env.ID)
	assert.Equal(t, "sdcp/request/board-abc", env.Topic)

	var payload struct {
		Cmd         int            `json:"Cmd"`
		Data        map[string]any `json:"Data"`
		RequestID   string         `json:"RequestID"`
		MainboardID string         `json:"MainboardID"`
		TimeStamp   int64          `json:"TimeStamp"`
		From        int            `json:"From"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, CmdStatus, payload.Cmd)
	assert.Empty(t, payload.Data)
	assert.Equal(t, "board-abc", payload.MainboardID)
	assert.Len(t, payload.RequestID, 16, "8 random bytes, hex encoded")
	assert.NotZero(t, payload.TimeStamp)
	assert.Equal(t, 0, payload.From)
}

func TestEncodeStatusRequest_freshRequestID(t *testing.T) {
	ids := map[string]bool{}
	for i := 0; i < 32; i++ {
		data, err := EncodeStatusRequest("dev-1", "board-abc")
		require.NoError(t, err)

		env, err := DecodeEnvelope(data)
		require.NoError(t, err)
		var payload struct {
			RequestID string `json:"RequestID"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.False(t, ids[payload.RequestID], "request id reused: %s", payload.RequestID)
		ids[payload.RequestID] = true
	}
}

func TestDecodeEnvelope_malformed(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json at all"))
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestSnapshot(t *testing.T) {
	raw := []byte(`{
		"Id": "dev-1",
		"Status": {
			"CurrentStatus": [1],
			"TempOfHotbed": 54.7,
			"PrintInfo": {
				"Status": 13,
				"CurrentTicks": 450,
				"TotalTicks": 1000
			}
		}
	}`)
	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)

	snap, err := env.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, MachinePrint, snap.CurrentStatus)
	assert.Equal(t, PhasePrinting, snap.PrintStatus)
	assert.InDelta(t, 54.7, snap.TempOfHotbed, 0.001)
	assert.Equal(t, 450.0, snap.CurrentTicks)
	assert.Equal(t, 1000.0, snap.TotalTicks)
}

func TestSnapshot_stringyNumbers(t *testing.T) {
	// The firmware sometimes quotes its numbers.
	raw := []byte(`{
		"Status": {
			"CurrentStatus": ["1"],
			"TempOfHotbed": "40.2",
			"PrintInfo": {
				"Status": "6",
				"CurrentTicks": "500",
				"TotalTicks": "1000"
			}
		}
	}`)
	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)

	snap, err := env.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, MachinePrint, snap.CurrentStatus)
	assert.Equal(t, PhasePaused, snap.PrintStatus)
	assert.InDelta(t, 40.2, snap.TempOfHotbed, 0.001)
	assert.Equal(t, 500.0, snap.CurrentTicks)
}

func TestSnapshot_noStatusField(t *testing.T) {
	// Acknowledgements carry Data but no Status; they are valid traffic.
	env, err := DecodeEnvelope([]byte(`{"Id": "dev-1", "Data": {"Cmd": 0, "Data": {"Ack": 0}}}`))
	require.NoError(t, err)

	snap, err := env.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshot_malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing CurrentStatus", `{"Status": {"TempOfHotbed": 40, "PrintInfo": {"Status": 0}}}`},
		{"empty CurrentStatus", `{"Status": {"CurrentStatus": [], "TempOfHotbed": 40, "PrintInfo": {"Status": 0}}}`},
		{"missing PrintInfo", `{"Status": {"CurrentStatus": [0], "TempOfHotbed": 40}}`},
		{"missing PrintInfo.Status", `{"Status": {"CurrentStatus": [0], "TempOfHotbed": 40, "PrintInfo": {}}}`},
		{"missing TempOfHotbed", `{"Status": {"CurrentStatus": [0], "PrintInfo": {"Status": 0}}}`},
		{"non-numeric temperature", `{"Status": {"CurrentStatus": [0], "TempOfHotbed": "warm", "PrintInfo": {"Status": 0}}}`},
		{"non-numeric phase", `{"Status": {"CurrentStatus": [0], "TempOfHotbed": 40, "PrintInfo": {"Status": true}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tc.raw))
			require.NoError(t, err)

			_, err = env.Snapshot()
			require.ErrorIs(t, err, ErrMalformedStatus)
		})
	}
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Print", MachineLabel(MachinePrint))
	assert.Equal(t, "PRINTING", PhaseLabel(PhasePrinting))
	// Unknown values fall back to the raw number.
	assert.Equal(t, "42", MachineLabel(42))
	assert.Equal(t, "11", PhaseLabel(11))
}

func TestStatusURL(t *testing.T) {
	d := Device{MainboardIP: "192.168.1.50"}
	assert.Equal(t, "ws://192.168.1.50:3030/websocket", d.StatusURL(0))
	assert.Equal(t, "ws://192.168.1.50:8080/websocket", d.StatusURL(8080))
}

package stophistory

import (
	"encoding/json"
	"fmt"

	"github.com/transitwatch/stophistory/pkg/transit"
)

// codecVersion is bumped when the stored envelope shape changes. A version
// mismatch on read is a serialization error, not an empty history.
const codecVersion = 1

// historyEnvelope is the stored representation of a day history. The scheme
// is a private contract between cache writers and readers; the store treats
// it as opaque bytes.
type historyEnvelope struct {
	Version int                        `json:"v"`
	Events  []transit.ArrivalDeparture `json:"events"`
}

func encodeHistory(events []transit.ArrivalDeparture) ([]byte, error) {
	data, err := json.Marshal(historyEnvelope{Version: codecVersion, Events: events})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

func decodeHistory(data []byte) ([]transit.ArrivalDeparture, error) {
	var env historyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if env.Version != codecVersion {
		return nil, fmt.Errorf("%w: envelope version %d, expected %d", ErrSerialization, env.Version, codecVersion)
	}
	return env.Events, nil
}

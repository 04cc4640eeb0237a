package services

import "encoding/json"

// DevicePayload is the wire form of one device's telemetry: string epoch-ms
// timestamp keys mapping to the conditions and values reported at that time.
type DevicePayload map[string]PayloadRow

// PayloadRow is everything a device reported at one timestamp: its own
// condition maps plus one entry per datastream.
type PayloadRow struct {
	Errors   map[string]string
	Warnings map[string]string
	Infos    []string
	Streams  map[string]StreamRow
	// Malformed lists stream names whose rows failed to decode; they are
	// logged and skipped without failing the payload.
	Malformed []string
}

// StreamRow is one datastream's report at one timestamp. A non-numeric or
// absent value leaves Value nil; conditions are still processed.
type StreamRow struct {
	Value    *float64
	Errors   map[string]string
	Warnings map[string]string
	Infos    []string
}

// UnmarshalJSON decodes a stream row, tolerating a non-numeric value
func (r *StreamRow) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value    json.RawMessage   `json:"v"`
		Errors   map[string]string `json:"e"`
		Warnings map[string]string `json:"w"`
		Infos    []string          `json:"i"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Errors = raw.Errors
	r.Warnings = raw.Warnings
	r.Infos = raw.Infos
	r.Value = nil

	if len(raw.Value) > 0 {
		var v float64
		if err := json.Unmarshal(raw.Value, &v); err == nil {
			r.Value = &v
		}
	}
	return nil
}

// UnmarshalJSON decodes a payload row, splitting the reserved condition keys
// from the per-stream entries.
func (r *PayloadRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Streams = make(map[string]StreamRow)
	for key, value := range raw {
		switch key {
		case "e":
			if err := json.Unmarshal(value, &r.Errors); err != nil {
				return err
			}
		case "w":
			if err := json.Unmarshal(value, &r.Warnings); err != nil {
				return err
			}
		case "i":
			if err := json.Unmarshal(value, &r.Infos); err != nil {
				return err
			}
		default:
			var row StreamRow
			if err := json.Unmarshal(value, &row); err != nil {
				r.Malformed = append(r.Malformed, key)
				continue
			}
			r.Streams[key] = row
		}
	}
	return nil
}

package ingest

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/envirodash/envirodash-api/internal/providers"
)

// PurpleAir history field names this pipeline understands. Unknown fields in
// the header are ignored.
const (
	fieldTimeStamp   = "time_stamp"
	fieldTemperature = "temperature"
	fieldHumidity    = "humidity"
	fieldPressure    = "pressure"
	fieldPM25        = "pm2.5_alt"
)

// AcuRite stations reuse unit keys across unrelated channels, so two fields
// are only valid on one specific channel each: the wind vane reports a bare
// degree value (empty unit key) on channel 4, and the rain gauge reports
// inches on channel 10.
const (
	windDirectionChannel = "4"
	rainfallChannel      = "10"
)

// NormalizePurpleAir converts a columnar history payload into canonical
// readings by zipping the field-name header against each row positionally.
// Rows without a time stamp or without any measurement are dropped.
func NormalizePurpleAir(payload providers.PurpleAirPayload) []Reading {
	readings := make([]Reading, 0, len(payload.Data))
	for _, row := range payload.Data {
		var r Reading
		for i, name := range payload.Fields {
			if i >= len(row) || row[i] == nil {
				continue
			}
			v := *row[i]
			switch name {
			case fieldTimeStamp:
				r.Timestamp = time.Unix(int64(v), 0).UTC()
			case fieldTemperature:
				r.Temperature = ptr(v)
			case fieldHumidity:
				r.Humidity = ptr(v)
			case fieldPressure:
				r.Pressure = ptr(v)
			case fieldPM25:
				r.PM25 = ptr(v)
			}
		}
		if r.Timestamp.IsZero() || !r.HasData() {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

// NormalizeAcuRite reassembles the channel-keyed payload into canonical
// readings, one per time index. Channels carry parallel series of equal
// length (provider guarantee); the walk covers the lowest-numbered channel's
// sample count and bounds-checks every other channel per index, so ragged
// payloads lose samples instead of panicking. Non-numeric channel keys mean
// the payload is not the shape this parser understands and yield nothing.
func NormalizeAcuRite(payload providers.AcuRitePayload) []Reading {
	if len(payload) == 0 {
		return nil
	}

	channels := make([]string, 0, len(payload))
	for id := range payload {
		if _, err := strconv.Atoi(id); err != nil {
			return nil
		}
		channels = append(channels, id)
	}
	sort.Slice(channels, func(i, j int) bool {
		a, _ := strconv.Atoi(channels[i])
		b, _ := strconv.Atoi(channels[j])
		return a < b
	})

	points := len(payload[channels[0]])
	readings := make([]Reading, 0, points)

	for i := 0; i < points; i++ {
		var r Reading
		for _, id := range channels {
			series := payload[id]
			if i >= len(series) {
				continue
			}
			sample := series[i]

			if r.Timestamp.IsZero() && sample.HappenedAt != "" {
				if ts, err := time.Parse(time.RFC3339, sample.HappenedAt); err == nil {
					r.Timestamp = ts.UTC()
				}
			}

			for unit, raw := range sample.RawValues {
				v, ok := toFloat(raw)
				if !ok {
					continue
				}
				switch unit {
				case "F":
					if r.Temperature == nil {
						r.Temperature = ptr(v)
					}
				case "RH":
					r.Humidity = ptr(v)
				case "MPH":
					if r.WindSpeed == nil {
						r.WindSpeed = ptr(v)
					}
				case "HPA":
					r.Pressure = ptr(v)
				case "IN":
					if id == rainfallChannel && r.Rainfall == nil {
						r.Rainfall = ptr(v)
					}
				case "":
					if id == windDirectionChannel {
						r.WindDirection = ptr(v)
					}
				}
			}
		}
		if r.Timestamp.IsZero() || !r.HasData() {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

// toFloat coerces the loosely typed raw values AcuRite channels emit.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func ptr(v float64) *float64 { return &v }

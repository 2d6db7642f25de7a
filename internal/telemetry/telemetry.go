// Package telemetry decodes fixed-layout binary sensor payloads into
// physical units. Pure functions: no I/O, no failure modes beyond input
// length checks.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated reports a payload shorter than the decoded field requires.
var ErrTruncated = errors.New("payload truncated")

// DecodeScaledInt16LE reads a two-byte little-endian signed integer at
// offset and scales it by 1/100. Both temperature and humidity on known
// sensor models use this encoding.
func DecodeScaledInt16LE(b []byte, offset int) (float32, error) {
	if offset < 0 {
		return 0, fmt.Errorf("decode scaled int16: negative offset %d", offset)
	}
	if len(b) < offset+2 {
		return 0, fmt.Errorf("decode scaled int16 at offset %d: need %d bytes, have %d: %w",
			offset, offset+2, len(b), ErrTruncated)
	}
	raw := int16(binary.LittleEndian.Uint16(b[offset : offset+2]))
	return float32(raw) / 100.0, nil
}

// Reading is one complete climate sample. Instances are only materialized
// once both fields have been resolved.
type Reading struct {
	Temperature float32 // degrees Celsius
	Humidity    float32 // percent relative humidity
}

func (r Reading) String() string {
	return fmt.Sprintf("%.2f°C / %.2f%%", r.Temperature, r.Humidity)
}

// Model pins the GATT addresses and payload layout of one sensor variant.
// Byte offsets differ between firmware revisions of otherwise identical
// hardware, so they are per-model data and never hard-coded at call sites.
type Model struct {
	Name string

	ServiceUUID     string
	TemperatureUUID string
	HumidityUUID    string

	TemperatureOffset int
	HumidityOffset    int
}

// DecodeTemperature decodes the temperature field from a notification payload.
func (m Model) DecodeTemperature(b []byte) (float32, error) {
	return DecodeScaledInt16LE(b, m.TemperatureOffset)
}

// DecodeHumidity decodes the humidity field from a notification payload.
func (m Model) DecodeHumidity(b []byte) (float32, error) {
	return DecodeScaledInt16LE(b, m.HumidityOffset)
}

// MJHTV1 is the Xiaomi Mijia MJ_HT_V1 hygrometer. The temperature
// notification carries its value in bytes 0-1; the humidity notification
// carries its value in bytes 2-3 of a combined payload.
var MJHTV1 = Model{
	Name:              "MJ_HT_V1",
	ServiceUUID:       "226c0000-6476-4566-7562-66734470666d",
	TemperatureUUID:   "226caa55-6476-4566-7562-66734470666d",
	HumidityUUID:      "226cbb55-6476-4566-7562-66734470666d",
	TemperatureOffset: 0,
	HumidityOffset:    2,
}

// Models lists the sensor variants this tool knows how to decode.
var Models = []Model{MJHTV1}

// ModelByName returns the model with the given advertised name, if known.
func ModelByName(name string) (Model, bool) {
	for _, m := range Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

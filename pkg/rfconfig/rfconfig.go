// Package rfconfig implements both sides of the fiveg_rf_config interface.
//
// The interface carries the Radio Frequency configuration needed to bring
// up a UE against a DU over a real or simulated RF medium: the RF
// simulator address, Slice/Service Type (SST), Slice Differentiator (SD),
// RF band, downlink frequency, carrier bandwidth, numerology and first
// usable subcarrier. The provider side is typically the DU operator, the
// requirer side the UE operator.
//
// Databags are flat string maps. Integers are decimal-encoded; optional
// fields are omitted entirely, never written as empty placeholders. Both
// sides exchange an interface version number; comparing versions is the
// caller's responsibility, not the codec's.
package rfconfig

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Version is the fiveg_rf_config interface version this library speaks.
const Version = 0

// DefaultRelationName is the canonical name of the relation.
const DefaultRelationName = "fiveg_rf_config"

var (
	// ErrNotLeader is returned when a non-leader unit attempts to publish.
	ErrNotLeader = errors.New("unit is not leader")
	// ErrRelationNotCreated is returned when the relation does not exist.
	ErrRelationNotCreated = errors.New("relation not created")
	// ErrInvalidData is returned when a payload fails schema validation.
	ErrInvalidData = errors.New("invalid relation data")
)

// ProviderData is the full RF configuration record published by the
// provider. RFSIMAddress and SD are optional; everything else is required.
type ProviderData struct {
	Version          int     `json:"version"`
	RFSIMAddress     *string `json:"rfsim_address,omitempty"`
	SST              int     `json:"sst"`
	SD               *int    `json:"sd,omitempty"`
	Band             int     `json:"band"`
	DLFreq           int     `json:"dl_freq"`
	CarrierBandwidth int     `json:"carrier_bandwidth"`
	Numerology       int     `json:"numerology"`
	StartSubcarrier  int     `json:"start_subcarrier"`
}

// RequirerData is the record published by the requirer.
type RequirerData struct {
	Version int `json:"version"`
}

const providerSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "fiveg_rf_config provider databag",
  "type": "object",
  "required": ["version", "sst", "band", "dl_freq", "carrier_bandwidth", "numerology", "start_subcarrier"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 0},
    "rfsim_address": {"type": "string", "anyOf": [{"format": "ipv4"}, {"format": "ipv6"}]},
    "sst": {"type": "integer", "minimum": 0, "maximum": 255},
    "sd": {"type": "integer", "minimum": 0, "maximum": 16777215},
    "band": {"type": "integer", "minimum": 1},
    "dl_freq": {"type": "integer", "minimum": 410000000},
    "carrier_bandwidth": {"type": "integer", "minimum": 11, "maximum": 273},
    "numerology": {"type": "integer", "minimum": 0, "maximum": 6},
    "start_subcarrier": {"type": "integer", "minimum": 0}
  }
}`

const requirerSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "fiveg_rf_config requirer databag",
  "type": "object",
  "required": ["version"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 0}
  }
}`

var (
	providerSchema = mustCompile(providerSchemaJSON)
	requirerSchema = mustCompile(requirerSchemaJSON)
)

func mustCompile(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// validateAgainst marshals v and validates it against schema, returning
// ErrInvalidData with the first violation on failure.
func validateAgainst(schema *gojsonschema.Schema, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding relation data: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validating relation data: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidData, result.Errors()[0])
	}
	return nil
}

// Package desc encodes and decodes voirc connection descriptors: the
// voirc://<base64> URIs a host publishes and a joiner parses to find a
// signaling server.
package desc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedDescriptor is returned when a descriptor string's base64 or
// JSON body cannot be decoded.
var ErrMalformedDescriptor = errors.New("desc: malformed descriptor")

// scheme is the URI prefix descriptors carry; accepted but not required on
// decode (spec allows prefixed and unprefixed input).
const scheme = "voirc://"

// defaultChannel is used when neither "channels" nor the legacy "channel"
// field is present.
const defaultChannel = "#general"

// Descriptor is everything a joiner needs to find and validate a host.
type Descriptor struct {
	Host            string
	Port            uint16
	Channels        []string
	CertFingerprint *string // 64-hex SHA-256 of the server's DER certificate
	RelayPort       *uint16
	PowRequiredBits *uint8 // omitted from the wire when nil or 0
}

// wireDescriptor is the on-the-wire JSON shape. Channel is the legacy
// singular field kept for backward compatibility with older publishers.
type wireDescriptor struct {
	Host            string    `json:"host"`
	Port            uint16    `json:"port"`
	Channels        []string  `json:"channels,omitempty"`
	Channel         string    `json:"channel,omitempty"`
	CertFingerprint *string   `json:"cert_fingerprint,omitempty"`
	RelayPort       *uint16   `json:"relay_port,omitempty"`
	PowRequiredBits *uint8    `json:"pow_required_bits,omitempty"`
}

// Encode renders d as a "voirc://<base64>" URI. Optional fields that are
// nil are omitted from the wire; a zero PowRequiredBits is also omitted
// (spec.md §4.1: "pow_required_bits (0 omitted from the wire)").
func Encode(d Descriptor) string {
	w := wireDescriptor{
		Host:            d.Host,
		Port:            d.Port,
		Channels:        d.Channels,
		CertFingerprint: d.CertFingerprint,
		RelayPort:       d.RelayPort,
	}
	if d.PowRequiredBits != nil && *d.PowRequiredBits != 0 {
		w.PowRequiredBits = d.PowRequiredBits
	}
	body, err := json.Marshal(w)
	if err != nil {
		// wireDescriptor has no un-marshalable fields; this cannot happen.
		panic(fmt.Sprintf("desc: encode: %v", err))
	}
	return scheme + base64.StdEncoding.EncodeToString(body)
}

// Parse decodes a descriptor string, accepting both "voirc://<base64>" and
// bare "<base64>" forms. Missing "channels" (and missing legacy "channel")
// defaults to ["#general"]. Returns ErrMalformedDescriptor if the base64 or
// JSON body is invalid.
func Parse(s string) (Descriptor, error) {
	body := strings.TrimPrefix(s, scheme)

	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}

	var w wireDescriptor
	if err := json.Unmarshal(raw, &w); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}

	d := Descriptor{
		Host:            w.Host,
		Port:            w.Port,
		CertFingerprint: w.CertFingerprint,
		RelayPort:       w.RelayPort,
		PowRequiredBits: w.PowRequiredBits,
	}

	switch {
	case len(w.Channels) > 0:
		d.Channels = w.Channels
	case w.Channel != "":
		d.Channels = []string{w.Channel}
	default:
		d.Channels = []string{defaultChannel}
	}

	// Open question (spec.md §9): the original accepts an empty host or a
	// zero port as "valid". We reject them — a descriptor that can never
	// produce a dialable address is malformed, not merely degenerate.
	if d.Host == "" || d.Port == 0 {
		return Descriptor{}, fmt.Errorf("%w: missing host or port", ErrMalformedDescriptor)
	}

	return d, nil
}

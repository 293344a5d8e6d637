package desc

import (
	"encoding/base64"
	"errors"
	"testing"
)

func u16(v uint16) *uint16 { return &v }
func u8(v uint8) *uint8    { return &v }
func str(v string) *string { return &v }

func TestRoundTrip(t *testing.T) {
	cases := []Descriptor{
		{Host: "localhost", Port: 6667, Channels: []string{"#general"}},
		{
			Host: "example.com", Port: 6697,
			Channels:        []string{"#general", "#voice"},
			CertFingerprint: str("ab"),
			RelayPort:       u16(6668),
			PowRequiredBits: u8(12),
		},
	}
	for _, d := range cases {
		got, err := Parse(Encode(d))
		if err != nil {
			t.Fatalf("parse(encode(%+v)): %v", d, err)
		}
		if got.Host != d.Host || got.Port != d.Port {
			t.Fatalf("host/port mismatch: got %+v want %+v", got, d)
		}
		if len(got.Channels) != len(d.Channels) {
			t.Fatalf("channels mismatch: got %v want %v", got.Channels, d.Channels)
		}
	}
}

func TestEncodeOmitsZeroPow(t *testing.T) {
	zero := uint8(0)
	encoded := Encode(Descriptor{Host: "h", Port: 1, Channels: []string{"#general"}, PowRequiredBits: &zero})
	raw, err := base64.StdEncoding.DecodeString(encoded[len(scheme):])
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) == "" {
		t.Fatal("empty body")
	}
	got, err := Parse(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got.PowRequiredBits != nil {
		t.Fatalf("expected PowRequiredBits to round-trip to nil when 0, got %v", *got.PowRequiredBits)
	}
}

func TestBackwardCompatLegacyChannel(t *testing.T) {
	// {"host":"localhost","port":6667,"channel":"#general"} base64-wrapped.
	body := `{"host":"localhost","port":6667,"channel":"#general"}`
	encoded := scheme + base64.StdEncoding.EncodeToString([]byte(body))

	got, err := Parse(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Host != "localhost" || got.Port != 6667 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Channels) != 1 || got.Channels[0] != "#general" {
		t.Fatalf("channels: got %v", got.Channels)
	}
	if got.PowRequiredBits != nil {
		t.Fatalf("expected nil PowRequiredBits, got %v", *got.PowRequiredBits)
	}
	if got.CertFingerprint != nil {
		t.Fatalf("expected nil CertFingerprint")
	}
	if got.RelayPort != nil {
		t.Fatalf("expected nil RelayPort")
	}
}

func TestParseAcceptsUnprefixed(t *testing.T) {
	full := Encode(Descriptor{Host: "h", Port: 1, Channels: []string{"#general"}})
	unprefixed := full[len(scheme):]
	got, err := Parse(unprefixed)
	if err != nil {
		t.Fatalf("parse unprefixed: %v", err)
	}
	if got.Host != "h" || got.Port != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseDefaultsChannelsWhenAbsent(t *testing.T) {
	body := `{"host":"h","port":1}`
	encoded := scheme + base64.StdEncoding.EncodeToString([]byte(body))
	got, err := Parse(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Channels) != 1 || got.Channels[0] != defaultChannel {
		t.Fatalf("expected default channel, got %v", got.Channels)
	}
}

func TestParseMalformedBase64(t *testing.T) {
	_, err := Parse(scheme + "not valid base64!!")
	if !errors.Is(err, ErrMalformedDescriptor) {
		t.Fatalf("expected ErrMalformedDescriptor, got %v", err)
	}
}

func TestParseMalformedJSON(t *testing.T) {
	encoded := scheme + base64.StdEncoding.EncodeToString([]byte("not json"))
	_, err := Parse(encoded)
	if !errors.Is(err, ErrMalformedDescriptor) {
		t.Fatalf("expected ErrMalformedDescriptor, got %v", err)
	}
}

func TestParseRejectsMissingHostOrPort(t *testing.T) {
	for _, body := range []string{`{"host":"","port":1}`, `{"host":"h","port":0}`} {
		encoded := scheme + base64.StdEncoding.EncodeToString([]byte(body))
		if _, err := Parse(encoded); !errors.Is(err, ErrMalformedDescriptor) {
			t.Fatalf("body %q: expected ErrMalformedDescriptor, got %v", body, err)
		}
	}
}

package clip

import (
	"bytes"
	"errors"
	"testing"
)

func TestTransportRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		clip []byte
	}{
		{"empty", []byte{}},
		{"one byte", []byte{0x7f}},
		{"two bytes", []byte{0x00, 0xff}},
		{"three bytes", []byte{'R', 'I', 'F'}},
		{"header", append([]byte("RIFF\x24\x00\x00\x00WAVE"), make([]byte, 32)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := ToTransport(tt.clip)

			wantLen := 4 * ((len(tt.clip) + 2) / 3)
			if len(payload) != wantLen {
				t.Errorf("Expected payload length %d, got %d", wantLen, len(payload))
			}

			decoded, err := FromTransport(payload)
			if err != nil {
				t.Fatalf("FromTransport failed: %v", err)
			}
			if !bytes.Equal(decoded, tt.clip) {
				t.Errorf("Round trip mismatch: %v != %v", decoded, tt.clip)
			}
		})
	}
}

func TestFromTransportMalformed(t *testing.T) {
	for _, payload := range []string{"!!!!", "abc", "data:audio/wav,AAAA", "data:audio/wav;base64"} {
		_, err := FromTransport(payload)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("FromTransport(%q): expected ErrMalformedPayload, got %v", payload, err)
		}
	}
}

func TestFromTransportDataURL(t *testing.T) {
	clip := []byte{1, 2, 3, 4, 5}

	decoded, err := FromTransport(DataURL(clip, FormatWAV))
	if err != nil {
		t.Fatalf("FromTransport failed: %v", err)
	}
	if !bytes.Equal(decoded, clip) {
		t.Errorf("Expected %v, got %v", clip, decoded)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatWAV, false},
		{"WAV", FormatWAV, false},
		{" mp3 ", FormatMP3, false},
		{"pcm16", FormatPCM16, false},
		{"aac", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if FormatMP3.MIMEType() != "audio/mpeg" {
		t.Errorf("Unexpected MIME type %q", FormatMP3.MIMEType())
	}
}

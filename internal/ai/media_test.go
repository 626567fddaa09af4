package ai

import (
	"encoding/binary"
	"testing"
)

func TestWrapPCM16Header(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := WrapPCM16(pcm, SpeechSampleRate)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len=%d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != SpeechSampleRate {
		t.Fatalf("sample rate=%d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 4 {
		t.Fatalf("data size=%d", got)
	}
}

func TestDecodeDataURI(t *testing.T) {
	mime, data, err := DecodeDataURI("data:image/jpeg;base64,aGk=")
	if err != nil {
		t.Fatalf("DecodeDataURI error: %v", err)
	}
	if mime != "image/jpeg" || string(data) != "hi" || ExtensionFor(mime) != ".jpg" {
		t.Fatalf("mime=%s data=%q", mime, data)
	}

	for _, bad := range []string{"http://x", "data:image/png;base64", "data:text/plain,hi", "data:image/png;base64,***"} {
		if _, _, err := DecodeDataURI(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

package genai

import (
	"encoding/base64"
	"errors"
	"io"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/roboface/pkg/provider/s2s"
)

func TestLiveConfig(t *testing.T) {
	t.Parallel()

	lc := liveConfig(s2s.SessionConfig{
		Voice:               "Zephyr",
		Instructions:        "be brief",
		InputTranscription:  true,
		OutputTranscription: false,
	})
	if len(lc.ResponseModalities) != 1 || lc.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("ResponseModalities = %v; want [AUDIO]", lc.ResponseModalities)
	}
	if lc.SpeechConfig == nil || lc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Zephyr" {
		t.Error("voice not configured")
	}
	if lc.SystemInstruction == nil || lc.SystemInstruction.Parts[0].Text != "be brief" {
		t.Error("system instruction not configured")
	}
	if lc.InputAudioTranscription == nil {
		t.Error("input transcription should be enabled")
	}
	if lc.OutputAudioTranscription != nil {
		t.Error("output transcription should be disabled")
	}

	bare := liveConfig(s2s.SessionConfig{})
	if bare.SpeechConfig != nil || bare.SystemInstruction != nil {
		t.Error("empty config should omit speech config and system instruction")
	}
}

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 2, 3, 4}
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: pcm}},
				{Text: "hello"},
				nil,
			}},
			InputTranscription:  &genai.Transcription{Text: "Hel"},
			OutputTranscription: &genai.Transcription{Text: "Hi", Finished: true},
			Interrupted:         true,
			TurnComplete:        true,
		},
	}
	got := convertMessage(msg)
	if got == nil {
		t.Fatal("convertMessage returned nil")
	}
	if len(got.Audio) != 1 || got.Audio[0].Data != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("Audio = %+v", got.Audio)
	}
	if len(got.Text) != 1 || got.Text[0] != "hello" {
		t.Errorf("Text = %v", got.Text)
	}
	if got.InputTranscription == nil || got.InputTranscription.Text != "Hel" || got.InputTranscription.Finished {
		t.Errorf("InputTranscription = %+v", got.InputTranscription)
	}
	if got.OutputTranscription == nil || !got.OutputTranscription.Finished {
		t.Errorf("OutputTranscription = %+v", got.OutputTranscription)
	}
	if !got.Interrupted || !got.TurnComplete {
		t.Error("flags not carried over")
	}

	if convertMessage(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}) != nil {
		t.Error("setupComplete-only message should not produce a server message")
	}
}

func TestCloseReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		reason string
		ok     bool
	}{
		{err: io.EOF, reason: "end of stream", ok: true},
		{err: errors.New("read: websocket: close 1000 (normal): bye"), reason: "1000 (normal): bye", ok: true},
		{err: errors.New("read tcp: connection reset by peer"), ok: false},
	}
	for _, tc := range tests {
		reason, ok := closeReason(tc.err)
		if ok != tc.ok || reason != tc.reason {
			t.Errorf("closeReason(%v) = %q, %v; want %q, %v", tc.err, reason, ok, tc.reason, tc.ok)
		}
	}
}

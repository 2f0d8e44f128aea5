// SPDX-License-Identifier: MIT

package intent

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_VoiceWorkedExample(t *testing.T) {
	env, err := Normalize(Input{
		Channel:    ChannelVoice,
		Transcript: "   Approve invoice #123   ",
		TraceID:    "t1",
	})
	require.NoError(t, err)

	want := Envelope{
		Channel: ChannelVoice,
		Type:    "voice.intent",
		Payload: map[string]any{
			"message":  "Approve invoice #123",
			"modality": "voice",
			"language": "en",
		},
		TraceID: "t1",
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Fatalf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_VoiceTrimsInvisibleRunes(t *testing.T) {
	env, err := Normalize(Input{
		Channel:    ChannelVoice,
		Transcript: "\ufeff\u200b turn off the lights \u200d\n",
		TraceID:    "t2",
	})
	require.NoError(t, err)
	assert.Equal(t, "turn off the lights", env.Payload["message"])
}

func TestNormalize_VoiceLocaleOverride(t *testing.T) {
	env, err := Normalize(Input{
		Channel:    ChannelVoice,
		Transcript: "Rechnung freigeben",
		Locale:     "de",
		TraceID:    "t3",
	})
	require.NoError(t, err)
	assert.Equal(t, "de", env.Payload["language"])
}

func TestNormalize_Text(t *testing.T) {
	env, err := Normalize(Input{
		Channel: ChannelText,
		Message: "  hello  ",
		TraceID: "t4",
	})
	require.NoError(t, err)
	assert.Equal(t, TypeTextIntent, env.Type)
	assert.Equal(t, "hello", env.Payload["message"])
	assert.Equal(t, "text", env.Payload["modality"])
	assert.Equal(t, "en", env.Payload["language"])
}

func TestNormalize_APIPassthrough(t *testing.T) {
	workflow := map[string]any{"id": "wf-9", "steps": []any{"a", "b"}}
	env, err := Normalize(Input{
		Channel: ChannelAPI,
		Payload: map[string]any{
			"type":     "workflow.start",
			"workflow": workflow,
		},
		RequiresApproval: true,
		TraceID:          "t5",
	})
	require.NoError(t, err)
	assert.Equal(t, "workflow.start", env.Type)
	assert.True(t, env.RequiresApproval)
	// type is extracted, the rest passes through untouched
	assert.NotContains(t, env.Payload, "type")
	assert.Equal(t, workflow, env.Payload["workflow"])
}

func TestNormalize_Idempotent(t *testing.T) {
	in := Input{Channel: ChannelText, Message: " same input ", TraceID: "fixed"}
	a, err := Normalize(in)
	require.NoError(t, err)
	b, err := Normalize(in)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("normalizing twice diverged (-first +second):\n%s", diff)
	}
}

func TestNormalize_GeneratesTraceID(t *testing.T) {
	a, err := Normalize(Input{Channel: ChannelText, Message: "hi"})
	require.NoError(t, err)
	b, err := Normalize(Input{Channel: ChannelText, Message: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.TraceID)
	assert.NotEqual(t, a.TraceID, b.TraceID, "fresh trace IDs expected when none supplied")
}

func TestNormalize_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"unknown channel", Input{Channel: "smoke-signal"}},
		{"empty voice transcript", Input{Channel: ChannelVoice, Transcript: "   \u200b "}},
		{"empty text message", Input{Channel: ChannelText, Message: "\n\t"}},
		{"api payload missing", Input{Channel: ChannelAPI}},
		{"api type missing", Input{Channel: ChannelAPI, Payload: map[string]any{"workflow": "x"}}},
		{"api type not a string", Input{Channel: ChannelAPI, Payload: map[string]any{"type": 42}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation), "want ErrValidation, got %v", err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientText(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_text","session_id":"s1","text":"hi there"}`))
	require.NoError(t, err)
	text, ok := msg.(ClientText)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "s1", text.SessionID)
	assert.Equal(t, "hi there", text.Text)

	_, err = ParseClientMessage([]byte(`{"type":"client_text","text":"   "}`))
	assert.Error(t, err)
}

func TestParseClientAudio(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_audio","audio_base64":"UklGRg==","format":"wav"}`))
	require.NoError(t, err)
	clip, ok := msg.(ClientAudio)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "wav", clip.Format)

	_, err = ParseClientMessage([]byte(`{"type":"client_audio"}`))
	assert.Error(t, err)
}

func TestParseClientControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"clear_memory"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientControl{Type: TypeClientControl, Action: ActionClearMemory}, msg)

	_, err = ParseClientMessage([]byte(`{"type":"client_control","action":"dance"}`))
	assert.Error(t, err)
}

func TestParseClientMessageRejects(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ParseClientMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestAnalysisResultOmitsEmptyAudio(t *testing.T) {
	b, err := json.Marshal(AnalysisResult{Type: TypeAnalysisResult, SessionID: "s1", Intent: "greeting"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "audio_base64")
	assert.Contains(t, string(b), `"type":"analysis_result"`)
}

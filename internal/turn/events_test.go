// ABOUTME: Tests for decoding wire frames into typed turn events
// ABOUTME: Covers named and type-field frames, payload fields, unknown and malformed frames

package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_NamedFrames(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Event
	}{
		{NameStage1Start, `{}`, Stage1Start{}},
		{NameStage2Start, ``, Stage2Start{}},
		{NameStage3Start, `{"type":"stage3_start"}`, Stage3Start{}},
		{NameComplete, `{}`, Complete{}},
		{NameError, `{"message":"boom"}`, Error{Message: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.name, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
			assert.Equal(t, tt.name, ev.Name())
		})
	}
}

func TestDecode_CompletePayloads(t *testing.T) {
	ev, err := Decode(NameStage1Complete, []byte(`{"data":[{"model":"a","response":"x"}]}`))
	require.NoError(t, err)
	s1, ok := ev.(Stage1Complete)
	require.True(t, ok)
	assert.JSONEq(t, `[{"model":"a","response":"x"}]`, string(s1.Data))

	ev, err = Decode(NameStage2Complete, []byte(`{"data":"y","metadata":{"m":1}}`))
	require.NoError(t, err)
	s2, ok := ev.(Stage2Complete)
	require.True(t, ok)
	assert.JSONEq(t, `"y"`, string(s2.Data))
	assert.JSONEq(t, `{"m":1}`, string(s2.Metadata))

	ev, err = Decode(NameStage3Complete, []byte(`{"data":{"model":"chair","response":"z"}}`))
	require.NoError(t, err)
	s3, ok := ev.(Stage3Complete)
	require.True(t, ok)
	assert.JSONEq(t, `{"model":"chair","response":"z"}`, string(s3.Data))
}

func TestDecode_TypeFieldNamesEvent(t *testing.T) {
	ev, err := Decode("", []byte(`{"type":"stage1_complete","data":"x"}`))
	require.NoError(t, err)

	s1, ok := ev.(Stage1Complete)
	require.True(t, ok)
	assert.JSONEq(t, `"x"`, string(s1.Data))
}

func TestDecode_TitleComplete(t *testing.T) {
	ev, err := Decode(NameTitleComplete, []byte(`{"data":{"title":"Tea debate"}}`))
	require.NoError(t, err)
	assert.Equal(t, TitleComplete{Title: "Tea debate"}, ev)

	// An unreadable title still yields the event so the list refreshes.
	ev, err = Decode(NameTitleComplete, []byte(`{"data":42}`))
	require.NoError(t, err)
	assert.Equal(t, TitleComplete{}, ev)
}

func TestDecode_Unknown(t *testing.T) {
	ev, err := Decode("heartbeat", []byte(`{"n":1}`))
	require.NoError(t, err)

	u, ok := ev.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "heartbeat", u.Name())
	assert.JSONEq(t, `{"n":1}`, string(u.Raw))
	assert.False(t, IsTerminal(ev))
}

func TestDecode_UnknownNamedFrameWithTextBody(t *testing.T) {
	ev, err := Decode("ping", []byte("keepalive"))
	require.NoError(t, err)

	u, ok := ev.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "ping", u.Name())
	assert.Equal(t, "keepalive", string(u.Raw))
}

func TestKnown(t *testing.T) {
	for _, name := range []string{
		NameStage1Start, NameStage1Complete, NameStage2Start, NameStage2Complete,
		NameStage3Start, NameStage3Complete, NameTitleComplete, NameComplete, NameError,
	} {
		assert.True(t, Known(name), name)
	}
	assert.False(t, Known("ping"))
	assert.False(t, Known(""))
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(NameStage1Complete, []byte(`{"data":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), NameStage1Complete)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Complete{}))
	assert.True(t, IsTerminal(Error{Message: "x"}))
	assert.False(t, IsTerminal(Stage3Complete{}))
	assert.False(t, IsTerminal(TitleComplete{}))
}

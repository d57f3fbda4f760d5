package transcode

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/receipt-stt/internal/audio"
)

// fakeStrategy records every call and returns a canned result.
type fakeStrategy struct {
	name    string
	applies bool
	out     []byte
	err     error

	mu    sync.Mutex
	calls []audio.Format
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Applies(context.Context, audio.Format) bool { return f.applies }

func (f *fakeStrategy) Convert(_ context.Context, _ []byte, format audio.Format) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, format)
	f.mu.Unlock()
	return f.out, f.err
}

func failing(name string) *fakeStrategy {
	return &fakeStrategy{name: name, applies: true, err: errors.New(name + " failed")}
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveAttempt(strategy, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[strategy+"/"+outcome]++
}

func sine16k(t *testing.T) []byte {
	t.Helper()
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	data, err := audio.EncodeWAV(audio.PCM{Samples: samples, SampleRate: 16000, Channels: 1}, 16)
	require.NoError(t, err)
	return data
}

func TestDefaultChainOrder(t *testing.T) {
	tc := New(Decode{}, External{})
	assert.Equal(t, []string{"decode", "ffmpeg", "identity-wav", "decode-as-webm", "passthrough-webm"}, tc.Strategies())

	noExternal := New(Decode{}, nil)
	assert.Equal(t, []string{"decode", "identity-wav", "decode-as-webm", "passthrough-webm"}, noExternal.Strategies())
}

func TestPrimarySuccessStopsChain(t *testing.T) {
	primary := &fakeStrategy{name: "primary", applies: true, out: []byte("canonical")}
	external := &fakeStrategy{name: "external", applies: true, out: []byte("other")}
	tc := New(primary, external)

	out, strategy, err := tc.CanonicalizeWith(context.Background(), []byte("in"), audio.MP3)
	require.NoError(t, err)
	assert.Equal(t, "canonical", string(out))
	assert.Equal(t, "primary", strategy)
	assert.Empty(t, external.calls)
}

func TestExternalUsedWhenPrimaryFails(t *testing.T) {
	primary := failing("primary")
	external := &fakeStrategy{name: "external", applies: true, out: []byte("from-ffmpeg")}
	tc := New(primary, external)

	out, err := tc.Canonicalize(context.Background(), []byte("in"), audio.M4A)
	require.NoError(t, err)
	assert.Equal(t, "from-ffmpeg", string(out))
	assert.Equal(t, []audio.Format{audio.M4A}, external.calls)
}

func TestWebMTerminalFallback(t *testing.T) {
	primary := failing("primary")
	external := failing("external")
	obs := &countingObserver{}
	tc := New(primary, external, WithObserver(obs))

	in := []byte("not really webm")
	out, strategy, err := tc.CanonicalizeWith(context.Background(), in, audio.WebM)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, "passthrough-webm", strategy)

	// primary ran twice: once generically, once retagged as webm.
	assert.Equal(t, []audio.Format{audio.WebM, audio.WebM}, primary.calls)
	assert.Len(t, external.calls, 1)
	assert.Equal(t, 1, obs.counts["identity-wav/skipped"])
	assert.Equal(t, 1, obs.counts["primary-as-webm/failure"])
	assert.Equal(t, 1, obs.counts["passthrough-webm/success"])
}

func TestWAVIdentityFallback(t *testing.T) {
	primary := failing("primary")
	external := failing("external")
	tc := New(primary, external)

	in := []byte("RIFF....WAVE but broken")
	out, strategy, err := tc.CanonicalizeWith(context.Background(), in, audio.WAV)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, "identity-wav", strategy)
	assert.Len(t, primary.calls, 1)
}

func TestFLACExhaustsChain(t *testing.T) {
	primary := failing("primary")
	external := failing("external")
	tc := New(primary, external)

	out, err := tc.Canonicalize(context.Background(), []byte("flac?"), audio.FLAC)
	require.Error(t, err)
	assert.Nil(t, out)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, audio.FLAC, terr.Format)
	assert.EqualError(t, terr.Err, "external failed")
	assert.ErrorIs(t, err, external.err)

	require.Len(t, terr.Attempts, 5)
	assert.Equal(t, "primary", terr.Attempts[0].Strategy)
	assert.False(t, terr.Attempts[0].OK())
	assert.True(t, terr.Attempts[2].Skipped)
	assert.True(t, terr.Attempts[3].Skipped)
	assert.True(t, terr.Attempts[4].Skipped)
	assert.Contains(t, err.Error(), "tried primary, external")
}

func TestExternalSkippedWhenUnavailable(t *testing.T) {
	primary := failing("primary")
	external := &fakeStrategy{name: "external", applies: false, out: []byte("x")}
	tc := New(primary, external)

	_, err := tc.Canonicalize(context.Background(), []byte("ogg?"), audio.OGG)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Attempts[1].Skipped)
	assert.Empty(t, external.calls)
	assert.EqualError(t, terr.Err, "primary failed")
}

func TestCanceledContext(t *testing.T) {
	primary := failing("primary")
	tc := New(primary, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tc.Canonicalize(ctx, []byte("x"), audio.MP3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, primary.calls)
}

func TestDecodeStrategyCanonicalizesWAV(t *testing.T) {
	in := sine16k(t)
	out, err := Decode{}.Convert(context.Background(), in, audio.WAV)
	require.NoError(t, err)

	info, err := audio.Probe(out)
	require.NoError(t, err)
	assert.True(t, info.Canonical())
	assert.Equal(t, 16000, info.Frames)
}

func TestDecodeStrategyMislabeled(t *testing.T) {
	_, err := Decode{}.Convert(context.Background(), sine16k(t), audio.FLAC)
	assert.Error(t, err)

	_, err = Decode{}.Convert(context.Background(), sine16k(t), audio.WebM)
	assert.ErrorIs(t, err, audio.ErrUnsupportedCodec)
}

func TestDefaultChainInvalidWebM(t *testing.T) {
	tc := New(Decode{}, failing("ffmpeg"))

	in := []byte("\x1aE\xdf\xa3 truncated webm upload")
	out, strategy, err := tc.CanonicalizeWith(context.Background(), in, audio.WebM)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, "passthrough-webm", strategy)
}

func TestDefaultChainMislabeledWAVRecoversUnderWAV(t *testing.T) {
	tc := New(Decode{}, nil)

	_, err := tc.Canonicalize(context.Background(), sine16k(t), audio.OGG)
	require.Error(t, err)

	out, err := tc.Canonicalize(context.Background(), sine16k(t), audio.WAV)
	require.NoError(t, err)
	info, err := audio.Probe(out)
	require.NoError(t, err)
	assert.True(t, info.Canonical())
}

func TestIdentityRejectsEmpty(t *testing.T) {
	_, err := Identity{Format: audio.WAV}.Convert(context.Background(), nil, audio.WAV)
	assert.EqualError(t, err, "transcode: empty input")
}

func TestNoStrategyApplies(t *testing.T) {
	skipped := &fakeStrategy{name: "skipped", applies: false}
	tc := NewChain([]Strategy{skipped})

	_, err := tc.Canonicalize(context.Background(), []byte("x"), audio.AAC)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.EqualError(t, terr.Err, "transcode: no strategy applies")
	assert.True(t, terr.Attempts[0].Skipped)
}

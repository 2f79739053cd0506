package events

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop_ImplementsReporter(t *testing.T) {
	var r Reporter = Nop{}
	r.OnProgress(1, 2)
	r.OnStatus("ok")

	assert.Equal(t, Nop{}, OrNop(nil))
	lr := NewLineReporter(&bytes.Buffer{}, time.Second)
	assert.Same(t, lr, OrNop(lr).(*LineReporter))
}

func TestChannelReporter_Lifecycle(t *testing.T) {
	r := NewChannelReporter("dl-1", 16)

	r.OnStart(DownloadStartedMsg{Filename: "a.bin", Total: 100})
	r.OnStatus("probing")
	r.OnProgress(50, 100)
	r.OnProgress(100, 100)
	r.Complete("a.bin", 100, "abc")

	var got []any
	for msg := range r.Messages() {
		got = append(got, msg)
	}
	require.Len(t, got, 5)

	started, ok := got[0].(DownloadStartedMsg)
	require.True(t, ok)
	assert.Equal(t, "dl-1", started.DownloadID)

	status, ok := got[1].(StatusMsg)
	require.True(t, ok)
	assert.Equal(t, "probing", status.Text)

	last, ok := got[3].(ProgressMsg)
	require.True(t, ok)
	assert.Equal(t, int64(100), last.Downloaded)

	done, ok := got[4].(DownloadCompleteMsg)
	require.True(t, ok)
	assert.Equal(t, "abc", done.SHA256)
}

func TestChannelReporter_DropsIntermediateWhenFull(t *testing.T) {
	r := NewChannelReporter("dl-2", 1)

	r.OnProgress(10, 100) // fills buffer
	r.OnProgress(20, 100) // dropped, must not block

	done := make(chan struct{})
	go func() {
		r.OnProgress(100, 100) // completion blocks until drained
		r.Fail("x", errors.New("boom"))
		close(done)
	}()

	var got []any
	for msg := range r.Messages() {
		got = append(got, msg)
	}
	<-done

	require.Len(t, got, 3)
	assert.Equal(t, int64(10), got[0].(ProgressMsg).Downloaded)
	assert.Equal(t, int64(100), got[1].(ProgressMsg).Downloaded)
	assert.EqualError(t, got[2].(DownloadErrorMsg).Err, "boom")
}

func TestLineReporter_Throttles(t *testing.T) {
	var buf bytes.Buffer
	r := NewLineReporter(&buf, time.Hour)

	r.OnProgress(1024, 4096)
	r.OnProgress(2048, 4096) // within interval, skipped
	r.OnProgress(4096, 4096) // completion always printed
	r.OnStatus("verifying")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "25.0%")
	assert.Contains(t, lines[1], "100.0%")
	assert.Equal(t, "verifying", lines[2])
}

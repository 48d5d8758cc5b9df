package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrule-dev/ferrule/errors"
)

// frame builds a raw wire frame around the given body
func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestRoundTripRequest(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	r := NewFrameReader(&buf)

	req := NewRequest(7, "textDocument/hover", map[string]string{"uri": "file:///tmp/a.go"})
	require.NoError(t, w.Write(req))

	msg, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, msg.ID)
	assert.Equal(t, int64(7), *msg.ID)
	assert.Equal(t, "textDocument/hover", msg.Method)
	assert.JSONEq(t, `{"uri":"file:///tmp/a.go"}`, string(msg.Params))
}

func TestRoundTripMultibyteBody(t *testing.T) {
	// Content-Length counts bytes, not runes. A body full of multibyte
	// runes catches any codec that measures the wrong one.
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	req := NewRequest(1, "workspace/symbol", map[string]string{"query": "héllo — 世界"})
	require.NoError(t, w.Write(req))

	msg, err := NewFrameReader(&buf).Read()
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"héllo — 世界"}`, string(msg.Params))
}

func TestRoundTripNotification(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf).Write(NewNotification("initialized", struct{}{})))

	msg, err := NewFrameReader(&buf).Read()
	require.NoError(t, err)
	assert.Nil(t, msg.ID)
	assert.Equal(t, "initialized", msg.Method)
	assert.True(t, msg.IsNotification())
}

func TestNotificationOmitsIDOnWire(t *testing.T) {
	data, err := json.Marshal(NewNotification("exit", nil))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)

	data, err = json.Marshal(NewRequest(3, "shutdown", nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":3`)
}

func TestChunkedDelivery(t *testing.T) {
	// One byte at a time across two frames. The reader must still find
	// the exact frame boundaries.
	stream := frame(`{"jsonrpc":"2.0","id":1,"result":"a"}`) + frame(`{"jsonrpc":"2.0","id":2,"result":"b"}`)
	r := NewFrameReader(iotest.OneByteReader(strings.NewReader(stream)))

	first, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, first.ID)
	assert.Equal(t, int64(1), *first.ID)
	assert.Equal(t, `"a"`, string(first.Result))

	second, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, second.ID)
	assert.Equal(t, int64(2), *second.ID)

	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestBackToBackFrames(t *testing.T) {
	stream := frame(`{"jsonrpc":"2.0","id":10,"result":{}}`) + frame(`{"jsonrpc":"2.0","method":"window/logMessage","params":{}}`)
	r := NewFrameReader(strings.NewReader(stream))

	first, err := r.Read()
	require.NoError(t, err)
	assert.True(t, first.IsResponse())

	second, err := r.Read()
	require.NoError(t, err)
	assert.True(t, second.IsNotification())
}

func TestExtraHeadersTolerated(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"result":null}`
	stream := fmt.Sprintf("Content-Type: application/vscode-jsonrpc; charset=utf-8\r\nContent-Length: %d\r\nX-Debug: yes\r\n\r\n%s", len(body), body)

	msg, err := NewFrameReader(strings.NewReader(stream)).Read()
	require.NoError(t, err)
	require.NotNil(t, msg.ID)
	assert.Equal(t, int64(1), *msg.ID)
}

func TestMissingContentLength(t *testing.T) {
	stream := "Content-Type: application/json\r\n\r\n{}"

	_, err := NewFrameReader(strings.NewReader(stream)).Read()
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))
}

func TestNonNumericContentLength(t *testing.T) {
	stream := "Content-Length: banana\r\n\r\n{}"

	_, err := NewFrameReader(strings.NewReader(stream)).Read()
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))
	assert.Contains(t, err.Error(), "banana")
}

func TestNegativeContentLength(t *testing.T) {
	stream := "Content-Length: -5\r\n\r\n"

	_, err := NewFrameReader(strings.NewReader(stream)).Read()
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))
}

func TestInvalidBodyKeepsFrameAlignment(t *testing.T) {
	// The first body is garbage but its declared length is honest, so the
	// reader consumes exactly that many bytes and the next frame still
	// decodes.
	stream := frame(`{"jsonrpc":`) + frame(`{"jsonrpc":"2.0","id":2,"result":"ok"}`)
	r := NewFrameReader(strings.NewReader(stream))

	_, err := r.Read()
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))

	msg, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, msg.ID)
	assert.Equal(t, int64(2), *msg.ID)
	assert.Equal(t, `"ok"`, string(msg.Result))
}

func TestCleanEOF(t *testing.T) {
	_, err := NewFrameReader(strings.NewReader("")).Read()
	assert.Equal(t, io.EOF, err)

	r := NewFrameReader(strings.NewReader(frame(`{"jsonrpc":"2.0","id":1,"result":null}`)))
	_, err = r.Read()
	require.NoError(t, err)
	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestTruncatedBody(t *testing.T) {
	stream := "Content-Length: 100\r\n\r\n{\"jsonrpc\":\"2.0\"}"

	_, err := NewFrameReader(strings.NewReader(stream)).Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.IsProtocol(err))
}

func TestTruncatedHeader(t *testing.T) {
	_, err := NewFrameReader(strings.NewReader("Content-Len")).Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

// countingWriter records how many Write calls it sees
type countingWriter struct {
	bytes.Buffer
	calls int
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	cw.calls++
	return cw.Buffer.Write(p)
}

func TestWriterEmitsWholeFrames(t *testing.T) {
	// One Write call per frame is what lets the transport's writer lock
	// guarantee frames never interleave.
	cw := &countingWriter{}
	w := NewFrameWriter(cw)

	require.NoError(t, w.Write(NewRequest(1, "initialize", nil)))
	require.NoError(t, w.Write(NewNotification("initialized", nil)))
	assert.Equal(t, 2, cw.calls)

	r := NewFrameReader(&cw.Buffer)
	first, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "initialize", first.Method)
	second, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "initialized", second.Method)
}

func TestWriteUnmarshalableMessage(t *testing.T) {
	var buf bytes.Buffer
	err := NewFrameWriter(&buf).Write(map[string]interface{}{"bad": func() {}})
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

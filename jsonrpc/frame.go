package jsonrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ferrule-dev/ferrule/errors"
)

const contentLengthHeader = "Content-Length:"

// FrameWriter encodes messages onto a byte stream as Content-Length framed
// JSON. Each frame is emitted as a single Write call so that a caller
// serializing writes with a lock gets whole-frame atomicity for free.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter returns a writer framing messages onto w
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Write marshals msg and emits one Content-Length framed message
func (fw *FrameWriter) Write(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON-RPC message")
	}

	header := fmt.Sprintf("%s %d\r\n\r\n", contentLengthHeader, len(data))
	frame := make([]byte, 0, len(header)+len(data))
	frame = append(frame, header...)
	frame = append(frame, data...)

	if _, err := fw.w.Write(frame); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

// FrameReader decodes Content-Length framed messages from a byte stream.
//
// ReadRaw consumes exactly the bytes the frame's own header declared, so a
// body that turns out to be invalid JSON never desynchronizes the frame
// boundaries that follow it. Header-level corruption is different: without a
// parseable Content-Length the frame boundary is unknowable, so those errors
// leave the stream unusable and the caller should stop reading.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader returns a reader decoding frames from r
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Read decodes the next complete message from the stream. It returns io.EOF
// when the stream ends cleanly between frames, an error wrapping ErrProtocol
// for malformed headers or bodies, and the underlying read error otherwise.
func (fr *FrameReader) Read() (*Message, error) {
	body, err := fr.ReadRaw()
	if err != nil {
		return nil, err
	}
	return ParseMessage(body)
}

// ReadRaw reads one frame and returns its undecoded body. The returned slice
// holds exactly the number of bytes the frame header declared.
func (fr *FrameReader) ReadRaw() ([]byte, error) {
	contentLength := -1
	sawHeader := false

	for {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" && !sawHeader {
				// Clean end of stream between frames
				return nil, io.EOF
			}
			if err == io.EOF {
				return nil, errors.Wrap(io.ErrUnexpectedEOF, "stream truncated inside frame header")
			}
			return nil, errors.Wrap(err, "failed to read frame header")
		}
		sawHeader = true

		line = strings.TrimSpace(line)
		if line == "" {
			// Blank line ends the header block
			break
		}

		if rest, ok := strings.CutPrefix(line, contentLengthHeader); ok {
			n, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return nil, errors.WrapProtocol(err, fmt.Sprintf("invalid Content-Length %q", strings.TrimSpace(rest)))
			}
			if n < 0 {
				return nil, errors.NewProtocolf("negative Content-Length %d", n)
			}
			contentLength = n
		}
		// Other headers (Content-Type and friends) are tolerated and ignored
	}

	if contentLength < 0 {
		return nil, errors.NewProtocolf("frame header missing Content-Length")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, errors.Wrap(err, "failed to read frame body")
	}
	return body, nil
}

// ParseMessage decodes a frame body into a Message
func ParseMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errors.WrapProtocol(err, "failed to decode frame body")
	}
	return &msg, nil
}

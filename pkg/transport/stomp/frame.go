package stomp

import (
	"bytes"
	"io"
	"sort"
	"strconv"

	"github.com/HMasataka/roomlink/pkg/domain"
	"github.com/HMasataka/roomlink/pkg/errors"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// Header names
const (
	HeaderAcceptVersion = "accept-version"
	HeaderAck           = "ack"
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderDestination   = "destination"
	HeaderHeartBeat     = "heart-beat"
	HeaderHost          = "host"
	HeaderID            = "id"
	HeaderMessage       = "message"
	HeaderMessageID     = "message-id"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderSubscription  = "subscription"
	HeaderVersion       = "version"
)

// Headers returns the headers of f as a map, first occurrence winning
func Headers(f *frame.Frame) domain.Headers {
	if f.Header == nil {
		return domain.Headers{}
	}

	headers := make(domain.Headers, f.Header.Len())
	for i := 0; i < f.Header.Len(); i++ {
		k, v := f.Header.GetAt(i)
		if _, ok := headers[k]; !ok {
			headers[k] = v
		}
	}
	return headers
}

// SetHeaders copies headers onto f in key order
func SetHeaders(f *frame.Frame, headers domain.Headers) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		f.Header.Set(k, headers[k])
	}
}

// Encode serialises f. A content-length header is added when the body is
// not empty.
func Encode(f *frame.Frame) ([]byte, error) {
	if len(f.Body) > 0 {
		if _, ok := f.Header.Contains(HeaderContentLength); !ok {
			f.Header.Set(HeaderContentLength, strconv.Itoa(len(f.Body)))
		}
	}

	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "ENCODE_FAILED", "failed to encode frame")
	}
	return buf.Bytes(), nil
}

// FrameReader reads frames from successive websocket messages. A message
// may carry several frames, part of a frame, or heart-beat EOLs.
type FrameReader struct {
	stream *messageStream
	reader *frame.Reader
}

// NewFrameReader returns a reader over ws. When limit is positive a frame
// whose bytes exceed it fails with FRAME_TOO_LARGE.
func NewFrameReader(ws *websocket.Conn, limit int64) *FrameReader {
	stream := &messageStream{ws: ws, limit: limit}
	return &FrameReader{
		stream: stream,
		reader: frame.NewReader(stream),
	}
}

// OnMessage sets fn to run whenever a websocket message arrives
func (r *FrameReader) OnMessage(fn func()) {
	r.stream.onMessage = fn
}

// Read returns the next frame, skipping heart-beats
func (r *FrameReader) Read() (*frame.Frame, error) {
	for {
		f, err := r.reader.Read()
		if err != nil {
			if r.stream.err != nil {
				return nil, r.stream.err
			}
			return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "MALFORMED_FRAME", "invalid STOMP frame")
		}
		r.stream.pending = 0
		if f != nil {
			return f, nil
		}
	}
}

// messageStream joins websocket messages into one byte stream
type messageStream struct {
	ws        *websocket.Conn
	cur       io.Reader
	limit     int64
	pending   int64
	onMessage func()
	err       error
}

func (s *messageStream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	for {
		if s.cur == nil {
			_, r, err := s.ws.NextReader()
			if err != nil {
				s.err = errors.Wrap(err, errors.ErrorTypeTransport, "READ_FAILED", "websocket read failed")
				return 0, s.err
			}
			if s.onMessage != nil {
				s.onMessage()
			}
			s.cur = r
		}

		n, err := s.cur.Read(p)
		s.pending += int64(n)
		if s.limit > 0 && s.pending > s.limit {
			s.err = errors.New(errors.ErrorTypeProtocol, "FRAME_TOO_LARGE", "frame exceeds the size limit").
				WithDetails(strconv.FormatInt(s.limit, 10))
			return 0, s.err
		}

		switch {
		case err == io.EOF:
			s.cur = nil
			if n > 0 {
				return n, nil
			}
		case err != nil:
			s.err = errors.Wrap(err, errors.ErrorTypeTransport, "READ_FAILED", "websocket read failed")
			return n, s.err
		default:
			return n, nil
		}
	}
}

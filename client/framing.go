package client

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Desarso/chatrelay/models"
)

// ErrTruncatedFrame is returned by Finish when the stream ended inside a frame.
var ErrTruncatedFrame = errors.New("stream ended in the middle of a frame")

// FrameDecoder turns arbitrarily chunked stream bytes into frames.
//
// Bytes are buffered undecoded until a full line is available. A line feed
// byte never occurs inside a multi-byte UTF-8 sequence, so a rune split
// across chunks is always reassembled before it is decoded.
type FrameDecoder struct {
	buf  []byte
	done bool
}

// Feed adds a chunk and returns the frames completed by it. sentinel reports
// that the [DONE] terminator was seen; nothing is decoded after it. A complete
// line that does not decode aborts with an error wrapping
// models.ErrMalformedPayload; frames decoded before it are still returned.
func (d *FrameDecoder) Feed(chunk []byte) (frames []models.StreamFrame, sentinel bool, err error) {
	if d.done {
		return nil, true, nil
	}
	d.buf = append(d.buf, chunk...)

	consumed := 0
	for {
		idx := bytes.IndexByte(d.buf[consumed:], '\n')
		if idx < 0 {
			break
		}
		line := d.buf[consumed : consumed+idx]
		consumed += idx + 1

		frame, ok, isSentinel, lerr := decodeLine(line)
		if lerr != nil {
			// A terminated line cannot be completed by more bytes.
			if errors.Is(lerr, models.ErrIncompletePayload) {
				lerr = fmt.Errorf("%w: %v", models.ErrMalformedPayload, lerr)
			}
			d.compact(consumed)
			return frames, false, lerr
		}
		if isSentinel {
			d.done = true
			d.buf = nil
			return frames, true, nil
		}
		if ok {
			frames = append(frames, frame)
		}
	}

	d.compact(consumed)
	return frames, false, nil
}

// Finish is called once the stream has ended. A trailing line without its
// line feed is decoded if it is a whole frame; a cut-off frame yields
// ErrTruncatedFrame.
func (d *FrameDecoder) Finish() ([]models.StreamFrame, bool, error) {
	if d.done || len(d.buf) == 0 {
		return nil, d.done, nil
	}
	line := d.buf
	d.buf = nil

	frame, ok, isSentinel, err := decodeLine(line)
	switch {
	case errors.Is(err, models.ErrIncompletePayload):
		return nil, false, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	case err != nil:
		return nil, false, err
	case isSentinel:
		d.done = true
		return nil, true, nil
	case ok:
		return []models.StreamFrame{frame}, false, nil
	}
	return nil, false, nil
}

// Buffered returns the number of bytes waiting for a line feed.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

func (d *FrameDecoder) compact(consumed int) {
	if consumed == 0 {
		return
	}
	rest := d.buf[consumed:]
	d.buf = append(make([]byte, 0, len(rest)), rest...)
}

// decodeLine decodes one line. ok is false for lines that are not frames.
func decodeLine(line []byte) (frame models.StreamFrame, ok bool, sentinel bool, err error) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(models.FramePrefix)) {
		return models.StreamFrame{}, false, false, nil
	}
	payload := line[len(models.FramePrefix):]
	if string(payload) == models.DoneSentinel {
		return models.StreamFrame{}, false, true, nil
	}
	frame, err = models.DecodePayload(payload)
	if err != nil {
		return models.StreamFrame{}, false, false, err
	}
	return frame, true, false, nil
}

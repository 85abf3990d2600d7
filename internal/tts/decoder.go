package tts

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/lexiqai/voice-translator/internal/errorsx"
)

const (
	// maxSegmentPreview bounds how much of a bad record is kept on the error
	maxSegmentPreview = 256
	// maxRecordBytes bounds a single record. Real records are a few dozen
	// bytes; anything past this is a broken or hostile stream.
	maxRecordBytes = 64 << 10
)

var (
	errMissingValue   = errors.New("record has no call id in \"value\"")
	errRecordTooLarge = fmt.Errorf("record exceeds %d bytes without a delimiter", maxRecordBytes)
)

type streamRecord struct {
	Value string `json:"value"`
}

// Decoder reads 0x1E-delimited JSON records from a generation stream.
// Records may span any number of reads; a record is only parsed once its
// delimiter (or the end of the stream) has been seen, so multi-byte UTF-8
// sequences split across reads are reassembled before decoding.
type Decoder struct {
	r     *bufio.Reader
	index int
	done  bool
}

// NewDecoder creates a decoder over r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until the next record is available and returns it.
// Empty and whitespace-only records are skipped. At the end of the stream
// it returns io.EOF; a final record without a trailing delimiter is still
// returned first. A record longer than maxRecordBytes ends decoding with a
// MalformedSegmentError.
func (d *Decoder) Next() (StreamMessage, error) {
	for {
		if d.done {
			return StreamMessage{}, io.EOF
		}

		raw, err := d.readRecord()
		if errors.Is(err, errRecordTooLarge) {
			d.done = true
			index := d.index
			d.index++
			return StreamMessage{}, &errorsx.MalformedSegmentError{
				Index:   index,
				Segment: preview(raw),
				Err:     err,
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return StreamMessage{}, fmt.Errorf("read generation stream: %w", err)
			}
			d.done = true
		}

		record := bytes.TrimSuffix(raw, []byte{RecordSeparator})
		if len(bytes.TrimSpace(record)) == 0 {
			continue
		}

		index := d.index
		d.index++

		msg, perr := parseRecord(record)
		if perr != nil {
			return StreamMessage{}, &errorsx.MalformedSegmentError{
				Index:   index,
				Segment: preview(record),
				Err:     perr,
			}
		}
		return msg, nil
	}
}

// readRecord reads up to and including the next delimiter, giving up once
// the record outgrows maxRecordBytes
func (d *Decoder) readRecord() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := d.r.ReadSlice(RecordSeparator)
		buf = append(buf, chunk...)
		if len(bytes.TrimSuffix(buf, []byte{RecordSeparator})) > maxRecordBytes {
			return buf, errRecordTooLarge
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, err
	}
}

// Index returns the number of non-empty records decoded so far
func (d *Decoder) Index() int {
	return d.index
}

func parseRecord(record []byte) (StreamMessage, error) {
	if !utf8.Valid(record) {
		return StreamMessage{}, errors.New("record is not valid UTF-8")
	}
	var rec streamRecord
	if err := json.Unmarshal(record, &rec); err != nil {
		return StreamMessage{}, err
	}
	if rec.Value == "" {
		return StreamMessage{}, errMissingValue
	}
	return StreamMessage{CallID: rec.Value}, nil
}

func preview(record []byte) string {
	if len(record) > maxSegmentPreview {
		record = record[:maxSegmentPreview]
	}
	return string(bytes.ToValidUTF8(record, []byte("?")))
}

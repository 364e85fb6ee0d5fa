package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{
			name:    "small message",
			payload: []byte("hello"),
		},
		{
			name:    "medium message",
			payload: bytes.Repeat([]byte("x"), 1000),
		},
		{
			name:    "max size message",
			payload: bytes.Repeat([]byte("y"), DefaultMaxMessageSize),
		},
		{
			name:    "single byte",
			payload: []byte{0x42},
		},
		{
			name:    "binary data",
			payload: []byte{0x00, 0xFF, 0x7F, 0x80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			writer := NewFrameWriter(buf)
			if err := writer.WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}

			expectedSize := LengthPrefixSize + len(tt.payload)
			if buf.Len() != expectedSize {
				t.Errorf("frame size = %d, want %d", buf.Len(), expectedSize)
			}

			reader := NewFrameReader(buf)
			got, err := reader.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func TestFrameWriterRejectsEmpty(t *testing.T) {
	writer := NewFrameWriter(new(bytes.Buffer))
	if err := writer.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("WriteFrame(nil) = %v, want ErrMessageEmpty", err)
	}
}

func TestFrameWriterRejectsTooLarge(t *testing.T) {
	writer := NewFrameWriterWithMaxSize(new(bytes.Buffer), 16)
	if err := writer.WriteFrame(bytes.Repeat([]byte("z"), 17)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("WriteFrame oversized = %v, want ErrMessageTooLarge", err)
	}
}

func TestFrameReaderRejectsTooLarge(t *testing.T) {
	buf := new(bytes.Buffer)
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 1<<20)
	buf.Write(lengthBuf[:])
	buf.Write(bytes.Repeat([]byte("z"), 64))

	reader := NewFrameReaderWithMaxSize(buf, 1024)
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("ReadFrame oversized = %v, want ErrMessageTooLarge", err)
	}
}

func TestFrameReaderRejectsZeroLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	reader := NewFrameReader(buf)
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("ReadFrame zero-length = %v, want ErrMessageEmpty", err)
	}
}

func TestFrameReaderTruncated(t *testing.T) {
	t.Run("truncated prefix", func(t *testing.T) {
		reader := NewFrameReader(bytes.NewBuffer([]byte{0, 0}))
		if _, err := reader.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("ReadFrame = %v, want ErrFrameTruncated", err)
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		buf := new(bytes.Buffer)
		var lengthBuf [LengthPrefixSize]byte
		binary.BigEndian.PutUint32(lengthBuf[:], 100)
		buf.Write(lengthBuf[:])
		buf.Write([]byte("short"))

		reader := NewFrameReader(buf)
		if _, err := reader.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("ReadFrame = %v, want ErrFrameTruncated", err)
		}
	})

	t.Run("clean EOF", func(t *testing.T) {
		reader := NewFrameReader(new(bytes.Buffer))
		if _, err := reader.ReadFrame(); err != io.EOF {
			t.Errorf("ReadFrame on empty stream = %v, want io.EOF", err)
		}
	})
}

func TestFrameWriterConcurrent(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := NewFrameWriter(buf)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if err := writer.WriteFrame([]byte("concurrent-frame")); err != nil {
					t.Errorf("WriteFrame failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	// Every frame must still be intact.
	reader := NewFrameReader(buf)
	for i := 0; i < writers*perWriter; i++ {
		payload, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if string(payload) != "concurrent-frame" {
			t.Fatalf("frame %d corrupted: %q", i, payload)
		}
	}
}

func TestFramerRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	framer := NewFramer(buf)

	messages := [][]byte{
		[]byte("first"),
		[]byte("second"),
		[]byte("third"),
	}
	for _, msg := range messages {
		if err := framer.WriteFrame(msg); err != nil {
			t.Fatal(err)
		}
	}
	for i, want := range messages {
		got, err := framer.ReadFrame()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
}

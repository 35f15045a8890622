package sensors

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"
)

// frame is the fixed-layout little-endian record streamed by an external
// accelerometer frontend over UART. One frame summarizes one drained
// FIFO batch on the frontend's side.
type frame struct {
	Counter   uint32  // frontend frame counter, used to spot dropped frames
	X, Y, Z   float32 // decoded reading, g
	FifoLevel uint16  // entries left queued on the frontend after the drain
	Drained   uint16  // raw entries summarized into this frame
	Flags     uint16  // bit 0: reading valid
}

const frameBytes = 22

type serialSource struct {
	r         *bufio.Reader
	closer    io.Closer
	rateHz    float64
	watermark int
	lastCount uint32
	haveCount bool
}

// NewSerialSource opens a serial-attached accelerometer frontend that
// streams binary frames. rateHz and watermark describe the frontend's
// fixed configuration; they are reported as-is to consumers.
func NewSerialSource(portName string, baudRate int, rateHz float64, watermark int) (Decoder, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial source: open %s: %w", portName, err)
	}
	log.Printf("serial source: port %s opened at %d baud", portName, baudRate)

	return &serialSource{
		r:         bufio.NewReaderSize(port, 4*frameBytes),
		closer:    port,
		rateHz:    rateHz,
		watermark: watermark,
	}, nil
}

func (s *serialSource) ConfiguredRate() float64 { return s.rateHz }
func (s *serialSource) Watermark() int          { return s.watermark }

// ReadBatch blocks for the next frame from the frontend. I/O and framing
// failures are returned as errors; a frame flagged invalid by the
// frontend becomes a Valid=false batch.
func (s *serialSource) ReadBatch() (Batch, error) {
	buf := make([]byte, frameBytes)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return Batch{}, fmt.Errorf("serial source: read frame: %w", err)
	}
	b, counter, err := decodeFrame(buf)
	if err != nil {
		return Batch{}, err
	}
	b.RateHz = s.rateHz
	if s.rateHz > 0 {
		b.SpanUS = float64(b.ItemsDrained) * 1e6 / s.rateHz
	}

	if s.haveCount && counter != s.lastCount+1 {
		log.Printf("serial source: frame counter jumped %d -> %d", s.lastCount, counter)
	}
	s.lastCount = counter
	s.haveCount = true
	return b, nil
}

func (s *serialSource) Close() error {
	return s.closer.Close()
}

// decodeFrame parses one wire frame. Split out so the framing can be
// tested without a serial port.
func decodeFrame(buf []byte) (Batch, uint32, error) {
	if len(buf) != frameBytes {
		return Batch{}, 0, fmt.Errorf("serial source: frame is %d bytes, want %d", len(buf), frameBytes)
	}
	var f frame
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &f); err != nil {
		return Batch{}, 0, fmt.Errorf("serial source: decode frame: %w", err)
	}
	b := Batch{
		XG:            float64(f.X),
		YG:            float64(f.Y),
		ZG:            float64(f.Z),
		Valid:         f.Flags&0x01 != 0,
		ItemsDrained:  int(f.Drained),
		FifoRemaining: int(f.FifoLevel),
	}
	return b, f.Counter, nil
}

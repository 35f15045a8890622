// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// IIS3DWB register map (subset used here).
const (
	regWhoAmI      = 0x0F
	regCtrl1XL     = 0x10
	regCtrl3C      = 0x12
	regFifoCtrl1   = 0x07
	regFifoCtrl2   = 0x08
	regFifoCtrl3   = 0x09
	regFifoCtrl4   = 0x0A
	regFifoStatus1 = 0x3A
	regFifoStatus2 = 0x3B
	regFifoDataTag = 0x78

	whoAmIValue = 0x7B
	spiReadFlag = 0x80

	fifoEntryBytes = 7 // 1 tag byte + 3 × int16
	fifoTagAccel   = 0x02
)

// iis3dwbODRHz is the only output data rate the IIS3DWB supports once
// enabled: 26.667 kHz.
const iis3dwbODRHz = 26667.0

type iis3dwbSource struct {
	conn      spi.Conn
	port      spi.PortCloser
	watermark int
	scaleG    float64 // g per LSB at the configured full scale
}

// NewIIS3DWBSource opens the IIS3DWB vibration accelerometer over SPI and
// configures it for continuous FIFO streaming at the fixed 26.67 kHz data
// rate. fullScaleG selects the measurement range (2, 4, 8 or 16 g) and
// watermark the number of FIFO entries drained per acquisition cycle.
func NewIIS3DWBSource(spiDev string, fullScaleG, watermark int) (Decoder, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("iis3dwb: periph host init: %w", err)
	}
	if watermark < 1 || watermark > 511 {
		return nil, fmt.Errorf("iis3dwb: watermark %d out of range 1-511", watermark)
	}

	port, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("iis3dwb: SPI port (%s): %w", spiDev, err)
	}

	conn, err := port.Connect(10*physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: SPI connect: %w", err)
	}

	s := &iis3dwbSource{conn: conn, port: port, watermark: watermark}

	id, err := s.readReg(regWhoAmI)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: WHO_AM_I read: %w", err)
	}
	if id != whoAmIValue {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: WHO_AM_I = 0x%02X, want 0x%02X", id, whoAmIValue)
	}
	log.Printf("iis3dwb: device found on %s (WHO_AM_I=0x%02X)", spiDev, id)

	// Software reset, then block data update + auto address increment.
	if err := s.writeReg(regCtrl3C, 0x01); err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: reset: %w", err)
	}
	if err := s.writeReg(regCtrl3C, 0x44); err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: CTRL3_C: %w", err)
	}

	var fsBits byte
	switch fullScaleG {
	case 2:
		fsBits, s.scaleG = 0x00, 0.061/1000.0
	case 4:
		fsBits, s.scaleG = 0x08, 0.122/1000.0
	case 8:
		fsBits, s.scaleG = 0x0C, 0.244/1000.0
	case 16:
		fsBits, s.scaleG = 0x04, 0.488/1000.0
	default:
		port.Close()
		return nil, fmt.Errorf("iis3dwb: full scale %dg not supported (2/4/8/16)", fullScaleG)
	}

	// FIFO: watermark, accel batched at ODR, continuous (stream) mode.
	if err := s.writeReg(regFifoCtrl1, byte(watermark&0xFF)); err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: FIFO_CTRL1: %w", err)
	}
	if err := s.writeReg(regFifoCtrl2, byte(watermark>>8)&0x01); err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: FIFO_CTRL2: %w", err)
	}
	if err := s.writeReg(regFifoCtrl3, 0x0A); err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: FIFO_CTRL3: %w", err)
	}
	if err := s.writeReg(regFifoCtrl4, 0x06); err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: FIFO_CTRL4: %w", err)
	}

	// Enable the accelerometer: ODR 26.67 kHz + full scale.
	if err := s.writeReg(regCtrl1XL, 0xA0|fsBits); err != nil {
		port.Close()
		return nil, fmt.Errorf("iis3dwb: CTRL1_XL: %w", err)
	}

	log.Printf("iis3dwb: streaming at %.0f Hz, ±%dg, FIFO watermark %d",
		iis3dwbODRHz, fullScaleG, watermark)
	return s, nil
}

func (s *iis3dwbSource) ConfiguredRate() float64 { return iis3dwbODRHz }
func (s *iis3dwbSource) Watermark() int          { return s.watermark }

// ReadBatch drains up to one watermark of FIFO entries and averages the
// accelerometer entries into a single decoded reading. An empty FIFO or a
// FIFO overrun yields a batch with Valid=false; bus failures are returned
// as errors for the acquisition loop to retry.
func (s *iis3dwbSource) ReadBatch() (Batch, error) {
	st1, err := s.readReg(regFifoStatus1)
	if err != nil {
		return Batch{}, fmt.Errorf("iis3dwb: FIFO status: %w", err)
	}
	st2, err := s.readReg(regFifoStatus2)
	if err != nil {
		return Batch{}, fmt.Errorf("iis3dwb: FIFO status: %w", err)
	}
	level := int(st1) | int(st2&0x03)<<8
	overrun := st2&0x40 != 0

	b := Batch{RateHz: iis3dwbODRHz}
	if level == 0 {
		return b, nil // nothing queued yet; invalid but not an error
	}

	n := level
	if n > s.watermark {
		n = s.watermark
	}

	buf := make([]byte, n*fifoEntryBytes)
	w := make([]byte, len(buf)+1)
	w[0] = regFifoDataTag | spiReadFlag
	r := make([]byte, len(w))
	if err := s.conn.Tx(w, r); err != nil {
		return Batch{}, fmt.Errorf("iis3dwb: FIFO burst read: %w", err)
	}
	copy(buf, r[1:])

	var sx, sy, sz float64
	var accel int
	for i := 0; i < n; i++ {
		e := buf[i*fifoEntryBytes:]
		if e[0]>>3 != fifoTagAccel {
			continue
		}
		sx += float64(int16(uint16(e[1])|uint16(e[2])<<8)) * s.scaleG
		sy += float64(int16(uint16(e[3])|uint16(e[4])<<8)) * s.scaleG
		sz += float64(int16(uint16(e[5])|uint16(e[6])<<8)) * s.scaleG
		accel++
	}

	b.ItemsDrained = n
	b.FifoRemaining = level - n
	b.SpanUS = float64(n) * 1e6 / iis3dwbODRHz
	if accel > 0 && !overrun {
		b.XG = sx / float64(accel)
		b.YG = sy / float64(accel)
		b.ZG = sz / float64(accel)
		b.Valid = true
	}
	return b, nil
}

func (s *iis3dwbSource) Close() error {
	return s.port.Close()
}

func (s *iis3dwbSource) readReg(reg byte) (byte, error) {
	w := []byte{reg | spiReadFlag, 0}
	r := make([]byte, 2)
	if err := s.conn.Tx(w, r); err != nil {
		return 0, err
	}
	return r[1], nil
}

func (s *iis3dwbSource) writeReg(reg, val byte) error {
	return s.conn.Tx([]byte{reg, val}, nil)
}

package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	mbserver "github.com/tbrandon/mbserver"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/cracfuzzy/internal/ports"
	"github.com/Agrid-Dev/cracfuzzy/internal/station"
)

// Register map.
//
//	coil 0              running (RW)
//	holding register 0  setpoint ×100 (RW)
//	input registers 0-5 temperature, external temperature, load, CRAC power,
//	                    raw output (all ×100) and minute of day
const (
	CoilRunning = 0

	HoldingSetpoint = 0
	holdingCount    = 1

	InputTemperature         = 0
	InputExternalTemperature = 1
	InputLoad                = 2
	InputControl             = 3
	InputRaw                 = 4
	InputMinute              = 5
	inputCount               = 6
)

// Config for the Modbus controller.
type Config struct {
	DeviceID string
	Addr     string
	UnitID   byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
}

type Controller struct {
	svc ports.StationService
	cfg Config
	log *zap.Logger

	serv *mbserver.Server
}

func New(svc ports.StationService, cfg Config, log *zap.Logger) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{svc: svc, cfg: cfg, log: log}, nil
}

// Run starts the Modbus server and registers handlers that apply writes immediately and
// serve reads directly from the station snapshot. It blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Register handlers BEFORE starting the TCP listener to avoid races inside mbserver
	// between handler registration and the server's goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(3, c.readHolding)
	serv.RegisterFunctionHandler(4, c.readInputs)
	serv.RegisterFunctionHandler(5, c.writeCoil)
	serv.RegisterFunctionHandler(6, c.writeRegister)
	serv.RegisterFunctionHandler(16, c.writeRegisters)

	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}
	c.log.Info("modbus server listening", zap.String("addr", c.cfg.Addr), zap.Uint8("unit_id", c.cfg.UnitID))

	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

// Read Coils (function 1).
func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame.GetData(), 2000)
	if ex != nil {
		return []byte{}, ex
	}
	if start != CoilRunning || qty != 1 {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	coil := byte(0)
	if c.svc.Get().Running {
		coil = 0x01
	}
	// byte count + coil bytes
	return []byte{1, coil}, &mbserver.Success
}

// Read Holding Registers (function 3).
func (c *Controller) readHolding(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame.GetData(), 125)
	if ex != nil {
		return []byte{}, ex
	}
	if start+qty > holdingCount {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	snap := c.svc.Get()
	return registers([]uint16{encodeScaled(snap.Setpoint)}[start : start+qty]), &mbserver.Success
}

// Read Input Registers (function 4).
func (c *Controller) readInputs(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame.GetData(), 125)
	if ex != nil {
		return []byte{}, ex
	}
	if start+qty > inputCount {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	return registers(inputRegisters(c.svc.Get())[start : start+qty]), &mbserver.Success
}

// Write Single Coil (function 5).
func (c *Controller) writeCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if addr != CoilRunning {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	var running bool
	switch value {
	case 0x0000:
		running = false
	case 0xFF00:
		running = true
	default:
		return []byte{}, &mbserver.IllegalDataValue
	}
	c.svc.SetRunning(running)

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Single Register (function 6).
func (c *Controller) writeRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if ex := c.applyHolding(int(addr), value); ex != nil {
		return []byte{}, ex
	}
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Multiple Registers (function 16).
func (c *Controller) writeRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	d := frame.GetData()
	if len(d) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(d[0:2])
	quantity := binary.BigEndian.Uint16(d[2:4])
	byteCount := int(d[4])
	if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}
	for i := 0; i < int(quantity); i++ {
		val := binary.BigEndian.Uint16(d[5+i*2 : 5+i*2+2])
		if ex := c.applyHolding(int(start)+i, val); ex != nil {
			return []byte{}, ex
		}
	}

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

func (c *Controller) applyHolding(addr int, value uint16) *mbserver.Exception {
	switch addr {
	case HoldingSetpoint:
		if err := c.svc.SetSetpoint(decodeScaled(value)); err != nil {
			c.log.Warn("modbus setpoint rejected", zap.Float64("value", decodeScaled(value)), zap.Error(err))
			return &mbserver.IllegalDataValue
		}
		return nil
	default:
		return &mbserver.IllegalDataAddress
	}
}

func inputRegisters(s station.Snapshot) []uint16 {
	return []uint16{
		InputTemperature:         encodeScaled(s.Temperature),
		InputExternalTemperature: encodeScaled(s.ExternalTemperature),
		InputLoad:                encodeScaled(s.Load),
		InputControl:             encodeScaled(s.Control),
		InputRaw:                 encodeScaled(s.Raw),
		InputMinute:              uint16(s.Minute),
	}
}

func readRange(data []byte, maxQty int) (start, qty int, ex *mbserver.Exception) {
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start = int(binary.BigEndian.Uint16(data[0:2]))
	qty = int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > maxQty {
		return 0, 0, &mbserver.IllegalDataValue
	}
	return start, qty, nil
}

// registers builds a read response: byte count then big-endian register values.
func registers(regs []uint16) []byte {
	byteCount := len(regs) * 2
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
	}
	return resp
}

const Scale int = 100

// encodeScaled stores v with two decimals as a signed 16-bit register, saturating at
// the int16 range.
func encodeScaled(v float64) uint16 {
	r := min(max(int(math.Round(v*float64(Scale))), math.MinInt16), math.MaxInt16)
	return uint16(int16(r))
}

func decodeScaled(u uint16) float64 {
	i := int16(u)
	return float64(i) / float64(Scale)
}

// cmd/freshair-sim/main.go
package main

import (
	"flag"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/tbrandon/mbserver"

	"github.com/tamzrod/freshair-modbus/internal/config"
	"github.com/tamzrod/freshair-modbus/internal/device"
	"github.com/tamzrod/freshair-modbus/internal/logging"
)

var version = "dev"

// seed is a plausible register bank: on, auto, medium/medium, 21.5 C, 45 %.
var seed = map[device.Property]uint16{
	device.PropPower:         1,
	device.PropMode:          uint16(device.ModeAuto),
	device.PropSupplySpeed:   uint16(device.SpeedMedium),
	device.PropExhaustSpeed:  uint16(device.SpeedMedium),
	device.PropBypass:        0,
	device.PropActualSupply:  66,
	device.PropActualExhaust: 66,
	device.PropTemperature:   215,
	device.PropHumidity:      450,
}

func main() {
	listen := flag.String("listen", "127.0.0.1:8899", "Modbus TCP listen address")
	level := flag.String("log-level", "info", "debug, info, warn, error")
	flag.Parse()

	log := logging.New(config.LoggingConfig{Level: *level, Format: "console"}, version).With().Str("component", "sim").Logger()

	s := mbserver.NewServer()
	for p, v := range seed {
		s.HoldingRegisters[device.DefaultRegisters[p]] = v
	}

	// Derived registers are recomputed on the server goroutine before each read.
	s.RegisterFunctionHandler(3, func(s *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		simulate(s.HoldingRegisters, log)
		return mbserver.ReadHoldingRegisters(s, frame)
	})

	if err := s.ListenTCP(*listen); err != nil {
		log.Fatal().Err(err).Str("address", *listen).Msg("listen failed")
	}
	defer s.Close()

	log.Info().Str("address", *listen).Msg("simulator listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("simulator stopped")
}

// simulate makes the actual fan values follow power and set speeds, mirrors
// bypass from the mode register and lets temperature and humidity wander.
func simulate(regs []uint16, log zerolog.Logger) {
	addr := device.DefaultRegisters

	on := regs[addr[device.PropPower]] == 1
	regs[addr[device.PropActualSupply]] = actual(on, regs[addr[device.PropSupplySpeed]])
	regs[addr[device.PropActualExhaust]] = actual(on, regs[addr[device.PropExhaustSpeed]])

	if device.OperationMode(regs[addr[device.PropMode]]).Bypass() {
		regs[addr[device.PropBypass]] = 1
	} else {
		regs[addr[device.PropBypass]] = 0
	}

	regs[addr[device.PropTemperature]] = wander(regs[addr[device.PropTemperature]], 150, 280)
	regs[addr[device.PropHumidity]] = wander(regs[addr[device.PropHumidity]], 300, 700)

	log.Debug().
		Bool("power", on).
		Uint16("temperature", regs[addr[device.PropTemperature]]).
		Uint16("humidity", regs[addr[device.PropHumidity]]).
		Msg("read")
}

func actual(on bool, raw uint16) uint16 {
	s := device.Speed(raw)
	if !on || !s.Valid() {
		return 0
	}
	return uint16(s.Percentage())
}

// wander moves v by at most one step and keeps it in [lo, hi].
func wander(v, lo, hi uint16) uint16 {
	switch rand.IntN(3) {
	case 0:
		if v > lo {
			v--
		}
	case 2:
		if v < hi {
			v++
		}
	}
	return v
}

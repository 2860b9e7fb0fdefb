package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"

	"github.com/IELS2001/m16go/pkg/cli/sh"
	"github.com/IELS2001/m16go/pkg/modem"
	"github.com/IELS2001/m16go/pkg/modem/sim"
)

// frameOut is the display form of a decoded frame.
type frameOut struct {
	Unit    uint8  `json:"unit"`
	Command string `json:"command"`
	Data    uint16 `json:"data"`
}

func display(f modem.Frame) frameOut {
	return frameOut{Unit: f.ID, Command: f.Command.String(), Data: f.Data}
}

var (
	// ModeCmd toggles the modem operation mode.
	ModeCmd = ishell.Cmd{
		Name:    "mode",
		Aliases: []string{"m"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			sh.Done(c, sh.ShellFrom(c).Session.SwitchOperationMode(context.Background()))
		}),
	}

	// ChannelCmd tunes the modem channel.
	ChannelCmd = ishell.Cmd{
		Name:    "channel",
		Aliases: []string{"ch"},
		Help:    "CHANNEL(1..12)",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("CHANNEL required"))
				return
			}
			ch, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("Invalid CHANNEL: %v", err))
				return
			}
			sh.Done(c, sh.ShellFrom(c).Session.SetChannel(context.Background(), ch))
		}),
	}

	// PowerCmd selects the transmit power level.
	PowerCmd = ishell.Cmd{
		Name:    "power",
		Aliases: []string{"pw"},
		Help:    "LEVEL(1..4)",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("LEVEL required"))
				return
			}
			level, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("Invalid LEVEL: %v", err))
				return
			}
			sh.Done(c, sh.ShellFrom(c).Session.SetPowerLevel(context.Background(), level))
		}),
	}

	// SendCmd transmits one frame.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "UNIT COMMAND [DATA]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			f, err := parseFrame(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Done(c, sh.ShellFrom(c).Session.Send(f))
		}),
	}

	// ReportCmd requests a diagnostic report.
	ReportCmd = ishell.Cmd{
		Name:    "report",
		Aliases: []string{"r"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			r, err := sh.ShellFrom(c).Session.RequestReport(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			sh.PrintValue(c, r, func() string { return sh.FormatReport(r) })
		}),
	}

	// DrainCmd reads and decodes whatever frames are buffered.
	DrainCmd = ishell.Cmd{
		Name:    "drain",
		Aliases: []string{"dr"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			avail, err := s.Session.BufferedLen()
			if err != nil {
				c.Err(err)
				return
			}
			frames := []frameOut{}
			if avail > 0 {
				buf := make([]byte, avail)
				n, err := s.Session.ReadAvailable(buf)
				if err != nil {
					c.Err(err)
					return
				}
				for i := 0; i+1 < n; i += 2 {
					frames = append(frames, display(s.Session.Layout.DecodeBytes(buf[i:i+2])))
				}
			}
			sh.PrintValue(c, frames, func() string {
				if len(frames) == 0 {
					return "No frames"
				}
				lines := make([]string, len(frames))
				for n, f := range frames {
					lines[n] = fmt.Sprintf("unit=%d cmd=%s data=%d", f.Unit, f.Command, f.Data)
				}
				return strings.Join(lines, "\n")
			})
		}),
	}

	// WakeCmd makes a simulated field unit announce itself.
	WakeCmd = ishell.Cmd{
		Name: "wake",
		Help: "UNIT (simulated device only)",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			dev, ok := s.Session.Transport.(*sim.Device)
			if !ok {
				c.Err(fmt.Errorf("not a simulated device"))
				return
			}
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("UNIT required"))
				return
			}
			unit, err := strconv.ParseUint(c.Args[0], 0, 8)
			if err != nil {
				c.Err(fmt.Errorf("Invalid UNIT: %v", err))
				return
			}
			if !dev.WakeUnit(uint8(unit)) {
				c.Err(fmt.Errorf("no such unit: %d", unit))
				return
			}
			sh.Done(c, nil)
		}),
	}

	// LayoutCmd shows or switches the frame bit layout.
	LayoutCmd = ishell.Cmd{
		Name:    "layout",
		Aliases: []string{"l"},
		Help:    "[ID/COMMAND/DATA e.g. 4/4/8]",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			if len(c.Args) == 0 {
				layout, err := currentLayout(s)
				if err != nil {
					c.Err(err)
					return
				}
				sh.PrintValue(c, struct {
					Layout string `json:"layout"`
				}{layout.String()}, layout.String)
				return
			}
			layout, err := modem.ParseLayout(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			s.Config.Layout = layout.String()
			if s.Session != nil {
				s.Session.Layout = layout
			}
			sh.Done(c, nil)
		},
	}

	// EncodeCmd packs a frame into its wire word without sending it.
	EncodeCmd = ishell.Cmd{
		Name:    "encode",
		Aliases: []string{"enc"},
		Help:    "UNIT COMMAND [DATA]",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			layout, err := currentLayout(s)
			if err != nil {
				c.Err(err)
				return
			}
			f, err := parseFrame(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			word := layout.Encode(f)
			sh.PrintValue(c, struct {
				Word uint16 `json:"word"`
			}{word}, func() string { return fmt.Sprintf("%#04x", word) })
		},
	}

	// DecodeCmd unpacks a wire word.
	DecodeCmd = ishell.Cmd{
		Name:    "decode",
		Aliases: []string{"dec"},
		Help:    "WORD",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			layout, err := currentLayout(s)
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("WORD required"))
				return
			}
			word, err := strconv.ParseUint(c.Args[0], 0, 16)
			if err != nil {
				c.Err(fmt.Errorf("Invalid WORD: %v", err))
				return
			}
			f := layout.Decode(uint16(word))
			sh.PrintValue(c, display(f), f.String)
		},
	}
)

func parseFrame(args []string) (modem.Frame, error) {
	var f modem.Frame
	if len(args) < 2 {
		return f, fmt.Errorf("UNIT and COMMAND required")
	}
	unit, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return f, fmt.Errorf("Invalid UNIT: %v", err)
	}
	cmd, err := modem.ParseCommand(args[1])
	if err != nil {
		return f, fmt.Errorf("Invalid COMMAND: %v", err)
	}
	f.ID, f.Command = uint8(unit), cmd
	if len(args) > 2 {
		data, err := strconv.ParseUint(args[2], 0, 16)
		if err != nil {
			return f, fmt.Errorf("Invalid DATA: %v", err)
		}
		f.Data = uint16(data)
	}
	return f, nil
}

// currentLayout resolves the layout without requiring an open session.
func currentLayout(s *sh.Shell) (modem.BitLayout, error) {
	if s.Session != nil {
		return s.Session.Layout, nil
	}
	return modem.ParseLayout(s.Config.Layout)
}

func init() {
	sh.AddCmds(
		&ModeCmd,
		&ChannelCmd,
		&PowerCmd,
		&SendCmd,
		&ReportCmd,
		&DrainCmd,
		&WakeCmd,
		&LayoutCmd,
		&EncodeCmd,
		&DecodeCmd,
	)
}

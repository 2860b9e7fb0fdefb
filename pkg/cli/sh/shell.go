package sh

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/abiosoft/ishell/v2"

	"github.com/IELS2001/m16go/pkg/modem"
	"github.com/IELS2001/m16go/pkg/modem/serial"
	"github.com/IELS2001/m16go/pkg/modem/sim"
)

// Shell provides the ishell backed interactive console. It owns at
// most one open modem session at a time.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell   *ishell.Shell
	Config  *Config
	Session *modem.Session

	link interface {
		modem.Transport
		io.Closer
	}
}

// SimDevice opens an in-memory device instead of serial hardware.
const SimDevice = sim.DeviceName

const (
	shellKey       = "$shell"
	unopenedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other command providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unopenedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps a command func that requires an open session.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("no open session"))
			return
		}
		fn(c)
	}
}

// Done reports command completion in the selected output mode.
func Done(c *ishell.Context, err error) error {
	if err != nil {
		c.Err(err)
		return err
	}
	if ShellFrom(c).OutputJSON {
		c.Println(`{"ok":true}`)
		return nil
	}
	c.Println("OK")
	return nil
}

// PrintValue prints v as JSON, or via plain when not in JSON mode.
func PrintValue(c *ishell.Context, v any, plain func() string) error {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	c.Println(plain())
	return nil
}

// FormatReport renders a diagnostic report for display.
func FormatReport(r modem.Report) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "chip            %#04x (hw rev %d, firmware %d)\n", r.ChipID, r.HWRev, r.FirmwareVersion)
	fmt.Fprintf(&w, "channel         %d (power level %d)\n", r.Channel, r.PowerLevel)
	fmt.Fprintf(&w, "transport block %d (valid=%v)\n", r.TransportBlock, r.TBValid)
	fmt.Fprintf(&w, "signal/noise    %d/%d (bit error rate %d)\n", r.SignalPower, r.NoisePower, r.BitErrorRate)
	fmt.Fprintf(&w, "packets         %d valid, %d invalid\n", r.PacketValid, r.PacketInvalid)
	fmt.Fprintf(&w, "time since boot %d\n", r.TimeSinceBoot)
	fmt.Fprintf(&w, "flags           txComplete=%v diagnostic=%v", r.TxComplete, r.Diagnostic)
	return w.String()
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens device and starts a session on it. An empty device uses
// the configured default; SimDevice opens the in-memory device with a
// demo unit attached. An already open session is closed first.
func (s *Shell) Open(device string) error {
	layout, err := modem.ParseLayout(s.Config.Layout)
	if err != nil {
		return err
	}
	if device == "" {
		device = s.Config.Device
	}
	var link interface {
		modem.Transport
		io.Closer
	}
	if device == sim.DeviceName {
		link = sim.NewDemoDevice(layout)
	} else {
		if link, err = serial.Open(serial.Config{Device: device, Baud: s.Config.Baud}); err != nil {
			return err
		}
	}
	s.Close()
	s.link = link
	s.Session = modem.NewSession(link, layout)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", device))
	return nil
}

// Close closes the current session.
func (s *Shell) Close() {
	if s.link != nil {
		s.link.Close()
		s.link = nil
		s.Session = nil
		s.Shell.SetPrompt(unopenedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.Device)
		}
		if err := s.Open(""); err != nil {
			// Commands that need the session fail individually; the
			// codec commands still work without hardware.
			log.Printf("open %q failed: %v", s.Config.Device, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// OpenCmd opens a serial device.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[DEVICE]",
		Func: func(c *ishell.Context) {
			var device string
			if len(c.Args) > 0 {
				device = c.Args[0]
			}
			if err := ShellFrom(c).Open(device); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the current session.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).WithAutoOpen(deviceSelected()).Run(flag.Args()...)
}

// deviceSelected reports whether a device was named explicitly, via
// flag or environment. Only then is it worth opening at startup.
func deviceSelected() bool {
	if os.Getenv("M16_DEVICE") != "" {
		return true
	}
	var explicit bool
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "device" {
			explicit = true
		}
	})
	return explicit
}

// Config selects the serial device and frame layout the shell uses.
type Config struct {
	Device string
	Baud   int
	Layout string
}

var defaultConfig = Config{
	Device: "/dev/ttyUSB0",
	Baud:   serial.DefaultBaud,
	Layout: "4/4/8",
}

func init() {
	if val := os.Getenv("M16_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
	if val := os.Getenv("M16_BAUD"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.Baud = n
		}
	}
	if val := os.Getenv("M16_LAYOUT"); val != "" {
		defaultConfig.Layout = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Serial device of the modem.")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Serial baud rate.")
	flag.StringVar(&defaultConfig.Layout, "layout", defaultConfig.Layout, "Frame bit layout, e.g. 4/4/8.")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/IELS2001/m16go/pkg/modem"
)

// SerialConfig selects the device the modem hangs off.
type SerialConfig struct {
	Device string `mapstructure:"device"`
	Baud   int    `mapstructure:"baud"`
}

// ModemConfig is the link setup applied at startup. Channel and Power
// of zero leave the modem as found.
type ModemConfig struct {
	Layout   string `mapstructure:"layout"`
	Channel  int    `mapstructure:"channel"`
	Power    int    `mapstructure:"power"`
	Password uint16 `mapstructure:"password"`
}

// MQTTConfig points at the broker. An empty URL disables publishing.
type MQTTConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig points at the last-value store. An empty Addr disables
// it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig is the status/control API listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReportConfig schedules periodic diagnostic reports. A zero interval
// disables them.
type ReportConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// PacingConfig throttles transmissions. One frame needs roughly 1.6s
// of air time, so the default keeps a margin above that.
type PacingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Burst    int           `mapstructure:"burst"`
}

// CollectorConfig bounds unit poll exchanges.
type CollectorConfig struct {
	Deadline time.Duration `mapstructure:"deadline"`
}

// Config is the gateway daemon configuration.
type Config struct {
	GatewayID string          `mapstructure:"gatewayId"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Modem     ModemConfig     `mapstructure:"modem"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Report    ReportConfig    `mapstructure:"report"`
	Pacing    PacingConfig    `mapstructure:"pacing"`
	Collector CollectorConfig `mapstructure:"collector"`

	// PollInterval paces the serial drain loop.
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

// Load reads configuration from a YAML file and M16_-prefixed
// environment variables. With an empty path, m16gwd.yaml is searched
// in the working directory and /etc/m16gwd; a missing file falls back
// to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/m16gwd")
		v.SetConfigName("m16gwd")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("M16")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the wiring could only fail on later.
func (c *Config) Validate() error {
	if _, err := modem.ParseLayout(c.Modem.Layout); err != nil {
		return err
	}
	if c.Modem.Channel != 0 && (c.Modem.Channel < 1 || c.Modem.Channel > 12) {
		return modem.ErrInvalidChannel
	}
	if c.Modem.Power != 0 && (c.Modem.Power < 1 || c.Modem.Power > 4) {
		return modem.ErrInvalidPower
	}
	if c.Serial.Device == "" {
		return errors.New("serial.device is required")
	}
	return nil
}

// BitLayout resolves the configured layout.
func (c *Config) BitLayout() modem.BitLayout {
	l, err := modem.ParseLayout(c.Modem.Layout)
	if err != nil {
		return modem.Layout4x4x8
	}
	return l
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud", 9600)

	v.SetDefault("modem.layout", "4/4/8")
	v.SetDefault("modem.channel", 0)
	v.SetDefault("modem.power", 0)
	v.SetDefault("modem.password", 0)

	v.SetDefault("mqtt.url", "mqtt://127.0.0.1:1883/m16")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("report.interval", "60s")
	v.SetDefault("pacing.interval", "2s")
	v.SetDefault("pacing.burst", 1)
	v.SetDefault("collector.deadline", "30s")

	v.SetDefault("pollInterval", "250ms")
}

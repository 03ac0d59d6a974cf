package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-netmap/nmcapture/capture"
)

// cliConfig mirrors the Configuration block nmcapture accepts from
// flags, environment variables (NMCAPTURE_ prefix) or a YAML file
// passed via --config, bound through viper so any of the three can
// supply a given field.
type cliConfig struct {
	Iface        string `mapstructure:"iface"`
	OutIface     string `mapstructure:"out_iface"`
	Threads      int    `mapstructure:"threads"`
	Promisc      bool   `mapstructure:"promisc"`
	CopyMode     string `mapstructure:"copy_mode"`
	ChecksumMode string `mapstructure:"checksum_mode"`
	BPFFile      string `mapstructure:"bpf_file"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	LogLevel     string `mapstructure:"log_level"`
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()

	flags.String("iface", "", "interface to capture from")
	flags.String("out-iface", "", "forwarding peer interface (tap/ips copy modes)")
	flags.Int("threads", 1, "number of capture threads to partition the interface's rings across")
	flags.Bool("promisc", false, "request promiscuous mode on iface")
	flags.String("copy-mode", "none", "none, tap, or ips")
	flags.String("checksum-mode", "disable", "disable, auto, or enable")
	flags.String("bpf-file", "", "path to a tcpdump -ddd raw BPF program dump")
	flags.String("metrics-addr", ":9191", "address to serve /metrics on")
	flags.String("log-level", "info", "logrus level: trace, debug, info, warn, error")

	v.BindPFlag("iface", flags.Lookup("iface"))
	v.BindPFlag("out_iface", flags.Lookup("out-iface"))
	v.BindPFlag("threads", flags.Lookup("threads"))
	v.BindPFlag("promisc", flags.Lookup("promisc"))
	v.BindPFlag("copy_mode", flags.Lookup("copy-mode"))
	v.BindPFlag("checksum_mode", flags.Lookup("checksum-mode"))
	v.BindPFlag("bpf_file", flags.Lookup("bpf-file"))
	v.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	v.BindPFlag("log_level", flags.Lookup("log-level"))
}

func loadConfig(v *viper.Viper, configPath string) (*cliConfig, error) {
	v.SetEnvPrefix("nmcapture")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func (c *cliConfig) copyMode() (capture.CopyMode, error) {
	switch c.CopyMode {
	case "none", "":
		return capture.CopyModeNone, nil
	case "tap":
		return capture.CopyModeTap, nil
	case "ips":
		return capture.CopyModeIPS, nil
	default:
		return 0, fmt.Errorf("unknown copy_mode %q", c.CopyMode)
	}
}

func (c *cliConfig) checksumMode() (capture.ChecksumMode, error) {
	switch c.ChecksumMode {
	case "disable", "":
		return capture.ChecksumDisable, nil
	case "auto":
		return capture.ChecksumAuto, nil
	case "enable":
		return capture.ChecksumEnable, nil
	default:
		return 0, fmt.Errorf("unknown checksum_mode %q", c.ChecksumMode)
	}
}

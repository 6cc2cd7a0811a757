// Command hfpctl is an Audio Gateway front-end: it attaches an hfp.Stack
// to a TCP listener, accepts simulated HF connections and logs every hfp
// event, a sample application built on top of the core library rather
// than part of it. It reads no commands from the terminal and issues no
// call-control requests of its own.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/zb3/gofp/hfp"
	"github.com/zb3/gofp/transport/tcp"
)

// fileConfig is the on-disk YAML shape loaded by --config. It covers a
// subset of hfp.Config (channel, service UUID, features, codecs and AG
// indicators); the other fields keep their defaults. There is no legacy on-disk format to stay
// compatible with here, so this repo uses gopkg.in/yaml.v3 directly.
type fileConfig struct {
	RFCOMMChannel     uint8    `yaml:"rfcomm_channel"`
	ServiceUUID       uint16   `yaml:"service_uuid"`
	SupportedFeatures uint32   `yaml:"supported_features"`
	Codecs            []uint8  `yaml:"codecs"`
	AGIndicators      []indCfg `yaml:"ag_indicators"`
}

type indCfg struct {
	Name      string `yaml:"name"`
	Min       int    `yaml:"min"`
	Max       int    `yaml:"max"`
	Mandatory bool   `yaml:"mandatory"`
}

func defaultConfig() hfp.Config {
	return hfp.Config{
		RFCOMMChannelNr:   1,
		ServiceUUID:       0x111F, // Handsfree Audio Gateway
		SupportedFeatures: 1007,
		Codecs:            []uint8{hfp.CodecCVSD, hfp.CodecMSBC},
		AGIndicators: []hfp.Indicator{
			{Name: hfp.IndicatorCall, Min: 0, Max: 1, Mandatory: true, Enabled: true},
			{Name: hfp.IndicatorCallSetup, Min: 0, Max: 3, Mandatory: true, Enabled: true},
			{Name: "service", Min: 0, Max: 1, Enabled: true},
			{Name: "signal", Min: 0, Max: 5, Enabled: true},
			{Name: "roam", Min: 0, Max: 1, Enabled: true},
			{Name: "battchg", Min: 0, Max: 5, Enabled: true},
			{Name: hfp.IndicatorCallHeld, Min: 0, Max: 2, Mandatory: true, Enabled: true},
		},
		HFIndicators:     append([]hfp.GenericIndicator(nil), hfp.DefaultGenericIndicators...),
		CallHoldServices: []hfp.CallHoldService{{Token: "0"}, {Token: "1"}, {Token: "2"}},
	}
}

func loadConfig(path string) (hfp.Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, err
	}
	if fc.RFCOMMChannel != 0 {
		cfg.RFCOMMChannelNr = fc.RFCOMMChannel
	}
	if fc.ServiceUUID != 0 {
		cfg.ServiceUUID = fc.ServiceUUID
	}
	if fc.SupportedFeatures != 0 {
		cfg.SupportedFeatures = fc.SupportedFeatures
	}
	if len(fc.Codecs) > 0 {
		cfg.Codecs = fc.Codecs
	}
	if len(fc.AGIndicators) > 0 {
		inds := make([]hfp.Indicator, len(fc.AGIndicators))
		for i, ic := range fc.AGIndicators {
			inds[i] = hfp.Indicator{Name: ic.Name, Min: ic.Min, Max: ic.Max, Mandatory: ic.Mandatory, Enabled: true}
		}
		cfg.AGIndicators = inds
	}
	return cfg, nil
}

func main() {
	var configPath = pflag.StringP("config", "c", "", "YAML config file (defaults baked in if omitted)")
	var listenAddr = pflag.StringP("listen", "l", "localhost:8000", "address to listen for a simulated HF connection")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hfpctl - Bluetooth HFP Audio Gateway event logger\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := log.Default()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("loading config", "err", err)
	}

	stack := hfp.New(cfg, nil, nil)
	stack.SetLogger(logger)
	stack.RegisterPacketHandler(hfp.EventHandlerFunc(func(ev hfp.Event) {
		logger.Info("hfp event", "subtype", ev.Subtype.String(), "status", ev.Status)
	}))

	ln, err := tcp.Listen(*listenAddr, cfg.RFCOMMChannelNr, stack)
	if err != nil {
		logger.Fatal("listen", "err", err)
	}
	stack.SetTransport(ln, nil)

	logger.Info("hfpctl listening", "addr", *listenAddr)
	ln.AcceptLoop()
}

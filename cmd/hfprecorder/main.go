// Command hfprecorder tails a raw AT byte stream captured off a serial
// RFCOMM endpoint and writes a CSV log of parsed AT lines, one row per
// decoded event rather than the raw bytes that produced it.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/zb3/gofp/atparse"
)

func main() {
	var inputPath = pflag.StringP("input", "i", "", "path to a file of raw AT bytes to replay (reads stdin if omitted)")
	var outputPath = pflag.StringP("output", "o", "hfp.csv", "CSV output path")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hfprecorder - decode a raw AT byte stream to CSV\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	in := os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	w.Write([]string{"time", "command", "is_query", "is_set", "items"})

	var parser atparse.State
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		for i := 0; i < n; i++ {
			ev, done := parser.Feed(buf[i])
			if !done {
				continue
			}
			w.Write([]string{
				time.Now().UTC().Format(time.RFC3339Nano),
				commandName(ev.Command),
				fmt.Sprintf("%v", ev.IsQuery),
				fmt.Sprintf("%v", ev.IsSet),
				fmt.Sprintf("%v", ev.Items),
			})
		}
		if err != nil {
			break
		}
	}
}

func commandName(c atparse.Command) string {
	switch c {
	case atparse.CmdError:
		return "ERROR"
	case atparse.CmdUnknown:
		return "UNKNOWN"
	case atparse.CmdOK:
		return "OK"
	case atparse.CmdSupportedFeatures:
		return "BRSF"
	case atparse.CmdAvailableCodecs:
		return "BAC"
	case atparse.CmdRetrieveIndicators:
		return "CIND"
	case atparse.CmdEnableIndicatorStatusUpdate:
		return "CMER"
	case atparse.CmdUpdateIndividualIndicator:
		return "BIA"
	case atparse.CmdCallHoldServices:
		return "CHLD"
	case atparse.CmdListGenericIndicators:
		return "BIND"
	case atparse.CmdTransferIndicatorStatus:
		return "CIEV"
	case atparse.CmdOperatorSelection:
		return "COPS"
	case atparse.CmdExtendedErrorEnable:
		return "CMEE"
	case atparse.CmdExtendedError:
		return "CME_ERROR"
	case atparse.CmdTriggerCodecConnection:
		return "BCC"
	case atparse.CmdConfirmCommonCodec:
		return "BCS"
	case atparse.CmdCallAnswered:
		return "ATA"
	case atparse.CmdHangUpCall:
		return "CHUP"
	default:
		return "NONE"
	}
}

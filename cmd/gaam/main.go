// Command gaam creates, applies and inspects Gaussian adaptive attention
// modules.
//
// Usage:
//
//	gaam version
//	gaam config -out gaa.yaml [-gaussians 4] [-set "module=multihead;num_heads=8"]
//	gaam init   -config gaa.yaml -out gaa.safetensors [-dtype f32|f64|f16]
//	gaam apply  -config gaa.yaml [-params gaa.safetensors] -in x.json -out y.json
//	gaam inspect gaa.safetensors
//
// Input and output tensors are JSON documents {"shape": [...], "data": [...]}.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"version", "Show version", func([]string) error {
		fmt.Printf("gaam %s\n", version)
		return nil
	}},
	{"config", "Write a configuration file", runConfig},
	{"init", "Create freshly initialized parameters", runInit},
	{"apply", "Reweight a tensor read from JSON", runApply},
	{"inspect", "Describe a parameter file", runInspect},
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			if err := cmd.run(args[1:]); err != nil {
				klog.Fatalf("%s: %+v", cmd.name, err)
			}
			return
		}
	}
	klog.Errorf("Unknown command %q. See 'gaam -help'.", args[0])
	os.Exit(2)
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "gaam %s - Gaussian adaptive attention\n\nCommands:\n", version)
	for _, cmd := range commands {
		_, _ = fmt.Fprintf(out, "  %-10s %s\n", cmd.name, cmd.usage)
	}
	_, _ = fmt.Fprintln(out, "\nGlobal flags (logging):")
	flag.PrintDefaults()
}

// parseDType maps a -dtype flag value to a storage type.
func parseDType(name string) (tensor.DataType, error) {
	switch name {
	case "f32", "float32":
		return tensor.Float32, nil
	case "f64", "float64":
		return tensor.Float64, nil
	case "f16", "float16":
		return tensor.Float16, nil
	default:
		return 0, errors.Errorf("unknown dtype %q, expected f32, f64 or f16", name)
	}
}

// newFlagSet creates a subcommand flag set that exits on -help.
func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet("gaam "+name, flag.ExitOnError)
}

// required fails when a string flag was left empty.
func required(fs *flag.FlagSet, names ...string) {
	for _, name := range names {
		if fs.Lookup(name).Value.String() == "" {
			klog.Exitf("missing required flag -%s. See '%s -help'.", name, fs.Name())
		}
	}
}

// mustParse parses subcommand flags.
func mustParse(fs *flag.FlagSet, args []string) {
	must.M(fs.Parse(args))
}

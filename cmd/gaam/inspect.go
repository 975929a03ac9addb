package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/born-ml/gaam/internal/nn"
	"github.com/born-ml/gaam/internal/serialization"
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Right)
			}
			return s.Align(lipgloss.Left)
		})
}

// checkpointKeys are shown in the summary rather than with the hyperparameters.
var checkpointKeys = map[string]bool{
	nn.MetaFormat: true, nn.MetaModule: true, nn.MetaID: true, nn.MetaCreatedAt: true,
	nn.MetaStep: true, nn.MetaOptimizer: true, serialization.ChecksumKey: true,
}

func runInspect(args []string) error {
	fs := newFlagSet("inspect")
	showTensors := fs.Bool("tensors", true, "List the stored tensors.")
	mustParse(fs, args)
	if fs.NArg() != 1 {
		return errors.New("expected exactly one SafeTensors file. See 'gaam inspect -help'")
	}
	path := fs.Arg(0)

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}
	file, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return err
	}

	var numParams int64
	for _, m := range file.Meta {
		n := int64(1)
		for _, d := range m.Shape {
			n *= int64(d)
		}
		numParams += n
	}

	fmt.Println(titleStyle.Render("Summary"))
	summary := newPlainTable(false)
	summary.Row("file", path)
	summary.Row("size", humanize.Bytes(uint64(info.Size())))
	for _, key := range []string{nn.MetaModule, nn.MetaID, nn.MetaCreatedAt, nn.MetaOptimizer} {
		if v, ok := file.Metadata[key]; ok {
			summary.Row(strings.ReplaceAll(key, "_", " "), v)
		}
	}
	if step, ok := file.Metadata[nn.MetaStep]; ok {
		summary.Row("step", step)
	}
	summary.Row("# tensors", humanize.Comma(int64(len(file.Meta))))
	summary.Row("# values", humanize.Comma(numParams))
	summary.Row("checksum", checksumStatus(file.Metadata))
	fmt.Println(summary.Render())

	var keys []string
	for k := range file.Metadata {
		if !checkpointKeys[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		fmt.Println(titleStyle.Render("Hyperparameters"))
		table := newPlainTable(true).Headers("Name", "Value")
		for _, k := range keys {
			table.Row(k, file.Metadata[k])
		}
		fmt.Println(table.Render())
	}

	if *showTensors {
		fmt.Println(titleStyle.Render("Tensors"))
		table := newPlainTable(true).Headers("Name", "DType", "Shape", "Bytes")
		for _, m := range file.Meta {
			table.Row(m.Name, m.DType, fmt.Sprint(m.Shape), humanize.Bytes(uint64(m.Size)))
		}
		fmt.Println(table.Render())
	}
	return nil
}

func checksumStatus(meta map[string]string) string {
	if sum, ok := meta[serialization.ChecksumKey]; ok {
		return "verified " + sum[:min(12, len(sum))]
	}
	return "none"
}

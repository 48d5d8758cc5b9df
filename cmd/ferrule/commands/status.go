package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/ferrule-dev/ferrule/errors"
)

// StatusCmd shows running ferrule processes and their child servers
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show running ferrule processes and their children",
	Long: `Scan the process table for running ferrule instances (such as serve
mode) and report each one with the language and tool servers it has
spawned, including memory use and uptime.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	procs, err := process.Processes()
	if err != nil {
		return errors.Wrap(err, "failed to list processes")
	}

	found := 0
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name != "ferrule" || int(p.Pid) == os.Getpid() {
			continue
		}

		if found == 0 {
			fmt.Printf("%-8s %-10s %-10s %s\n", "PID", "RSS", "UPTIME", "COMMAND")
		}
		found++

		printProcess(p, false)
		children, err := p.Children()
		if err != nil {
			continue
		}
		for _, child := range children {
			printProcess(child, true)
		}
	}

	if found == 0 {
		pterm.Info.Println("No ferrule servers running")
	}
	return nil
}

// printProcess prints one status line; child processes are indented under
// the ferrule instance that spawned them
func printProcess(p *process.Process, child bool) {
	cmdline, err := p.Cmdline()
	if err != nil || cmdline == "" {
		if name, nameErr := p.Name(); nameErr == nil {
			cmdline = name
		}
	}

	rss := "?"
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		rss = formatBytes(mem.RSS)
	}

	uptime := "?"
	if created, err := p.CreateTime(); err == nil {
		uptime = time.Since(time.UnixMilli(created)).Round(time.Second).String()
	}

	prefix := ""
	if child {
		prefix = "  "
	}
	fmt.Printf("%s%-8d %-10s %-10s %s\n", prefix, p.Pid, rss, uptime, cmdline)
}

// formatBytes renders a byte count in the nearest binary unit
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"relkit/internal/config"
	"relkit/internal/gitx"
)

var (
	logFollow bool
	logLines  int
)

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "observe",
	Short:   "View rk logs",
	Long: `View the rk log file. Every command appends structured JSON
entries here in addition to what it prints on stderr.

Examples:
  rk log              # Show last 50 lines
  rk log -n 200       # Show last 200 lines
  rk log -f           # Follow log output (tail -f)`,
	RunE: runLog,
}

func init() {
	logCmd.Flags().BoolVarP(&logFollow, "follow", "f", false, "Follow log output")
	logCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "Number of lines to show")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	logPath := logFilePath()
	if logPath == "" {
		fmt.Println("File logging is disabled (logging.file is empty).")
		return nil
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No logs found.")
		fmt.Println()
		fmt.Printf("Log file location: %s\n", logPath)
		fmt.Println()
		fmt.Println("The file is created the first time any rk command runs.")
		return nil
	}

	if logFollow {
		return followLogFile(logPath)
	}

	return showLogLines(logPath, logLines)
}

// logFilePath resolves the log file without requiring a git repository,
// so the log is viewable even from a broken checkout. Paths in config
// are relative to the repo root when one exists, otherwise the working
// directory.
func logFilePath() string {
	root, err := os.Getwd()
	if err != nil {
		return ""
	}
	if repo, err := gitx.Open("."); err == nil {
		root = repo.Root()
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.Default()
	}
	if cfg.Logging.File == "" {
		return ""
	}
	return filepath.Join(root, cfg.Logging.File)
}

func showLogLines(path string, n int) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}

	for _, line := range lines {
		fmt.Println(line)
	}

	return scanner.Err()
}

func followLogFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, 2); err != nil {
		return err
	}

	fmt.Printf("Following %s (Ctrl+C to stop)\n\n", path)

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		fmt.Print(line)
	}
}

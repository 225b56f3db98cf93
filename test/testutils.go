package test

import (
	"fmt"
	"os"
	"strings"
)

// WriteToFile writes an array of lines to a file
func WriteToFile(file *os.File, lines []string) error {
	for _, line := range lines {
		if _, err := file.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// LibSVMLines formats dense rows as LIBSVM lines, skipping zero entries.
func LibSVMLines(y []float64, rows [][]float64) []string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		var b strings.Builder
		fmt.Fprintf(&b, "%g", y[i])
		for j, v := range row {
			if v != 0 {
				fmt.Fprintf(&b, " %d:%g", j+1, v)
			}
		}
		lines[i] = b.String()
	}
	return lines
}

// WriteLibSVM writes dense rows to path in LIBSVM format.
func WriteLibSVM(path string, y []float64, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteToFile(f, LibSVMLines(y, rows)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteString writes content to path.
func WriteString(path string, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

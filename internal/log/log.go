// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed ins the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package log provides the process log writer. Writes to stdout, and optionally
// to a file. Does not add prefixes, or force newlines.
package log

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Placeholder for file names derived from the output file
const Auto = "%auto"

var (
	mutex     sync.Mutex
	stdout    io.Writer = os.Stdout
	logFile   *bufio.Writer // the optional additional file to log into
	logFileOS *os.File
)

// Enables logging to file, closing any previous log file
func AlsoToFile(fileName string) (err error) {
	mutex.Lock()
	defer mutex.Unlock()
	if err = closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	logFileOS, logFile = f, bufio.NewWriter(f)
	return nil
}

func closeFile() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Flush()
	if cerr := logFileOS.Close(); err == nil {
		err = cerr
	}
	logFile, logFileOS = nil, nil
	return err
}

type teeWriter struct{}

// Writes to stdout and the log file, if any. Safe for concurrent use
func (teeWriter) Write(p []byte) (n int, err error) {
	mutex.Lock()
	defer mutex.Unlock()
	n, err = stdout.Write(p)
	if err != nil || logFile == nil {
		return n, err
	}
	return logFile.Write(p)
}

// Returns the log writer
func Writer() io.Writer { return teeWriter{} }

func Printf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(Writer(), format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Printf(format, args...)
	Close()
	os.Exit(1)
}

// Flushes and closes the log file, if any
func Close() error {
	mutex.Lock()
	defer mutex.Unlock()
	return closeFile()
}

// Resolves the %auto placeholder by replacing the suffix of the output file
// name with the given suffix. Returns empty if there is no output file
func AutoName(name, output, suffix string) string {
	if name != Auto {
		return name
	}
	if output == "" {
		return ""
	}
	if i := strings.IndexByte(output, '%'); i >= 0 { // pattern, keep the common prefix
		output = output[:i]
		if output == "" || strings.HasSuffix(output, string(filepath.Separator)) {
			output += "lacosmic"
		}
		return output + suffix
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + suffix
}

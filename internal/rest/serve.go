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


package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/lacosmic/internal/ops"
	"github.com/mlnoga/lacosmic/internal/ops/cosmic"
	"github.com/rs/zerolog"
)

// Starts the API server on the given address. Requests are logged to requestLog
func Serve(addr string, requestLog io.Writer) error {
	logger := zerolog.New(requestLog).With().Timestamp().Logger()
	logger.Info().Str("addr", addr).Msg("listening")
	return NewRouter(logger).Run(addr)
}

// Creates the API routes with request logging and panic recovery
func NewRouter(logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/cosmics", postCosmics)
		}
	}
	return r
}

// Logs method, path, status and latency of each request
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		event := logger.Info()
		if c.Writer.Status() >= http.StatusBadRequest {
			event = logger.Warn()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Serializes concurrent log writes into the response and flushes each one
type flushWriter struct {
	mutex sync.Mutex
	w     gin.ResponseWriter
}

func (fw *flushWriter) Write(p []byte) (n int, err error) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	n, err = fw.w.Write(p)
	fw.w.Flush()
	return n, err
}

type postCosmicsArgs struct {
	FilePatterns []string         `json:"filePatterns"`
	Cosmic       *cosmic.OpCosmic `json:"cosmic"`
	Clean        string           `json:"clean"`    // output file pattern for cleaned images, %d expands to the image ID
	Parallel     int              `json:"parallel"` // images processed concurrently, 0=auto
}

func postCosmics(c *gin.Context) {
	var args postCosmicsArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(args.FilePatterns) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no filePatterns given"})
		return
	}
	if args.Cosmic == nil {
		args.Cosmic = cosmic.NewOpCosmicDefaults()
	}
	if err := args.Cosmic.Params.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)
	logWriter := &flushWriter{w: c.Writer}

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	ctx := ops.NewContext(logWriter)
	ctx.RelativePaths = true
	seq := ops.NewOpSequence(
		ops.NewOpLoadMany(args.FilePatterns),
		args.Cosmic,
		ops.NewOpSave(args.Clean, ops.SaveImage),
	)
	if _, err := ops.Run(seq, ctx, args.Parallel); err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(logWriter, "Done.\n")
}

// Copyright © incrd contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/incrfs/incrd/common"
	"github.com/incrfs/incrd/engine"
)

var (
	serveFilePaths []string
	serveAddr      string
	serveLogPath   string
	serveLogLevel  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve one or more files to a single connected device",
	Long: `serve opens the given files, establishes the device connection, and
runs the block-delivery session until the device sends DESTROY, closes the
connection, or goes idle past the poll timeout.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringArrayVar(&serveFilePaths, "file", nil, "file to serve; repeatable, order fixes file IDs")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "-", `TCP address to listen on ("host:port"), or "-" for stdio`)
	serveCmd.Flags().StringVar(&serveLogPath, "log", "", "path for the operational log (defaults to stderr)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "minimum level to log: none, error, warning, info, debug")
	serveCmd.MarkFlagRequired("file")
}

func runServe(c *cobra.Command, _ []string) error {
	if limit, err := raiseFileDescriptorLimit(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not raise file descriptor limit: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "file descriptor soft limit raised to %d\n", limit)
	}

	var level common.LogLevel
	if err := level.Parse(serveLogLevel); err != nil {
		return errors.Wrap(err, "invalid --log-level")
	}

	// logOut is closed by the session logger's CloseLog, not here: the
	// logger is the sole owner of the sink once NewSessionLogger hands it
	// an io.WriteCloser. CloseLog leaves the sink open when the level is
	// none, and the error returns below that come before a logger exists
	// leave it open as well.
	logOut, err := openLogSink(serveLogPath)
	if err != nil {
		return errors.Wrap(err, "opening log sink")
	}

	files, closeFiles, err := openFileTable(serveFilePaths)
	if err != nil {
		return errors.Wrap(err, "opening file table")
	}
	defer closeFiles()

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveAddr == "-" {
		return serveOnStdio(ctx, files, logOut, level)
	}
	return serveOnTCP(ctx, serveAddr, files, logOut, level)
}

// openLogSink opens path for append, or falls back to stderr when path is
// empty; the returned closer is always safe to defer-close.
func openLogSink(path string) (*os.File, error) {
	if path == "" {
		return os.Stderr, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// openFileTable opens every path in order, assigning each its slice index
// as its protocol file ID, and returns a single cleanup func that closes
// every handle that was successfully opened so far.
func openFileTable(paths []string) ([]*engine.File, func(), error) {
	handles := make([]*os.File, 0, len(paths))
	cleanup := func() {
		for _, h := range handles {
			h.Close()
		}
	}

	files := make([]*engine.File, 0, len(paths))
	for i, p := range paths {
		h, err := os.Open(p)
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrapf(err, "opening %q", p)
		}
		handles = append(handles, h)

		info, err := h.Stat()
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrapf(err, "stat %q", p)
		}
		files = append(files, engine.NewFile(int16(i), p, info.Size(), h))
	}
	return files, cleanup, nil
}

func serveOnStdio(ctx context.Context, files []*engine.File, logOut *os.File, level common.LogLevel) error {
	conn := newStdioConn()
	logger := common.NewSessionLogger(uuid.New(), level, logOut)
	defer logger.CloseLog()

	// Client log text forwarded by the frame reader goes to stderr, apart
	// from the operational log.
	srv := engine.NewServer(conn, os.Stderr, files, logger)
	if ok := srv.Serve(ctx); !ok {
		return errors.New("handshake failed")
	}
	return nil
}

func serveOnTCP(ctx context.Context, addr string, files []*engine.File, logOut *os.File, level common.LogLevel) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %q", addr)
	}
	defer ln.Close()

	group, gctx := errgroup.WithContext(ctx)
	sessionDone := make(chan struct{})
	group.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sessionDone:
		}
		return ln.Close()
	})
	group.Go(func() error {
		defer close(sessionDone)
		conn, err := ln.Accept()
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accepting connection")
		}
		defer conn.Close()

		logger := common.NewSessionLogger(uuid.New(), level, logOut)
		defer logger.CloseLog()

		srv := engine.NewServer(conn, os.Stderr, files, logger)
		if ok := srv.Serve(gctx); !ok {
			return errors.New("handshake failed")
		}
		return nil
	})
	return group.Wait()
}

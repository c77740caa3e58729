// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// devserver.go - Local fake backend for development and demos.
//
//	mindstack dev-server [--addr HOST:PORT] [--confirm-email] [--delay-ms N]
package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/mindstack-tui/internal/logging"
	"github.com/jeranaias/mindstack-tui/internal/mockserver"
)

// HandleDevServer runs the fake backend until interrupted.
func HandleDevServer(args Args) error {
	p := args.Flags
	addr := p.FlagOrDefault("addr", mockserver.DefaultAddr)

	opts := mockserver.Options{
		ConfirmEmail: p.BoolFlag("confirm-email"),
		Logger:       logging.New(os.Stderr, "info"),
	}
	if p.HasFlag("delay-ms") {
		ms, err := p.FlagInt("delay-ms")
		if err != nil {
			return err
		}
		opts.ChunkDelay = time.Duration(ms) * time.Millisecond
		if ms == 0 {
			opts.ChunkDelay = -1
		}
	}
	srv := mockserver.New(opts)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	url := "http://" + ln.Addr().String()

	if !args.Quiet {
		fmt.Println(TitleStyle.Render("MindStack dev server"))
		fmt.Println(RenderLabel("URL", url))
		fmt.Println(RenderLabel("Demo login", mockserver.DemoEmail+" / "+mockserver.DemoPassword))
		fmt.Println()
		fmt.Println(RenderConditional(DimStyle, "Point the client at it with:"))
		fmt.Printf("  export MINDSTACK_API_URL=%s\n", url)
		fmt.Printf("  export MINDSTACK_AUTH_URL=%s\n", url)
		fmt.Printf("  export MINDSTACK_ANON_KEY=%s\n", srv.AnonKey())
		fmt.Println()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, ln)
}

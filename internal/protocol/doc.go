// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol decodes the streaming reply of the chat API into typed events.
//
// The remote service answers a streaming chat request with Server-Sent Events.
// Each block is separated by a blank line and carries a JSON payload after a
// "data:" prefix. This package frames those blocks (buffering across partial
// reads), decodes them into a closed set of Event variants and reports
// malformed blocks as DecodeError without stopping the stream.
//
// # Key Types
//
//   - Event: Closed interface implemented by one struct per event kind
//   - Decoder: Incremental framer fed with arbitrary byte chunks
//   - Reader: Pull-style sequence over an io.Reader with idle-read timeout
//   - DecodeError: A skipped malformed block
//
// # Usage
//
//	r := protocol.NewReader(resp.Body,
//	    protocol.WithIdleTimeout(60*time.Second),
//	    protocol.WithLogger(logger),
//	)
//	defer r.Close()
//	for {
//	    ev, err := r.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    switch e := ev.(type) {
//	    case protocol.Message:
//	        fmt.Print(e.Answer)
//	    }
//	}
package protocol

// ABOUTME: Server-Sent Events frame reader for the turn event stream
// ABOUTME: Splits the body into event/data frames on blank lines, tolerating comments and CRLF

package client

import (
	"bufio"
	"context"
	"io"
	"strings"
)

const (
	// Stage payloads carry whole model answers, far beyond bufio's default token size.
	initialLineBuffer = 64 * 1024
	maxLineSize       = 8 * 1024 * 1024
)

// frame is one parsed Server-Sent Event.
type frame struct {
	event string
	data  string
}

// readFrames calls fn for every complete frame in body. It stops at the end
// of the body, when fn returns errStop or another error, or when ctx is done.
func readFrames(ctx context.Context, body io.Reader, fn func(frame) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineSize)

	var eventType string
	var dataLines []string

	dispatch := func() error {
		if eventType == "" && len(dataLines) == 0 {
			return nil
		}
		f := frame{event: eventType, data: strings.Join(dataLines, "\n")}
		eventType = ""
		dataLines = nil
		return fn(f)
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSuffix(scanner.Text(), "\r")

		// Empty line signals end of event
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}

		// Comment lines keep the connection alive
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = strings.TrimSpace(value)
		case "data":
			dataLines = append(dataLines, value)
		default:
			// id and retry are not used
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// A final frame without its trailing blank line still counts.
	return dispatch()
}

package modelclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/turnstream/internal/observability"
	"github.com/harun/turnstream/internal/tracing"
	"github.com/harun/turnstream/pkg/eventparser"
	"github.com/harun/turnstream/pkg/llmerr"
	"github.com/harun/turnstream/pkg/protocol"
	"github.com/harun/turnstream/pkg/stream"
)

const (
	ssePrefix    = "data:"
	sseDone      = "[DONE]"
	closedEarly  = "stream closed before response.completed"
	readerBuffer = 64 * 1024
)

// startStream pushes the rate-limit snapshot, if any, and hands the body to a producer goroutine
func (c *Client) startStream(ctx context.Context, resp *http.Response, logger zerolog.Logger) *stream.Stream {
	s := stream.New(ctx, c.cfg.Stream)

	if snapshot, ok := parseRateLimits(resp.Header, c.cfg.RateLimitHeaderPrefix); ok {
		// The stream is empty, this push cannot hit the buffer limit
		_ = push(s, protocol.RateLimits(snapshot))
	}

	go c.produce(ctx, s, resp.Body, logger)
	return s
}

func push(s *stream.Stream, ev protocol.Event) error {
	if err := s.Push(ev); err != nil {
		return err
	}
	observability.RecordStreamEvent(ev.Kind.String())
	return nil
}

// produce reads SSE lines until EOF or [DONE]. response.completed is held back
// and pushed only once the transport is done, so it is always the last event.
func (c *Client) produce(ctx context.Context, s *stream.Stream, body io.ReadCloser, logger zerolog.Logger) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "responses.stream")

	// Aborting the stream closes the body, which unblocks a pending read
	var closeOnce sync.Once
	closeBody := func() { closeOnce.Do(func() { _ = body.Close() }) }
	finished := make(chan struct{})
	go func() {
		select {
		case <-s.Done():
			closeBody()
		case <-finished:
		}
	}()

	err := c.readFrames(ctx, s, body, logger)
	close(finished)
	closeBody()

	if err != nil {
		switch {
		case s.State() == stream.StateAborted:
			// consumer went away
		case ctx.Err() != nil:
			s.Abort()
		default:
			s.Fail(err)
		}
	}

	state := s.State()
	observability.RecordStreamOutcome(state.String())
	if state == stream.StateCompleted {
		tracing.EndSpan(span, nil)
	} else {
		tracing.EndSpan(span, s.Err())
	}
}

func (c *Client) readFrames(ctx context.Context, s *stream.Stream, body io.Reader, logger zerolog.Logger) error {
	reader := bufio.NewReaderSize(body, readerBuffer)
	var held *protocol.Event

	for {
		line, readErr := readLine(reader)
		if len(line) > 0 {
			done, err := c.handleLine(s, line, &held, logger)
			if err != nil {
				return err
			}
			if done {
				break
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil || s.State() == stream.StateAborted {
				return readErr
			}
			return llmerr.Wrap(llmerr.KindNetwork, readErr, "failed to read response stream")
		}
	}

	if held == nil {
		return llmerr.New(llmerr.KindStreamClosed, closedEarly)
	}
	if err := push(s, *held); err != nil {
		return pushError(err)
	}
	s.Complete()
	return nil
}

// handleLine processes one SSE line; done is true after the [DONE] sentinel
func (c *Client) handleLine(s *stream.Stream, line []byte, held **protocol.Event, logger zerolog.Logger) (bool, error) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte(ssePrefix)) {
		return false, nil
	}
	payload := bytes.TrimSpace(line[len(ssePrefix):])
	if string(payload) == sseDone {
		return true, nil
	}

	env := eventparser.Decode(payload)
	if env == nil {
		logger.Debug().Int("bytes", len(payload)).Msg("Skipping malformed frame")
		return false, nil
	}

	events, err := c.parser.Classify(env)
	if err != nil {
		return false, err
	}

	for _, ev := range events {
		if ev.Kind == protocol.EventCompleted {
			*held = &ev
			continue
		}
		if err := push(s, ev); err != nil {
			return false, pushError(err)
		}
	}
	return false, nil
}

// readLine returns one line without its terminator, joining the fragments
// bufio hands out for lines longer than the buffer
func readLine(reader *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		part, isPrefix, err := reader.ReadLine()
		line = append(line, part...)
		if err != nil || !isPrefix {
			return line, err
		}
	}
}

func pushError(err error) error {
	if errors.Is(err, stream.ErrBackpressure) {
		return llmerr.Wrap(llmerr.KindStreamClosed, err, "consumer is not draining events")
	}
	return err
}

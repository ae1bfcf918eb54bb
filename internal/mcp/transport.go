package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	httpapi "github.com/nextlevelbuilder/memoria/internal/http"
)

// Transport names accepted by server.transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// Endpoint paths for the HTTP transports.
const (
	StreamablePath = "/mcp"
	SSEPath        = "/sse"
	MessagePath    = "/message"
)

// ServeStdio serves one client over in/out until ctx is done or in closes.
// Logs must not go to out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	slog.Info("mcp serving", "transport", TransportStdio)

	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Mount registers the HTTP handlers for transport on mux behind bearer-token
// auth. transport is TransportHTTP (streamable HTTP) or TransportSSE.
func (s *Server) Mount(mux *http.ServeMux, transport, token string) error {
	switch transport {
	case TransportHTTP:
		h := server.NewStreamableHTTPServer(s.srv,
			server.WithEndpointPath(StreamablePath),
			server.WithHTTPContextFunc(httpapi.ClientContext),
		)
		mux.Handle(StreamablePath, httpapi.Authenticate(token, h))
	case TransportSSE:
		h := server.NewSSEServer(s.srv,
			server.WithSSEEndpoint(SSEPath),
			server.WithMessageEndpoint(MessagePath),
			server.WithSSEContextFunc(httpapi.ClientContext),
		)
		mux.Handle(SSEPath, httpapi.Authenticate(token, h))
		mux.Handle(MessagePath, httpapi.Authenticate(token, h))
	default:
		return fmt.Errorf("transport %q cannot be mounted on HTTP", transport)
	}
	return nil
}

// Package transport moves requests over the wire for the courier client.
//
// A [Transport] dials TCP connections, upgrades them to TLS when the target
// scheme is https, and speaks HTTP/1.1 itself. When HTTP/2 is preferred and
// the server selects "h2" during ALPN (or h2c prior knowledge is enabled for
// cleartext targets) the exchange is handed to [golang.org/x/net/http2].
//
// The version that was actually used is reported on every response head; a
// server that does not speak HTTP/2 simply yields an HTTP/1.1 exchange.
//
// Connections are kept in a per-host cache and reused once a response body
// has been read to EOF:
//
//	t := transport.New(transport.Config{Prefer: transport.HTTP2})
//	ex, err := t.RoundTrip(ctx, &transport.Outbound{Method: "GET", URL: u})
//	if err != nil { ... }
//	defer ex.Body.Close()
package transport

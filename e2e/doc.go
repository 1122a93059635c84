// Package e2e exercises the client end to end against the local httpbin
// server over HTTP/1.1, HTTP/2 with TLS and cleartext HTTP/2.
package e2e

// Package client provides a small HTTP client with its own transport,
// a redirect policy engine, reactive authentication, typed body handlers
// and pooled asynchronous execution.
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithRedirectPolicy(redirect.Normal),
//		client.WithAuthenticator(auth.Static("admin", "admin123")),
//		client.WithTimeout(10 * time.Second),
//	)
//
// # Sending Requests
//
// Build a [Request] and pick a [body.Handler] for the response body:
//
//	req, err := client.NewRequest(http.MethodGet, "http://localhost:8080/xml")
//	resp, err := client.Send(ctx, c, req, body.String())
//	fmt.Println(resp.StatusCode, resp.Version, resp.Body)
//
// [SendAsync] runs the same exchange on a worker pool and returns a
// [pool.Future]:
//
//	f := client.SendAsync(ctx, c, req, body.Lines())
//	resp, err := f.Get(ctx)
//
// # Status-checked Helpers
//
// [Client.Do] decodes a JSON body after checking the status code, and
// [Client.Download] streams the body to disk:
//
//	err = c.Do(ctx, req, http.StatusOK, client.WithDestination(&result))
//	err = c.Download(ctx, req, http.StatusOK, "/tmp/file.bin",
//		client.WithDigest("sha256:"+expectedHex),
//	)
//
// # Errors
//
// Failures match one of [ErrConnect], [ErrTLS], [ErrProtocol],
// [ErrTimeout], [ErrTooManyRedirects] or [ErrCancelled] via errors.Is.
package client

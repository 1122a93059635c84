// Package download writes response bodies to disk. A body is staged in a
// hidden file beside its destination and only renamed into place once
// every check passed, so readers never observe a partial file.
//
// Checks run after the last byte: the byte count against Content-Length
// when the server sent one, then an optional digest:
//
//	err := download.Handle(ctx, body, size, "/tmp/go.tar.gz", logger,
//		download.WithDigest("sha256:"+expectedHex),
//		download.WithProgressFunc(func(p download.Progress) { bar.Set(p.Percent()) }),
//	)
//
// Most callers reach Handle through [github.com/adamwoolhether/courier/client/body.File]
// or [github.com/adamwoolhether/courier/client.Client.Download].
package download

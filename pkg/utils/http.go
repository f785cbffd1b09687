package utils

import "io"

// DrainAndClose empties and closes an HTTP response body so the transport
// can reuse the connection. A nil body is a no-op.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, rc)
	return rc.Close()
}

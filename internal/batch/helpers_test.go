package batch

import (
	"bytes"
	"io"
)

func bytesReader(s string) io.Reader {
	return bytes.NewReader([]byte(s))
}

func bytesReaderBytes(b []byte) io.Reader {
	return bytes.NewReader(b)
}

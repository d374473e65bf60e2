package mphttp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxChunkLineBytes bounds a chunk-size line including extensions.
const maxChunkLineBytes = 4096

// chunkedReader decodes a chunked request body. Trailers are read and discarded.
type chunkedReader struct {
	r        *bufio.Reader
	chunkLen int64 // -1 means the beginning of the next chunk
	done     bool
}

func newChunkedReader(r *bufio.Reader) *chunkedReader {
	return &chunkedReader{r: r, chunkLen: -1}
}

func (r *chunkedReader) readLine() (string, error) {
	var line []byte
	for {
		frag, err := r.r.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > maxChunkLineBytes {
			return "", BadRequest("chunk line too long")
		}

		if err == nil {
			break
		}

		if !errors.Is(err, bufio.ErrBufferFull) {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}

			return "", err
		}
	}

	return strings.TrimRight(string(line), "\r\n"), nil
}

func (r *chunkedReader) readChunkLength() error {
	line, err := r.readLine()
	if err != nil {
		return errors.Wrap(err, "failed to read chunk length")
	}

	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx] // chunk extensions are ignored
	}

	n, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil || n < 0 {
		return BadRequest("invalid chunk length %q", line)
	}

	r.chunkLen = n

	return nil
}

func (r *chunkedReader) readCRLF() error {
	line, err := r.readLine()
	if err != nil {
		return err
	}

	if line != "" {
		return BadRequest("missing CRLF after chunk data")
	}

	return nil
}

func (r *chunkedReader) Read(b []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}

	if r.chunkLen < 0 {
		if err := r.readChunkLength(); err != nil {
			return 0, err
		}
	}

	if r.chunkLen == 0 {
		for { // trailer section ends with an empty line
			line, err := r.readLine()
			if err != nil {
				return 0, err
			}

			if line == "" {
				break
			}
		}

		r.done = true

		return 0, io.EOF
	}

	n := min(r.chunkLen, int64(len(b)))
	m, err := r.r.Read(b[:n])
	r.chunkLen -= int64(m)
	if r.chunkLen == 0 {
		r.chunkLen = -1
		if cerr := r.readCRLF(); cerr != nil {
			return m, cerr
		}
	}

	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return m, err
}

// chunkedWriter frames every Write as one chunk. Close writes the terminating zero-length chunk.
type chunkedWriter struct {
	w io.Writer
}

func newChunkedWriter(w io.Writer) *chunkedWriter {
	return &chunkedWriter{w}
}

func (w *chunkedWriter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil // a zero-length chunk would terminate the body
	}

	if _, err := fmt.Fprintf(w.w, "%x\r\n", len(b)); err != nil {
		return 0, err
	}

	n, err := w.w.Write(b)
	if err != nil {
		return n, err
	}

	if _, err := io.WriteString(w.w, "\r\n"); err != nil {
		return n, err
	}

	return n, nil
}

func (w *chunkedWriter) Close() error {
	_, err := io.WriteString(w.w, "0\r\n\r\n")
	return err
}

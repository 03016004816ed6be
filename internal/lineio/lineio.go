// Package lineio walks newline-delimited record files.
package lineio

import (
	"bufio"
	"errors"
	"io"
)

const readBufSize = 64 * 1024

// Each calls fn with every line of r, without its trailing "\n". A line
// longer than max bytes is drained and passed to skip (with its length)
// instead, and the walk continues with the next line. The walk stops early
// when fn returns false.
func Each(r io.Reader, max int, fn func(line string) bool, skip func(size int)) error {
	br := bufio.NewReaderSize(r, readBufSize)
	var buf []byte
	size := 0
	for {
		chunk, err := br.ReadSlice('\n')
		size += len(chunk)
		if len(buf) <= max {
			buf = append(buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		content := size
		if err == nil {
			content--
		}
		switch {
		case size == 0:
		case content > max:
			if skip != nil {
				skip(content)
			}
		default:
			if !fn(string(buf[:content])) {
				return nil
			}
		}
		if err != nil {
			return nil
		}
		buf, size = buf[:0], 0
	}
}

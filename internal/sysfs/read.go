package sysfs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// ReadLine returns the first line of path without its trailing newline.
//
// ok is false when the file cannot be opened or is empty. A read that fails
// after a successful open is returned as an error, except ENODATA and EAGAIN,
// which sensor drivers use to say they have no value right now.
func ReadLine(path string) (line string, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, nil
	}
	defer f.Close()

	line, err = bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		if isNoData(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(line) == 0 {
		return "", false, nil
	}
	return strings.TrimSuffix(line, "\n"), true, nil
}

// ReadUnsigned reads the first line of path as an unsigned integer in the
// given base (0 infers the base from a 0x or 0 prefix). An absent file and
// text that does not start with a number both yield 0, see ParseUnsigned.
func ReadUnsigned(path string, base int) (uint64, error) {
	line, ok, err := ReadLine(path)
	if err != nil || !ok {
		return 0, err
	}
	return ParseUnsigned(line, base), nil
}

// ReadSigned reads the first line of path as a signed decimal integer.
// ok is false when the file is absent or does not start with a number.
func ReadSigned(path string) (v int64, ok bool, err error) {
	line, ok, err := ReadLine(path)
	if err != nil || !ok {
		return 0, false, err
	}
	v, ok = ParseSigned(line)
	return v, ok, nil
}

func isNoData(err error) bool {
	return errors.Is(err, unix.ENODATA) || errors.Is(err, unix.EAGAIN)
}

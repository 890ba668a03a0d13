// Command mkportfs formats a backing file as an empty PortFS image (§6
// "Formatter").
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/romanyyz/portfs"
)

func main() {
	var (
		sizeFlag  = flag.String("size", "", "image size, e.g. 64M or 2G (required)")
		blockSize = flag.Uint("block-size", portfs.DefaultBlockSize, "block size in bytes")
		out       = flag.String("out", "", "path to the backing file to create (required)")
	)
	flag.Parse()

	if *sizeFlag == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "mkportfs: -size and -out are required")
		os.Exit(2)
	}

	imageSize, err := parseSize(*sizeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkportfs: %s\n", err)
		os.Exit(2)
	}

	if err := portfs.Format(*out, imageSize, uint32(*blockSize)); err != nil {
		fmt.Fprintf(os.Stderr, "mkportfs: %s\n", err)
		os.Exit(1)
	}
}

// parseSize accepts a plain byte count or one suffixed with K/M/G (binary
// multiples), e.g. "64M".
func parseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := uint64(1)
	switch suffix := s[len(s)-1]; suffix {
	case 'K', 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

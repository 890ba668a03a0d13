//go:build fuse

// Command portfsmount mounts a PortFS image at a target directory via
// FUSE (§6 "Mount CLI").
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/romanyyz/portfs"
)

func main() {
	var opts = flag.String("o", "", "mount options, e.g. path=/var/lib/portfs.img")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: portfsmount -o path=<image> <mountpoint>")
		os.Exit(2)
	}
	mountpoint := flag.Arg(0)

	imagePath, err := portfs.ParsePathOption(*opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "portfsmount: %s\n", err)
		os.Exit(2)
	}

	m, err := portfs.Mount(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "portfsmount: mount: %s\n", err)
		os.Exit(1)
	}

	server, err := fs.Mount(mountpoint, portfs.Root(m), &fs.Options{
		MountOptions: fuse.MountOptions{FsName: "portfs", Name: "portfs"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "portfsmount: fuse mount: %s\n", err)
		m.Unmount()
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		server.Unmount()
	}()

	server.Wait()

	if err := m.Unmount(); err != nil {
		fmt.Fprintf(os.Stderr, "portfsmount: unmount: %s\n", err)
		os.Exit(1)
	}
}

package netutil

import (
	"errors"
	"fmt"
	"net"
)

// SelectBindAddr returns the first address the service can listen on. The
// preferred address is always tried first; the candidate list is consulted
// only when autoFallback is enabled (or no preference is set).
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	addrs := make([]string, 0, len(candidates)+1)
	if preferred != "" {
		addrs = append(addrs, preferred)
	}
	if autoFallback || preferred == "" {
		addrs = append(addrs, candidates...)
	}

	for _, addr := range addrs {
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	if !autoFallback && preferred != "" {
		return "", fmt.Errorf("bind address %s is already in use", preferred)
	}
	return "", errors.New("no usable bind address among the configured candidates")
}

// IsAddrAvailable reports whether a TCP listener can be opened on addr.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}

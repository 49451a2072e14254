// Package jconf reads jnamed.conf: a line-oriented configuration format
// (spec §6) with one directive per line, grounded on dnsjava's jnamed
// constructor (src/jnamed.java). No example repo or ecosystem library
// parses this bespoke grammar, so it's hand-written with bufio.Scanner
// and strings.Fields.
package jconf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PrimaryZone is a `primary <origin> <file>` directive: an authoritative
// zone loaded from a local zone file.
type PrimaryZone struct {
	Origin string
	File   string
}

// SecondaryZone is a `secondary <origin> <remote>` directive: a zone kept
// current via periodic AXFR against remote.
type SecondaryZone struct {
	Origin string
	Remote string
}

// Key is a `key [<alg>] <name> <secret>` directive. Algorithm defaults to
// hmac-md5 when omitted, matching jnamed's own default.
type Key struct {
	Algorithm string
	Name      string
	Secret    string
}

// Config is the parsed contents of a jnamed.conf file.
type Config struct {
	Primaries   []PrimaryZone
	Secondaries []SecondaryZone
	Keys        []Key
	CacheFile   string
	Ports       []int
	Addresses   []string
}

const (
	defaultPort    = 53
	defaultAddress = "0.0.0.0"
)

// Parse reads a jnamed.conf stream and returns its directives. Unknown
// keywords and blank/comment lines are skipped, matching jnamed's own
// tolerance for stray lines; malformed directives (missing arguments)
// return an error naming the offending line.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		keyword := fields[0]
		if strings.HasPrefix(keyword, "#") {
			continue
		}
		args := fields[1:]

		switch keyword {
		case "primary":
			if len(args) < 2 {
				return nil, fmt.Errorf("jconf: line %d: primary requires <origin> <file>", lineNo)
			}
			cfg.Primaries = append(cfg.Primaries, PrimaryZone{Origin: args[0], File: args[1]})
		case "secondary":
			if len(args) < 2 {
				return nil, fmt.Errorf("jconf: line %d: secondary requires <origin> <remote>", lineNo)
			}
			cfg.Secondaries = append(cfg.Secondaries, SecondaryZone{Origin: args[0], Remote: args[1]})
		case "cache":
			if len(args) < 1 {
				return nil, fmt.Errorf("jconf: line %d: cache requires <file>", lineNo)
			}
			cfg.CacheFile = args[0]
		case "key":
			key, err := parseKey(args)
			if err != nil {
				return nil, fmt.Errorf("jconf: line %d: %w", lineNo, err)
			}
			cfg.Keys = append(cfg.Keys, key)
		case "port":
			if len(args) < 1 {
				return nil, fmt.Errorf("jconf: line %d: port requires <n>", lineNo)
			}
			p, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("jconf: line %d: invalid port %q: %w", lineNo, args[0], err)
			}
			cfg.Ports = append(cfg.Ports, p)
		case "address":
			if len(args) < 1 {
				return nil, fmt.Errorf("jconf: line %d: address requires <ip>", lineNo)
			}
			cfg.Addresses = append(cfg.Addresses, args[0])
		default:
			// Unknown keyword: jnamed itself only logs and continues.
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jconf: read: %w", err)
	}

	if len(cfg.Ports) == 0 {
		cfg.Ports = []int{defaultPort}
	}
	if len(cfg.Addresses) == 0 {
		cfg.Addresses = []string{defaultAddress}
	}
	return cfg, nil
}

// parseKey handles both `key <name> <secret>` (alg defaults to hmac-md5)
// and `key <alg> <name> <secret>`.
func parseKey(args []string) (Key, error) {
	switch len(args) {
	case 2:
		return Key{Algorithm: "hmac-md5", Name: args[0], Secret: args[1]}, nil
	case 3:
		return Key{Algorithm: args[0], Name: args[1], Secret: args[2]}, nil
	default:
		return Key{}, fmt.Errorf("key requires <name> <secret> or <alg> <name> <secret>")
	}
}

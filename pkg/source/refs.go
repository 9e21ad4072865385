package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Ref is a single advertised reference.
type Ref struct {
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

// RefList is the parsed reference advertisement of a repository.
type RefList struct {
	Refs []Ref `json:"refs"`
	// HeadTarget is the branch HEAD points at, taken from the symref
	// capability. Empty when the server did not advertise it.
	HeadTarget string `json:"head_target,omitempty"`
}

// Find returns the reference with the given name.
func (l *RefList) Find(name string) (Ref, bool) {
	if l == nil {
		return Ref{}, false
	}
	for _, ref := range l.Refs {
		if ref.Name == name {
			return ref, true
		}
	}
	return Ref{}, false
}

const pktHeaderLen = 4

// ParseRefAdvertisement reads a git smart-HTTP "info/refs" response body.
// The optional "# service=" preamble is skipped, peeled tag entries are
// dropped and the symref capability on the first line is recorded.
func ParseRefAdvertisement(r io.Reader) (*RefList, error) {
	br := bufio.NewReader(r)
	list := &RefList{}
	first := true

	for {
		payload, flush, err := readPktLine(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if flush {
			continue
		}

		line := strings.TrimSuffix(string(payload), "\n")
		if strings.HasPrefix(line, "# service=") {
			continue
		}

		var caps string
		if i := strings.IndexByte(line, 0); i >= 0 {
			caps = line[i+1:]
			line = line[:i]
		}
		if first {
			list.HeadTarget = symrefTarget(caps, "HEAD")
			first = false
		}

		sha, name, ok := strings.Cut(line, " ")
		if !ok || !isHexSHA(sha) {
			return nil, fmt.Errorf("%w: bad ref line %q", ErrMalformedRefs, line)
		}
		// Empty repositories advertise a zero id named "capabilities^{}".
		if name == "capabilities^{}" || strings.HasSuffix(name, "^{}") {
			continue
		}
		list.Refs = append(list.Refs, Ref{Name: name, SHA: sha})
	}

	return list, nil
}

// readPktLine returns one pkt-line payload. flush is true for "0000".
func readPktLine(br *bufio.Reader) ([]byte, bool, error) {
	header := make([]byte, pktHeaderLen)
	if _, err := io.ReadFull(br, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, false, fmt.Errorf("%w: truncated pkt-line header", ErrMalformedRefs)
		}
		return nil, false, err
	}

	size, err := strconv.ParseUint(string(header), 16, 16)
	if err != nil {
		return nil, false, fmt.Errorf("%w: bad pkt-line length %q", ErrMalformedRefs, header)
	}
	switch {
	case size == 0:
		return nil, true, nil
	case size < pktHeaderLen:
		// 0001 and 0002 are protocol v2 delimiters, which v0 advertisements never carry.
		return nil, false, fmt.Errorf("%w: unexpected pkt-line length %d", ErrMalformedRefs, size)
	}

	payload := make([]byte, int(size)-pktHeaderLen)
	if _, err = io.ReadFull(br, payload); err != nil {
		return nil, false, fmt.Errorf("%w: truncated pkt-line payload", ErrMalformedRefs)
	}
	return payload, false, nil
}

func symrefTarget(caps, name string) string {
	prefix := "symref=" + name + ":"
	for _, capability := range strings.Fields(caps) {
		if target, ok := strings.CutPrefix(capability, prefix); ok {
			return target
		}
	}
	return ""
}

func isHexSHA(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// EncodePktLines is the inverse of ParseRefAdvertisement for a single
// service section. It is used by fake upstreams in tests and tooling.
func EncodePktLines(service string, list *RefList, capabilities string) []byte {
	var buf bytes.Buffer
	writePkt := func(s string) {
		fmt.Fprintf(&buf, "%04x%s", len(s)+pktHeaderLen, s)
	}
	if service != "" {
		writePkt("# service=" + service + "\n")
		buf.WriteString("0000")
	}
	for i, ref := range list.Refs {
		line := ref.SHA + " " + ref.Name
		if i == 0 {
			line += "\x00" + capabilities
		}
		writePkt(line + "\n")
	}
	buf.WriteString("0000")
	return buf.Bytes()
}

// Package template implements the on-disk container format for raw device
// templates. The container is a thin envelope that prefixes the opaque
// template bytes with a 20-byte header carrying a human-readable label, so a
// .tml file can be identified without decoding the template itself.
//
// Layout: [2 bytes: first two template bytes][2 bytes: zero padding]
// [16 bytes: ASCII label, null-padded, at most 15 chars][raw template].
// The format carries no checksum and no version tag; wire compatibility with
// existing .tml files depends on this exact byte layout.
package template

const (
	headerSize  = 20
	labelOffset = 4
	labelSize   = 16
	maxLabelLen = 15
)

// Extension is the canonical file extension for container files.
const Extension = ".tml"

// Encode wraps a raw template in the container format. Labels longer than 15
// bytes are silently truncated; an empty label leaves the label field
// zero-filled. A nil or empty raw template still produces a header-only
// container, preserving the lenient historical behavior even though such a
// container can never be verified.
func Encode(raw []byte, label string) []byte {
	out := make([]byte, headerSize+len(raw))
	if len(raw) >= 2 {
		out[0] = raw[0]
		out[1] = raw[1]
	}
	name := []byte(label)
	if len(name) > maxLabelLen {
		name = name[:maxLabelLen]
	}
	copy(out[labelOffset:labelOffset+labelSize], name)
	copy(out[headerSize:], raw)
	return out
}

// Decode extracts the raw template from a container. It returns false when
// the buffer is too short to hold any template bytes. The header prefix and
// label region are deliberately not validated: any 21+ byte buffer decodes,
// so callers must not treat a successful decode as proof of authenticity.
func Decode(container []byte) ([]byte, bool) {
	if len(container) <= headerSize {
		return nil, false
	}
	raw := make([]byte, len(container)-headerSize)
	copy(raw, container[headerSize:])
	return raw, true
}

// Label reads the label field from a container, stopping at the first null
// byte. Returns "" for buffers shorter than the header.
func Label(container []byte) string {
	if len(container) < headerSize {
		return ""
	}
	field := container[labelOffset : labelOffset+labelSize]
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}

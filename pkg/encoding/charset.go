// Package encoding provides text encoding utilities for 3MF packages.
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// CP437ToUTF8 converts a ZIP entry name stored in the legacy IBM PC code page
// to UTF-8. Returns the original string if conversion fails.
func CP437ToUTF8(name string) string {
	decoder := charmap.CodePage437.NewDecoder()
	result, _, err := transform.String(decoder, name)
	if err != nil {
		return name
	}
	return result
}

// EntryName returns the UTF-8 form of a ZIP entry name. Archives written by
// some slicers leave the UTF-8 flag unset even though names are UTF-8, so
// names that already decode cleanly are kept as they are.
func EntryName(raw string, nonUTF8 bool) string {
	if !nonUTF8 || utf8.ValidString(raw) {
		return raw
	}
	return CP437ToUTF8(raw)
}

// CharsetReader is suitable for xml.Decoder.CharsetReader. It resolves the
// label from an <?xml encoding="..."?> declaration using the WHATWG names
// and wraps input in a decoder producing UTF-8.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return input, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// TrimBOM removes a leading UTF-8 byte order mark.
func TrimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}

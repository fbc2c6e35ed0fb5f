package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Format is a container/codec combination a recorder can produce.
type Format struct {
	Name       string
	Container  string
	VideoCodec string
	AudioCodec string
	Ext        string
	MimeType   string
}

var DefaultFormats = []Format{
	{Name: "webm-vp9", Container: "webm", VideoCodec: "vp9", AudioCodec: "opus", Ext: ".webm", MimeType: "video/webm;codecs=vp9,opus"},
	{Name: "webm-vp8", Container: "webm", VideoCodec: "vp8", AudioCodec: "opus", Ext: ".webm", MimeType: "video/webm;codecs=vp8,opus"},
	{Name: "mp4-h264", Container: "mp4", VideoCodec: "h264", AudioCodec: "aac", Ext: ".mp4", MimeType: "video/mp4;codecs=avc1,mp4a"},
}

var ErrNoSupportedFormat = errors.New("no supported recording format")

// FormatsByName resolves a preference list against DefaultFormats.
func FormatsByName(names []string) ([]Format, error) {
	if len(names) == 0 {
		return DefaultFormats, nil
	}
	var out []Format
	for _, n := range names {
		found := false
		for _, f := range DefaultFormats {
			if strings.EqualFold(f.Name, n) {
				out = append(out, f)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown recording format %q", n)
		}
	}
	return out, nil
}

// Negotiate returns the first format in prefs the encoder supports.
func Negotiate(enc Encoder, prefs []Format) (Format, error) {
	for _, f := range prefs {
		if enc.Supports(f) {
			return f, nil
		}
	}
	return Format{}, ErrNoSupportedFormat
}

package upload

import "strings"

// MaxFileBytes is the per-file ceiling applied by DefaultPolicy.
const MaxFileBytes = int64(5 << 20) // 5 MiB

// FieldPortfolio is the multipart field the portfolio endpoint reads.
const FieldPortfolio = "portfolio"

// imageTypes is the allow-list shared by extensions and MIME subtypes.
var imageTypes = []string{"jpeg", "jpg", "png", "gif", "webp"}

// Policy describes what the gatekeeper lets through.
type Policy struct {
	AllowedExtensions []string // without the leading dot
	AllowedMIMETypes  []string // full media types, e.g. "image/png"
	MaxFileBytes      int64
	MaxFiles          int  // 0 means unlimited
	SniffContent      bool // compare declared type with the leading bytes
}

// DefaultPolicy accepts jpeg, jpg, png, gif and webp images up to 5 MiB each.
func DefaultPolicy() Policy {
	mimes := make([]string, 0, len(imageTypes))
	for _, t := range imageTypes {
		mimes = append(mimes, "image/"+t)
	}
	return Policy{
		AllowedExtensions: append([]string(nil), imageTypes...),
		AllowedMIMETypes:  mimes,
		MaxFileBytes:      MaxFileBytes,
		MaxFiles:          10,
	}
}

// allowedList renders the extensions for error messages.
func (p Policy) allowedList() string {
	return strings.Join(p.AllowedExtensions, ", ")
}

func (p Policy) extensionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.AllowedExtensions))
	for _, ext := range p.AllowedExtensions {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return set
}

func (p Policy) mimeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.AllowedMIMETypes))
	for _, m := range p.AllowedMIMETypes {
		set[strings.ToLower(m)] = struct{}{}
	}
	return set
}

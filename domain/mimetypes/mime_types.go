package mimetypes

import "mime"

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"
	TextHTML  MIME = "text/html"
	TextCSV   MIME = "text/csv"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"
	ApplicationXML  MIME = "application/xml"
	ApplicationZIP  MIME = "application/zip"
	ApplicationDOCX MIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ApplicationXLSX MIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"
)

// deliverable lists the types a client may receive as a file deliverable.
// HTML is left out, a signed URL must never serve active content.
var deliverable = map[MIME]struct{}{
	TextPlain:       {},
	TextCSV:         {},
	ApplicationPDF:  {},
	ApplicationJSON: {},
	ApplicationXML:  {},
	ApplicationZIP:  {},
	ApplicationDOCX: {},
	ApplicationXLSX: {},
	ImagePNG:        {},
	ImageJPEG:       {},
	ImageGIF:        {},
	ImageWEBP:       {},
}

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// ToMIME strips the parameters of a detected media type.
func ToMIME(detected string) MIME {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown
	}
	return MIME(mt)
}

func IsDeliverable(m MIME) bool {
	_, ok := deliverable[m]
	return ok
}

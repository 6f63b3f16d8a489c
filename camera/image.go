package camera

import "encoding/base64"

const MimeJPEG = "image/jpeg"

// ImageBlob is a single encoded still taken from the camera.
type ImageBlob struct {
	Data []byte
	MIME string
}

// NewJPEG copies data into a JPEG blob so the caller may reuse its buffer.
func NewJPEG(data []byte) ImageBlob {
	buf := make([]byte, len(data))
	copy(buf, data)
	return ImageBlob{Data: buf, MIME: MimeJPEG}
}

func (b ImageBlob) Empty() bool {
	return len(b.Data) == 0
}

// DataURL renders the blob as "data:<mime>;base64,<payload>", the form both
// identity endpoints expect.
func (b ImageBlob) DataURL() string {
	mime := b.MIME
	if mime == "" {
		mime = MimeJPEG
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

package domain

// EncodedImage is an image ready to be embedded in a model request.
type EncodedImage struct {
	MIMEType string
	Data     string // base64, standard encoding
}

func (e EncodedImage) DataURL() string {
	return "data:" + e.MIMEType + ";base64," + e.Data
}

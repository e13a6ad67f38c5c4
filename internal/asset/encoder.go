package asset

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

// ReadError reports that an asset could not be read into memory.
type ReadError struct {
	Name string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read asset %q: %v", e.Name, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

var errMalformedDataURI = errors.New("malformed data URI")

// Encoder turns user files into EncodedAssets and registers a preview for each.
type Encoder struct {
	previews *Previews
}

func NewEncoder(previews *Previews) *Encoder {
	return &Encoder{previews: previews}
}

// Encode reads src fully and returns its base64 payload. No EncodedAsset is
// produced and no preview is allocated when the read fails.
func (e *Encoder) Encode(ctx context.Context, src Source) (*model.EncodedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ReadError{Name: src.Name(), Err: err}
	}

	rc, err := src.Open()
	if err != nil {
		return nil, &ReadError{Name: src.Name(), Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &ReadError{Name: src.Name(), Err: err}
	}

	return e.build(src.Name(), resolveMIME(src.ContentType(), data), data), nil
}

// EncodeDataURI accepts a "data:<mime>;base64,<payload>" string, as produced
// by a browser FileReader, and keeps only the payload.
func (e *Encoder) EncodeDataURI(ctx context.Context, name, uri string) (*model.EncodedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ReadError{Name: name, Err: err}
	}

	declared, payload, err := splitDataURI(uri)
	if err != nil {
		return nil, &ReadError{Name: name, Err: err}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &ReadError{Name: name, Err: fmt.Errorf("%w: %v", errMalformedDataURI, err)}
	}

	return e.build(name, resolveMIME(declared, data), data), nil
}

func (e *Encoder) build(name, mimeType string, data []byte) *model.EncodedAsset {
	asset := &model.EncodedAsset{
		Name:     name,
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		Size:     int64(len(data)),
	}
	if e.previews != nil {
		asset.PreviewID = e.previews.Create(data, mimeType)
	}
	return asset
}

// Decode returns the raw bytes of an encoded asset.
func Decode(a *model.EncodedAsset) ([]byte, error) {
	return base64.StdEncoding.DecodeString(StripDataURI(a.Data))
}

// StripDataURI drops a "data:...," header if present.
func StripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}

func splitDataURI(uri string) (mimeType, payload string, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", "", errMalformedDataURI
	}
	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return "", "", errMalformedDataURI
	}
	params := strings.Split(header, ";")
	if params[len(params)-1] != "base64" {
		return "", "", fmt.Errorf("%w: payload is not base64", errMalformedDataURI)
	}
	return params[0], payload, nil
}

func resolveMIME(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}

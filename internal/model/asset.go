package model

import "fmt"

// AssetRole names one of the two upload slots
type AssetRole string

const (
	AssetRoleSubject AssetRole = "subject"
	AssetRoleLogo    AssetRole = "logo"
)

var ValidAssetRoles = []AssetRole{AssetRoleSubject, AssetRoleLogo}

// ParseAssetRole validates a role coming from a URL or flag
func ParseAssetRole(s string) (AssetRole, error) {
	for _, r := range ValidAssetRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown asset role %q", s)
}

// EncodedAsset is an uploaded image held in memory, ready to be sent as a
// reference image. It is never mutated after creation.
type EncodedAsset struct {
	Name      string `json:"name,omitempty"`
	Data      string `json:"-"` // base64, no data-URI header
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	PreviewID string `json:"previewId"`
}

// AssetDataURIRequest is the JSON variant of an asset upload
type AssetDataURIRequest struct {
	DataURI string `json:"dataUri" validate:"required,startswith=data:"`
	Name    string `json:"name" validate:"max=255"`
}

// AssetUploadResponse is returned after an asset has been stored in its slot
type AssetUploadResponse struct {
	Role       AssetRole `json:"role"`
	Name       string    `json:"name,omitempty"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	PreviewURL string    `json:"previewUrl"`
}

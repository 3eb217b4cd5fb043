package microapp

import "time"

// Status is the persisted lifecycle state of a micro-app.
type Status string

const (
	StatusNotDownloaded Status = "not-downloaded"
	StatusDownloaded    Status = "downloaded"
)

// Transient states are reported by the installation pipeline, never persisted.
const (
	StateDownloading = "downloading"
	StateRemoving    = "removing"
)

// FreshWindow is how long an install is presented as new.
const FreshWindow = 24 * time.Hour

// Version is one released build of a micro-app.
type Version struct {
	Version      string `json:"version"`
	Build        int    `json:"build"`
	ReleaseNotes string `json:"releaseNotes,omitempty"`
	DownloadURL  string `json:"downloadUrl"`
	IconURL      string `json:"iconUrl,omitempty"`
}

// MicroApp is a catalog entry plus its local install state.
type MicroApp struct {
	AppID          string    `json:"appId"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	PromoText      string    `json:"promoText,omitempty"`
	IconURL        string    `json:"iconUrl,omitempty"`
	BannerImageURL string    `json:"bannerImageUrl,omitempty"`
	IsMandatory    int       `json:"isMandatory"`
	Versions       []Version `json:"versions,omitempty"`

	Status         Status `json:"status,omitempty"`
	WebViewURI     string `json:"webViewUri,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	ExchangedToken string `json:"exchangedToken,omitempty"`
	DownloadedAt   int64  `json:"downloadedAt,omitempty"`
	// Version installed locally; compared against Versions[0] on catalog load.
	InstalledVersion string `json:"version,omitempty"`
}

// Latest returns the authoritative version, if the catalog listed any.
func (a MicroApp) Latest() (Version, bool) {
	if len(a.Versions) == 0 {
		return Version{}, false
	}
	return a.Versions[0], true
}

// Installed reports whether the app has a runnable local bundle.
func (a MicroApp) Installed() bool {
	return a.Status == StatusDownloaded
}

// IsFresh reports whether now falls inside the "newly installed" window.
func (a MicroApp) IsFresh(now time.Time) bool {
	if a.DownloadedAt <= 0 {
		return false
	}
	return now.Sub(time.UnixMilli(a.DownloadedAt)) < FreshWindow
}

// Clone returns a deep copy.
func (a MicroApp) Clone() MicroApp {
	if a.Versions != nil {
		a.Versions = append([]Version(nil), a.Versions...)
	}
	return a
}

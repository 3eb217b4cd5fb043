package microapp

// Merge overlays remote catalog entries on local state by appId. Local-only
// fields survive; apps the catalog no longer lists are kept so their
// install state is never lost. Remote order wins, local extras follow.
func Merge(local, remote []MicroApp) []MicroApp {
	byID := make(map[string]MicroApp, len(local))
	for _, app := range local {
		byID[app.AppID] = app
	}

	seen := make(map[string]bool, len(remote))
	out := make([]MicroApp, 0, len(remote)+len(local))
	for _, r := range remote {
		if r.AppID == "" || seen[r.AppID] {
			continue
		}
		seen[r.AppID] = true

		merged := r.Clone()
		merged.Status = StatusNotDownloaded
		merged.WebViewURI = ""
		merged.ClientID = ""
		merged.ExchangedToken = ""
		merged.DownloadedAt = 0
		merged.InstalledVersion = ""
		if l, ok := byID[r.AppID]; ok {
			merged.Status = l.Status
			merged.WebViewURI = l.WebViewURI
			merged.ClientID = l.ClientID
			merged.ExchangedToken = l.ExchangedToken
			merged.DownloadedAt = l.DownloadedAt
			merged.InstalledVersion = l.InstalledVersion
		}
		if merged.Status == "" {
			merged.Status = StatusNotDownloaded
		}
		out = append(out, merged)
	}

	for _, l := range local {
		if !seen[l.AppID] {
			seen[l.AppID] = true
			out = append(out, l.Clone())
		}
	}
	return out
}

// NeedsUpdate reports whether an installed app's recorded version differs
// from the catalog's latest.
func NeedsUpdate(app MicroApp) bool {
	latest, ok := app.Latest()
	if !ok || !app.Installed() || latest.DownloadURL == "" {
		return false
	}
	return app.InstalledVersion != latest.Version
}

package relay

import "strings"

const (
	appPackageScheme    = "ms-appx://"
	appPackageWebScheme = "ms-appx-web://"
)

// RewriteAppPackageURI maps the application-package scheme onto its
// web-capable variant. Only the scheme marker changes; path and query pass
// through untouched. Any other URI is returned as is.
func RewriteAppPackageURI(uri string) string {
	if strings.HasPrefix(uri, appPackageScheme) {
		return appPackageWebScheme + strings.TrimPrefix(uri, appPackageScheme)
	}
	return uri
}

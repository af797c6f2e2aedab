package collector

import (
	"net/url"
	"strings"

	"prakashmadai10/gisaudit/portal"
)

// isHostedSourceService reports whether an online item is a true hosted source
// feature service. Views over other hosted services are not audited; they
// would double-count the source layer's features.
func isHostedSourceService(item portal.Item) bool {
	return item.HasTypeKeyword("Hosted Service") && !item.HasTypeKeyword("View Service")
}

// isHostedServiceURL reports whether the service URL points at the online
// portal's own hosting tier.
func isHostedServiceURL(serviceURL string) bool {
	if serviceURL == "" {
		return false
	}
	u, err := url.Parse(serviceURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Host), "services.arcgis.com")
}

// isReferencedService reports whether an online item merely references a
// service hosted elsewhere (enterprise servers, collaboration copies). Those
// are audited on their home portal, not here.
func isReferencedService(serviceURL string) bool {
	return serviceURL != "" && !isHostedServiceURL(serviceURL)
}

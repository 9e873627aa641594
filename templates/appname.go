package templates

import "strings"

const maxAppNameLength = 45

// AppName derives the DNS-safe identifier used to name every cluster
// resource of a project. The result always matches [a-z0-9-]+, never starts
// or ends with '-', and AppName(AppName(x)) == AppName(x).
func AppName(projectName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(projectName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}

	name := strings.Trim(b.String(), "-")
	if len(name) > maxAppNameLength {
		name = strings.TrimRight(name[:maxAppNameLength], "-")
	}
	if name == "" {
		return "app"
	}
	return name
}

// DatabaseName is the Postgres database created for an app.
func DatabaseName(appName string) string {
	return strings.ReplaceAll(appName, "-", "_")
}

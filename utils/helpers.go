package utils

import "strings"

// ExtractRepoName extracts repository name from a git URL
func ExtractRepoName(gitURL string) string {
	url := strings.TrimSuffix(strings.TrimSpace(gitURL), ".git")
	url = strings.TrimSuffix(url, "/")

	parts := strings.FieldsFunc(url, func(r rune) bool { return r == '/' || r == ':' })
	if len(parts) < 2 {
		return "unknown-repo"
	}
	return parts[len(parts)-1]
}

// ExtractRepoFullName returns "owner/repo" for a git URL, or "" when the URL
// has no owner segment.
func ExtractRepoFullName(gitURL string) string {
	url := strings.TrimSuffix(strings.TrimSpace(gitURL), ".git")
	url = strings.TrimSuffix(url, "/")

	parts := strings.FieldsFunc(url, func(r rune) bool { return r == '/' || r == ':' })
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}

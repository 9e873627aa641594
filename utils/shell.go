package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var plainShellWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// ShellQuote returns s as a single POSIX shell word. Words made only of
// harmless characters are returned unchanged; everything else is wrapped in
// single quotes with embedded quotes spelled '"'"'.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if plainShellWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellJoin quotes every argument and joins them with spaces.
func ShellJoin(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// Heredoc returns a shell command that writes content to path byte for byte.
// The delimiter is quoted so the shell performs no expansion, and is chosen
// so that it never appears as a line of content.
func Heredoc(path, content string) string {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	delim := heredocDelimiter(content)
	return fmt.Sprintf("cat > %s <<'%s'\n%s%s\n", ShellQuote(path), delim, content, delim)
}

func heredocDelimiter(content string) string {
	lines := make(map[string]struct{})
	for _, line := range strings.Split(content, "\n") {
		lines[line] = struct{}{}
	}
	for i := 0; ; i++ {
		delim := "DEPLOYKIT_EOF"
		if i > 0 {
			delim = fmt.Sprintf("DEPLOYKIT_EOF_%d", i)
		}
		if _, taken := lines[delim]; !taken {
			return delim
		}
	}
}

// GitCheckoutCommand returns the command pinning the work tree to a commit,
// or "" when the branch head should be used.
func GitCheckoutCommand(commitSHA string) string {
	if commitSHA == "" || strings.EqualFold(commitSHA, "HEAD") {
		return ""
	}
	sha := ShellQuote(commitSHA)
	return fmt.Sprintf("echo %s\ngit fetch origin %s\ngit checkout %s\n",
		ShellQuote("==> Checking out commit "+commitSHA), sha, sha)
}

package remote

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/deploykit/utils"
)

// File is a manifest written to the remote manifests directory.
type File struct {
	Name    string
	Content string
}

// ScriptInput describes one attempt's remote work. Manifests must already be
// in apply order.
type ScriptInput struct {
	AppName       string
	RepositoryURL string
	Branch        string
	Commit        string
	// WorkDir is the base directory on the remote host; each app gets
	// WorkDir/<app>/{src,manifests,Dockerfile.generated}.
	WorkDir string
	// ProjectFile marks the directory holding the app, e.g. package.json.
	ProjectFile string
	Dockerfile  string
	Image       string
	BuildArgs   map[string]string
	Manifests   []File
	Namespace   string
}

const generatedDockerfile = "Dockerfile.generated"

// BuildScript composes the shell script run in the remote session. Every
// interpolated value is quoted through utils.
func BuildScript(in ScriptInput) (string, error) {
	switch {
	case in.AppName == "":
		return "", errors.New("app name is required")
	case in.RepositoryURL == "":
		return "", errors.New("repository url is required")
	case in.Image == "":
		return "", errors.New("image is required")
	case len(in.Manifests) == 0:
		return "", errors.New("no manifests to apply")
	}
	branch := in.Branch
	if branch == "" {
		branch = "main"
	}
	projectFile := in.ProjectFile
	if projectFile == "" {
		projectFile = "package.json"
	}
	workDir := in.WorkDir
	if workDir == "" {
		workDir = "deployments"
	}
	appDir := path.Join(workDir, in.AppName)
	q := utils.ShellQuote

	var b strings.Builder
	b.WriteString("set -e\n")
	step(&b, "Preparing workspace "+appDir)
	fmt.Fprintf(&b, "mkdir -p %s\n", q(path.Join(appDir, "manifests")))
	fmt.Fprintf(&b, "cd %s\n", q(appDir))

	// 1. clone or pull
	b.WriteString("if [ -d src/.git ]; then\n")
	step(&b, "Pulling branch "+branch)
	b.WriteString("cd src\n")
	fmt.Fprintf(&b, "git remote set-url origin %s\n", q(in.RepositoryURL))
	fmt.Fprintf(&b, "git fetch --prune origin %s\n", q(branch))
	fmt.Fprintf(&b, "git checkout %s\n", q(branch))
	fmt.Fprintf(&b, "git reset --hard %s\n", q("origin/"+branch))
	b.WriteString("else\n")
	step(&b, "Cloning "+in.RepositoryURL)
	b.WriteString("rm -rf src\n")
	fmt.Fprintf(&b, "git clone --branch %s %s src\n", q(branch), q(in.RepositoryURL))
	b.WriteString("cd src\n")
	b.WriteString("fi\n")
	b.WriteString(utils.GitCheckoutCommand(in.Commit))

	// 2. locate a Dockerfile, else use the generated one
	b.WriteString(utils.Heredoc("../"+generatedDockerfile, in.Dockerfile))
	b.WriteString("BUILD_CONTEXT=.\n")
	b.WriteString("DOCKERFILE=\n")
	b.WriteString("if [ -f Dockerfile ]; then\n")
	b.WriteString("DOCKERFILE=Dockerfile\n")
	fmt.Fprintf(&b, "elif [ ! -f %s ]; then\n", q(projectFile))
	fmt.Fprintf(&b, "FOUND=$(find . -mindepth 2 -maxdepth 2 -name %s -not -path './.git/*' -not -path './node_modules/*' | sort | head -n 1)\n", q(projectFile))
	b.WriteString("if [ -n \"$FOUND\" ]; then\n")
	b.WriteString("BUILD_CONTEXT=$(dirname \"$FOUND\")\n")
	b.WriteString("if [ -f \"$BUILD_CONTEXT/Dockerfile\" ]; then DOCKERFILE=\"$BUILD_CONTEXT/Dockerfile\"; fi\n")
	b.WriteString("fi\n")
	b.WriteString("fi\n")
	b.WriteString("if [ -z \"$DOCKERFILE\" ]; then\n")
	step(&b, "No Dockerfile in repository, using generated Dockerfile")
	fmt.Fprintf(&b, "DOCKERFILE=../%s\n", generatedDockerfile)
	b.WriteString("else\n")
	b.WriteString("echo \"==> Using $DOCKERFILE\"\n")
	b.WriteString("fi\n")

	// 3. build and push
	step(&b, "Building image "+in.Image)
	args := []string{"docker", "build", "-t", in.Image}
	for _, key := range sortedKeys(in.BuildArgs) {
		args = append(args, "--build-arg", key+"="+in.BuildArgs[key])
	}
	fmt.Fprintf(&b, "%s -f \"$DOCKERFILE\" \"$BUILD_CONTEXT\"\n", utils.ShellJoin(args...))
	step(&b, "Pushing image "+in.Image)
	fmt.Fprintf(&b, "docker push %s\n", q(in.Image))
	b.WriteString("cd ..\n")

	// 4. write manifests
	step(&b, "Writing manifests")
	b.WriteString("rm -f manifests/*.yaml\n")
	for _, f := range in.Manifests {
		b.WriteString(utils.Heredoc(path.Join("manifests", f.Name), f.Content))
	}

	// 5. apply in order
	namespace := in.Namespace
	if namespace == "" {
		namespace = "default"
	}
	for _, f := range in.Manifests {
		step(&b, "Applying "+f.Name)
		fmt.Fprintf(&b, "kubectl apply -n %s -f %s\n", q(namespace), q(path.Join("manifests", f.Name)))
	}
	step(&b, "Deployment of "+in.AppName+" applied")
	return b.String(), nil
}

func step(b *strings.Builder, msg string) {
	fmt.Fprintf(b, "echo %s\n", utils.ShellQuote("==> "+msg))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

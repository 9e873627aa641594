package templates

import (
	"fmt"
	"sort"
	"strings"
)

const (
	nodeImage        = "node:22-alpine"
	mavenImage       = "maven:3.9-eclipse-temurin-17-alpine"
	jreImage         = "eclipse-temurin:17-jre-alpine"
	nodeListenPort   = 3000
	jvmListenPort    = 8080
	defaultOutputDir = "dist"
)

// ClientExposedPrefixes mark variables that frontend bundlers inline at build
// time. Only these become build arguments.
var ClientExposedPrefixes = []string{"VITE_", "REACT_APP_", "NEXT_PUBLIC_"}

// DockerfileInput is everything RenderDockerfile depends on.
type DockerfileInput struct {
	Framework      string
	InstallCommand string
	OutputDir      string
	EnvKeys        []string
}

// IsClientExposed reports whether key is baked into the image at build time.
func IsClientExposed(key string) bool {
	for _, prefix := range ClientExposedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// BuildArgKeys filters keys down to the client-exposed ones, sorted.
func BuildArgKeys(keys []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range keys {
		if IsClientExposed(k) && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// ContainerPort is the port the generated image listens on.
func ContainerPort(framework string) int {
	if framework == "springboot" {
		return jvmListenPort
	}
	return nodeListenPort
}

// RenderDockerfile returns the Dockerfile used when the repository ships none.
func RenderDockerfile(in DockerfileInput) string {
	if in.Framework == "springboot" {
		return renderJVMDockerfile()
	}
	return renderNodeDockerfile(in)
}

func renderJVMDockerfile() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s AS build\n", mavenImage)
	b.WriteString("WORKDIR /app\n")
	b.WriteString("COPY pom.xml .\n")
	b.WriteString("RUN mvn -B dependency:go-offline\n")
	b.WriteString("COPY src ./src\n")
	b.WriteString("RUN mvn -B package -DskipTests\n\n")
	fmt.Fprintf(&b, "FROM %s\n", jreImage)
	b.WriteString("WORKDIR /app\n")
	b.WriteString("COPY --from=build /app/target/*.jar app.jar\n")
	fmt.Fprintf(&b, "EXPOSE %d\n", jvmListenPort)
	b.WriteString(`CMD ["java", "-jar", "app.jar"]` + "\n")
	return b.String()
}

func renderNodeDockerfile(in DockerfileInput) string {
	yarn := usesYarn(in.InstallCommand)

	install := strings.TrimSpace(in.InstallCommand)
	if install == "" {
		install = "yarn install"
	}
	build := "npm run build --if-present"
	if yarn {
		build = "yarn build"
	}
	outputDir := strings.TrimSpace(in.OutputDir)
	if outputDir == "" {
		outputDir = defaultOutputDir
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", nodeImage)
	b.WriteString("WORKDIR /app\n")
	if yarn {
		b.WriteString("COPY package.json yarn.lock* ./\n")
	} else {
		b.WriteString("COPY package*.json ./\n")
	}
	fmt.Fprintf(&b, "RUN %s\n", install)
	b.WriteString("COPY . .\n")

	for _, key := range BuildArgKeys(in.EnvKeys) {
		fmt.Fprintf(&b, "ARG %s\nENV %s=$%s\n", key, key, key)
	}

	fmt.Fprintf(&b, "RUN %s\n", build)

	switch in.Framework {
	case "react":
		if yarn {
			b.WriteString("RUN yarn global add serve\n")
		} else {
			b.WriteString("RUN npm install -g serve\n")
		}
		fmt.Fprintf(&b, "EXPOSE %d\n", nodeListenPort)
		fmt.Fprintf(&b, "CMD [\"serve\", \"-s\", %q, \"-l\", \"%d\"]\n", outputDir, nodeListenPort)
	case "nestjs":
		fmt.Fprintf(&b, "EXPOSE %d\n", nodeListenPort)
		b.WriteString(`CMD ["node", "dist/main.js"]` + "\n")
	default:
		fmt.Fprintf(&b, "ENV PORT=%d\n", nodeListenPort)
		fmt.Fprintf(&b, "EXPOSE %d\n", nodeListenPort)
		if yarn {
			b.WriteString(`CMD ["yarn", "start"]` + "\n")
		} else {
			b.WriteString(`CMD ["npm", "start"]` + "\n")
		}
	}
	return b.String()
}

// usesYarn: an empty install command means yarn; otherwise yarn only when named.
func usesYarn(installCommand string) bool {
	cmd := strings.TrimSpace(installCommand)
	return cmd == "" || strings.Contains(cmd, "yarn")
}

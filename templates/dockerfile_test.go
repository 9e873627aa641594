package templates

import (
	"strings"
	"sync"
	"testing"
)

func TestRenderDockerfileReactServesStaticFiles(t *testing.T) {
	out := RenderDockerfile(DockerfileInput{Framework: "react", OutputDir: "build"})

	for _, want := range []string{
		"FROM node:22-alpine\n",
		"COPY package.json yarn.lock* ./\n",
		"RUN yarn install\n",
		"RUN yarn build\n",
		"RUN yarn global add serve\n",
		`CMD ["serve", "-s", "build", "-l", "3000"]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderDockerfilePackageManager(t *testing.T) {
	npm := RenderDockerfile(DockerfileInput{Framework: "nodejs", InstallCommand: "npm ci"})
	if strings.Contains(npm, "yarn") {
		t.Errorf("npm build mentions yarn:\n%s", npm)
	}
	if !strings.Contains(npm, "COPY package*.json ./\n") || !strings.Contains(npm, "RUN npm ci\n") {
		t.Errorf("unexpected npm Dockerfile:\n%s", npm)
	}
	if !strings.Contains(npm, `CMD ["npm", "start"]`) {
		t.Errorf("expected npm start:\n%s", npm)
	}

	yarn := RenderDockerfile(DockerfileInput{Framework: "nextjs", InstallCommand: "yarn install --frozen-lockfile"})
	if !strings.Contains(yarn, "yarn.lock") || !strings.Contains(yarn, `CMD ["yarn", "start"]`) {
		t.Errorf("unexpected yarn Dockerfile:\n%s", yarn)
	}
}

func TestRenderDockerfileNestUsesCompiledEntrypoint(t *testing.T) {
	out := RenderDockerfile(DockerfileInput{Framework: "nestjs"})
	if !strings.Contains(out, `CMD ["node", "dist/main.js"]`) {
		t.Errorf("unexpected nest entrypoint:\n%s", out)
	}
}

func TestRenderDockerfileBuildArgsOnlyForClientKeys(t *testing.T) {
	out := RenderDockerfile(DockerfileInput{
		Framework: "react",
		EnvKeys:   []string{"VITE_API_URL", "SECRET_TOKEN", "REACT_APP_NAME", "DATABASE_URL", "NEXT_PUBLIC_X"},
	})

	for _, key := range []string{"VITE_API_URL", "REACT_APP_NAME", "NEXT_PUBLIC_X"} {
		if !strings.Contains(out, "ARG "+key+"\nENV "+key+"=$"+key+"\n") {
			t.Errorf("missing build arg %s:\n%s", key, out)
		}
	}
	for _, key := range []string{"SECRET_TOKEN", "DATABASE_URL"} {
		if strings.Contains(out, key) {
			t.Errorf("runtime variable %s leaked into image:\n%s", key, out)
		}
	}
	if strings.Index(out, "ARG NEXT_PUBLIC_X") > strings.Index(out, "ARG REACT_APP_NAME") {
		t.Error("build args should be sorted")
	}
}

func TestRenderDockerfileSpringBootIsMultiStage(t *testing.T) {
	out := RenderDockerfile(DockerfileInput{Framework: "springboot", EnvKeys: []string{"VITE_X"}})
	if strings.Count(out, "FROM ") != 2 {
		t.Fatalf("expected two stages:\n%s", out)
	}
	if !strings.Contains(out, "COPY --from=build /app/target/*.jar app.jar") {
		t.Errorf("runtime stage should copy only the jar:\n%s", out)
	}
	if strings.Contains(out, "ARG") {
		t.Errorf("JVM build takes no build args:\n%s", out)
	}
	if ContainerPort("springboot") != 8080 || ContainerPort("react") != 3000 {
		t.Error("unexpected container ports")
	}
}

func TestRenderDockerfileUnknownFrameworkFallsBackToNode(t *testing.T) {
	unknown := RenderDockerfile(DockerfileInput{Framework: "svelte-kit"})
	other := RenderDockerfile(DockerfileInput{Framework: "other"})
	if unknown != other {
		t.Errorf("unknown framework should use the generic Node strategy")
	}
}

func TestRenderDockerfileIsPure(t *testing.T) {
	in := DockerfileInput{Framework: "react", EnvKeys: []string{"VITE_B", "VITE_A", "VITE_C"}}
	first := RenderDockerfile(in)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := RenderDockerfile(in); got != first {
				t.Error("output differs between calls")
			}
		}()
	}
	wg.Wait()

	shuffled := DockerfileInput{Framework: "react", EnvKeys: []string{"VITE_C", "VITE_A", "VITE_B"}}
	if RenderDockerfile(shuffled) != first {
		t.Error("output depends on key order")
	}
}

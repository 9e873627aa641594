package utils

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestMarshalManifestsBlockLiteral(t *testing.T) {
	cm := &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{Name: "shop-config"},
		Data: map[string]string{
			"CERT":  "-----BEGIN-----\nabc: def\n-----END-----",
			"PLAIN": "5432",
		},
	}

	out, err := MarshalManifests(cm)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "CERT: |-\n") {
		t.Errorf("expected block literal, got:\n%s", out)
	}
	if strings.Contains(out, `\n`) {
		t.Errorf("multi-line value was escaped:\n%s", out)
	}
	if strings.Contains(out, "creationTimestamp") {
		t.Errorf("creationTimestamp should be dropped:\n%s", out)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal([]byte(out), &generic); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	data := generic["data"].(map[string]interface{})
	if data["CERT"] != cm.Data["CERT"] {
		t.Errorf("CERT round trip = %q", data["CERT"])
	}
	if data["PLAIN"] != "5432" {
		t.Errorf("PLAIN should stay a string, got %#v", data["PLAIN"])
	}
}

func TestMarshalManifestsMultiDocument(t *testing.T) {
	a := &corev1.Service{TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"}, ObjectMeta: metav1.ObjectMeta{Name: "a"}}
	b := &corev1.Service{TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"}, ObjectMeta: metav1.ObjectMeta{Name: "b"}}

	out, err := MarshalManifests(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "---\n") != 1 {
		t.Errorf("expected one document separator:\n%s", out)
	}
	if strings.Contains(out, "status:") {
		t.Errorf("status should be dropped:\n%s", out)
	}
}

func TestMarshalManifestsBlockLiteralKeepsWhitespace(t *testing.T) {
	values := map[string]string{
		"TRAILING":  "line one \nline two",
		"TABBED":    "root:\n\tchild: 1\n",
		"INDENTED":  "  starts indented\nsecond",
		"BLANKS":    "a\n\nb\n\n",
		"ONLY_TAB":  "x\t\ny",
		"NOT_BLOCK": "single line",
	}
	cm := &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{Name: "shop-config"},
		Data:       values,
	}

	out, err := MarshalManifests(cm)
	if err != nil {
		t.Fatal(err)
	}
	for _, header := range []string{"TRAILING: |-\n", "TABBED: |\n", "INDENTED: |2-\n", "BLANKS: |+\n", "ONLY_TAB: |-\n"} {
		if !strings.Contains(out, header) {
			t.Errorf("missing %q in:\n%s", header, out)
		}
	}
	if strings.Contains(out, `\n`) || strings.Contains(out, `\t`) {
		t.Errorf("multi-line value was escaped:\n%s", out)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal([]byte(out), &generic); err != nil {
		t.Fatalf("output is not valid YAML: %v\n%s", err, out)
	}
	data := generic["data"].(map[string]interface{})
	for k, v := range values {
		if data[k] != v {
			t.Errorf("%s round trip = %q, want %q", k, data[k], v)
		}
	}
}

func TestMarshalManifestsBlockLiteralInsideSequence(t *testing.T) {
	pod := &corev1.Pod{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		ObjectMeta: metav1.ObjectMeta{Name: "shop"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:    "shop",
				Image:   "shop:1",
				Command: []string{"sh", "-c", "echo one \necho two"},
				Env:     []corev1.EnvVar{{Name: "KEY", Value: "a \nb"}},
			}},
		},
	}

	out, err := MarshalManifests(pod)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, `\n`) {
		t.Errorf("multi-line value was escaped:\n%s", out)
	}
	var generic map[string]interface{}
	if err := yaml.Unmarshal([]byte(out), &generic); err != nil {
		t.Fatalf("output is not valid YAML: %v\n%s", err, out)
	}
	container := generic["spec"].(map[string]interface{})["containers"].([]interface{})[0].(map[string]interface{})
	command := container["command"].([]interface{})
	if command[2] != "echo one \necho two" {
		t.Errorf("command round trip = %q", command[2])
	}
	env := container["env"].([]interface{})[0].(map[string]interface{})
	if env["value"] != "a \nb" {
		t.Errorf("env round trip = %q", env["value"])
	}
}

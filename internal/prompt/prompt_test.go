package prompt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbuliHe/visualizer/internal/prompt"
	"github.com/tbuliHe/visualizer/internal/sandbox"
	"github.com/tbuliHe/visualizer/pkg/models"
)

func newBuilder(lang sandbox.Language) *prompt.Builder {
	return &prompt.Builder{
		Model: "test-model",
		Sampling: models.SamplingParams{
			Temperature: 0.7,
			TopP:        0.7,
			TopK:        50,
			MaxTokens:   512,
			Stop:        []string{"null"},
		},
		Language: lang,
	}
}

func TestBuild_Shape(t *testing.T) {
	b := newBuilder(sandbox.LanguageJavaScript)

	req := b.Build("y equals x squared")

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "y equals x squared", req.UserText())
	assert.Equal(t, "test-model", req.Model)
	assert.False(t, req.Stream)
	assert.Equal(t, 512, req.Sampling.MaxTokens)
}

func TestBuild_DeterministicAcrossDescriptions(t *testing.T) {
	b := newBuilder(sandbox.LanguageJavaScript)

	descriptions := []string{"sine wave", "", "a cardioid r = 1 + cos(theta)", strings.Repeat("x", 4096)}
	first := b.Build(descriptions[0])
	for _, d := range descriptions {
		req := b.Build(d)
		assert.Equal(t, first.SystemPrompt(), req.SystemPrompt())
		assert.Equal(t, first.Sampling, req.Sampling)
		assert.Equal(t, d, req.UserText())
	}
}

func TestBuild_DoesNotAliasStop(t *testing.T) {
	b := newBuilder(sandbox.LanguageJavaScript)

	req := b.Build("line")
	req.Sampling.Stop[0] = "changed"

	assert.Equal(t, "null", b.Sampling.Stop[0])
}

func TestInstructions_PerLanguage(t *testing.T) {
	js := newBuilder(sandbox.LanguageJavaScript).Instructions()
	lua := newBuilder(sandbox.LanguageLua).Instructions()

	for _, text := range []string{js, lua} {
		assert.Contains(t, text, "results")
		assert.Contains(t, text, "[-10, 10] with 200 points")
		assert.Contains(t, text, "parametric, and polar")
	}
	assert.Contains(t, js, "JavaScript")
	assert.Contains(t, lua, "NEVER \"local results\"")
}

func TestInstructions_ListNamespaceEntries(t *testing.T) {
	js := newBuilder(sandbox.LanguageJavaScript).Instructions()
	for _, name := range []string{"pi/PI", "e/E", "square", "cube", "nthRoot", "sum", "toArray()"} {
		assert.Contains(t, js, name)
	}

	lua := newBuilder(sandbox.LanguageLua).Instructions()
	for _, name := range []string{"huge", "fmod", "modf", "rad", "deg", "math.random"} {
		assert.Contains(t, lua, name)
	}
	assert.Contains(t, lua, "results[0]")
}

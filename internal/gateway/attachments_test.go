package gateway

import (
	"testing"

	"codesquad/internal/persona"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBinaryAttachment(t *testing.T) {
	for _, name := range []string{"lib.dll", "bundle.ZIP", "dump.tar.gz", "x.tgz", "a.7z"} {
		assert.True(t, IsBinaryAttachment(name), name)
	}
	for _, name := range []string{"main.go", "notes.txt", "data.json", "archive.tartan"} {
		assert.False(t, IsBinaryAttachment(name), name)
	}
}

func TestMIMETypeFor(t *testing.T) {
	assert.Equal(t, "text/plain", MIMETypeFor(Attachment{Name: "a.txt"}))
	assert.Equal(t, "image/png", MIMETypeFor(Attachment{Name: "b.PNG"}))
	assert.Equal(t, "application/octet-stream", MIMETypeFor(Attachment{Name: "c.weird"}))
	// Explicit type wins over extension.
	assert.Equal(t, "text/csv", MIMETypeFor(Attachment{Name: "a.txt", MIMEType: "text/csv"}))
}

func TestDetectProjectType(t *testing.T) {
	cases := []struct {
		file string
		want string
	}{
		{"package.json", "Node.js"},
		{"requirements.txt", "Python"},
		{"pyproject.toml", "Python"},
		{"pom.xml", "Java"},
		{"build.gradle", "Java"},
		{"Gemfile", "Ruby"},
		{"go.mod", "Go"},
		{"Cargo.toml", "Rust"},
		{"README.md", "Unknown"},
	}
	for _, tc := range cases {
		got := DetectProjectType([]Attachment{{Name: tc.file}})
		assert.Equal(t, tc.want, got, tc.file)
	}
}

func TestBuildMessagePartsNoFiles(t *testing.T) {
	parts := BuildMessageParts("hello", nil, persona.ModeBuild)
	require.Len(t, parts, 1)
	assert.Equal(t, "hello", parts[0].Text)
}

func TestBuildMessagePartsWithFiles(t *testing.T) {
	files := []Attachment{
		{Name: "main.go", Data: "cGFja2FnZSBtYWlu"},
		{Name: "vendor.zip", Data: "UEsDBA=="},
	}
	parts := BuildMessageParts("review this", files, persona.ModeLearn)

	// Preamble, inline data, binary placeholder, then the text.
	require.Len(t, parts, 4)
	assert.Contains(t, parts[0].Text, "main.go")
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "cGFja2FnZSBtYWlu", parts[1].InlineData.Data)
	assert.Contains(t, parts[2].Text, "vendor.zip")
	assert.Nil(t, parts[2].InlineData, "binary content must not be inlined")
	assert.Equal(t, "review this", parts[3].Text)
}

func TestBuildMessagePartsSquadPreamble(t *testing.T) {
	files := []Attachment{{Name: "go.mod", Data: "bW9kdWxl"}}
	parts := BuildMessageParts("build it", files, persona.ModeSquad)
	assert.Contains(t, parts[0].Text, "Go")
	assert.Contains(t, parts[0].Text, "project context")
}

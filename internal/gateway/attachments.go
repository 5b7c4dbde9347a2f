package gateway

import (
	"fmt"
	"path/filepath"
	"strings"

	"codesquad/internal/persona"
)

// binaryExtensions lists archive and binary suffixes whose content is
// never embedded as inline data; only the filename is reported.
var binaryExtensions = []string{
	".dll", ".zip", ".rar", ".7z", ".tar.gz", ".tgz", ".gz", ".tar",
}

// IsBinaryAttachment reports whether a filename carries a binary suffix.
func IsBinaryAttachment(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range binaryExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// mimeByExtension is the fallback table for attachments uploaded without
// a MIME type.
var mimeByExtension = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".yaml": "text/yaml",
	".yml":  "text/yaml",
	".html": "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".ts":   "text/typescript",
	".go":   "text/x-go",
	".py":   "text/x-python",
	".java": "text/x-java",
	".rb":   "text/x-ruby",
	".rs":   "text/x-rust",
	".c":    "text/x-c",
	".cpp":  "text/x-c++",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
}

// MIMETypeFor resolves an attachment MIME type, falling back by extension.
func MIMETypeFor(a Attachment) string {
	if a.MIMEType != "" {
		return a.MIMEType
	}
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(a.Name))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// DetectProjectType guesses the project kind from well-known manifest
// filenames among the attachments.
func DetectProjectType(files []Attachment) string {
	for _, f := range files {
		switch strings.ToLower(filepath.Base(f.Name)) {
		case "package.json":
			return "Node.js"
		case "requirements.txt", "pyproject.toml":
			return "Python"
		case "pom.xml", "build.gradle":
			return "Java"
		case "gemfile":
			return "Ruby"
		case "go.mod":
			return "Go"
		case "cargo.toml":
			return "Rust"
		}
	}
	return "Unknown"
}

// BuildMessageParts assembles the parts for one user message: a preamble
// naming the attachments, inline data for readable files, and the message
// text last. Squad mode gets a project-context preamble with the detected
// project type.
func BuildMessageParts(text string, files []Attachment, mode persona.Mode) []GeminiPart {
	if len(files) == 0 {
		return []GeminiPart{{Text: text}}
	}

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}

	var preamble string
	if mode == persona.ModeSquad {
		preamble = fmt.Sprintf(
			"Here is the project context. Project type: %s. Files: %s.\n"+
				"Use this context for all delegated tasks.",
			DetectProjectType(files), strings.Join(names, ", "))
	} else {
		preamble = fmt.Sprintf("I have attached the following files for context: %s.",
			strings.Join(names, ", "))
	}

	parts := []GeminiPart{{Text: preamble}}
	for _, f := range files {
		if IsBinaryAttachment(f.Name) {
			parts = append(parts, GeminiPart{
				Text: fmt.Sprintf("[Attached binary file: %s (content not included)]", f.Name),
			})
			continue
		}
		parts = append(parts, GeminiPart{
			InlineData: &GeminiInlineData{
				MimeType: MIMETypeFor(f),
				Data:     f.Data,
			},
		})
	}
	parts = append(parts, GeminiPart{Text: text})
	return parts
}

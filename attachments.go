package allure

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-allure/metrics"
	"github.com/ethereum-optimism/infra/op-allure/types"
	"github.com/ethereum-optimism/infra/op-allure/writer"
)

const (
	MediaTypePNG = "image/png"

	screenDiffTestType = "screenshotDiff"
)

// preferredExtensions wins over the system mime tables, which list several
// extensions for common types in no useful order
var preferredExtensions = map[string]string{
	"text/plain":       ".txt",
	"text/html":        ".html",
	"text/csv":         ".csv",
	"text/xml":         ".xml",
	"text/uri-list":    ".uri",
	"application/json": ".json",
	"application/xml":  ".xml",
	"application/zip":  ".zip",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/gif":        ".gif",
	"image/svg+xml":    ".svg",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
}

// AddAttachment writes content as a binary artifact and attaches it to the
// innermost step, test or fixture of the flow. An empty mediaType is sniffed
// from the content; an empty extension is derived from the media type.
func (l *Lifecycle) AddAttachment(ctx context.Context, name string, mediaType string, content []byte, extension string) error {
	c := l.flows.Current(ctx)
	parent, err := c.CurrentStepContainer()
	if err != nil {
		return err
	}
	if err := l.checkOwnerTracked(c); err != nil {
		return err
	}

	mediaType = normalizeMediaType(mediaType, content)
	source := uuid.New().String() + writer.AttachmentSuffix + attachmentExtension(extension, mediaType)

	err = l.traceWrite(ctx, "write attachment", source, func() error {
		if err := l.writer.WriteBinary(source, content); err != nil {
			metrics.RecordErrorDetails("attachment", err)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.mutate(func() {
		parent.Attachments = append(parent.Attachments, types.Attachment{
			Name:   name,
			Type:   mediaType,
			Source: source,
		})
	})
	metrics.RecordAttachment(len(content))
	l.log.Debug("Added attachment", "name", name, "type", mediaType, "source", source, "size", len(content))
	return nil
}

// AddAttachmentFile attaches the content of the file at path. The media type
// is taken from the file extension, falling back to sniffing the content.
func (l *Lifecycle) AddAttachmentFile(ctx context.Context, name string, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	extension := filepath.Ext(path)
	return l.AddAttachment(ctx, name, mime.TypeByExtension(extension), content, extension)
}

// AddScreenDiff attaches expected, actual and diff images and marks the
// current test so that the report renders them as a screenshot comparison
func (l *Lifecycle) AddScreenDiff(ctx context.Context, expected, actual, diff []byte) error {
	if _, err := l.currentTest(ctx); err != nil {
		return err
	}
	images := []struct {
		name    string
		content []byte
	}{
		{"expected", expected},
		{"actual", actual},
		{"diff", diff},
	}
	for _, image := range images {
		if err := l.AddAttachment(ctx, image.name, MediaTypePNG, image.content, ".png"); err != nil {
			return err
		}
	}
	return l.UpdateTestCase(ctx, func(t *types.TestResult) {
		t.AddLabel(types.LabelTestType, screenDiffTestType)
	})
}

// normalizeMediaType drops media type parameters, sniffing the type when none is given
func normalizeMediaType(mediaType string, content []byte) string {
	if mediaType == "" {
		mediaType = http.DetectContentType(content)
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		return parsed
	}
	return mediaType
}

// attachmentExtension returns the extension with a leading dot, or an empty
// string when neither the caller nor the media type provide one
func attachmentExtension(extension string, mediaType string) string {
	if extension != "" {
		if !strings.HasPrefix(extension, ".") {
			extension = "." + extension
		}
		return extension
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

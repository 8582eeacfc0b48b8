package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/gitnotes/internal/notes"
)

const maxResourceSize = 10 << 20

// resourceType is one upload format notes may embed.
type resourceType struct {
	mime  string
	exts  []string
	looks func(data []byte) bool
}

var resourceTypes = []resourceType{
	{mime: "image/png", exts: []string{".png"}, looks: sniffed("image/png")},
	{mime: "image/jpeg", exts: []string{".jpg", ".jpeg"}, looks: sniffed("image/jpeg")},
	{mime: "image/gif", exts: []string{".gif"}, looks: sniffed("image/gif")},
	{mime: "image/webp", exts: []string{".webp"}, looks: sniffed("image/webp")},
	{mime: "image/svg+xml", exts: []string{".svg"}, looks: looksLikeSVG},
	{mime: "application/pdf", exts: []string{".pdf"}, looks: sniffed("application/pdf")},
}

func sniffed(mime string) func([]byte) bool {
	return func(data []byte) bool {
		got, _, _ := strings.Cut(http.DetectContentType(data), ";")
		return got == mime
	}
}

func looksLikeSVG(data []byte) bool {
	head := data[:min(len(data), 1024)]
	return strings.Contains(string(head), "<svg")
}

func typeByExt(ext string) (resourceType, bool) {
	ext = strings.ToLower(ext)
	for _, t := range resourceTypes {
		for _, e := range t.exts {
			if e == ext {
				return t, true
			}
		}
	}
	return resourceType{}, false
}

// extForMIME is the preferred extension for a media type, or "".
func extForMIME(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	for _, t := range resourceTypes {
		if t.mime == strings.TrimSpace(mime) {
			return t.exts[0]
		}
	}
	return ""
}

func acceptedExts() string {
	var out []string
	for _, t := range resourceTypes {
		out = append(out, t.exts...)
	}
	return strings.Join(out, " ")
}

type uploadResult struct {
	SavedPath     string `json:"savedPath"`
	MarkdownImage string `json:"markdownImage"`
}

func (s *Server) uploadResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, mime, err := loadSource(ctx, source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := req.GetString("filename", "")
	if name == "" {
		name = filenameFromURL(source, extForMIME(mime))
	}
	name = sanitizeFilename(name)

	typ, ok := typeByExt(path.Ext(name))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s: unsupported extension, accepted: %s", name, acceptedExts())), nil
	}
	if !typ.looks(data) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: content is not %s", name, typ.mime)), nil
	}

	if _, err := s.svc.ResourcePath(name); err == nil {
		return mcp.NewToolResultError(fmt.Sprintf("resource %s already exists", name)), nil
	}
	if err := s.svc.AddResourceData(ctx, name, data); err != nil {
		return toolError(err), nil
	}

	saved := path.Join(notes.ResourcesDir, name)
	return jsonResult(uploadResult{
		SavedPath:     saved,
		MarkdownImage: fmt.Sprintf("![%s](../%s)", name, saved),
	})
}

// loadSource returns the bytes behind a data URI or an http(s) URL together
// with the media type the source declared.
func loadSource(ctx context.Context, source string) ([]byte, string, error) {
	if rest, ok := strings.CutPrefix(source, "data:"); ok {
		return parseDataURI(rest)
	}

	u, err := url.Parse(source)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme %q, use http, https or data", u.Scheme)
	}
	return download(ctx, u.String())
}

// parseDataURI decodes the part of a data URI after "data:". Only base64
// payloads of an accepted media type are taken.
func parseDataURI(rest string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("data uri without payload")
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", errors.New("data uri must be base64 encoded")
	}
	if extForMIME(mime) == "" {
		return nil, "", fmt.Errorf("unsupported media type %q", mime)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("decode data uri: %w", err)
		}
	}
	return data, mime, nil
}

// downloadClient refuses to connect to loopback, link-local and unspecified
// addresses. The check runs on the address actually dialed, so redirects and
// DNS answers cannot reach them either.
var downloadClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{Timeout: 10 * time.Second, Control: refuseInternal}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	CheckRedirect: func(_ *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return errors.New("stopped after 5 redirects")
		}
		return nil
	},
}

func refuseInternal(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("refusing to fetch from internal address %s", host)
	}
	return nil
}

func download(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url: %w", err)
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if len(data) > maxResourceSize {
		return nil, "", fmt.Errorf("download: larger than %d bytes", maxResourceSize)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// filenameFromURL uses the last path segment of an http(s) URL when it has
// an extension. Otherwise the name is a random UUID with ext, or ".bin".
func filenameFromURL(source, ext string) string {
	if !strings.HasPrefix(source, "data:") {
		if u, err := url.Parse(source); err == nil {
			if base := path.Base(u.Path); path.Ext(base) != "" {
				return base
			}
		}
	}
	if ext == "" {
		ext = ".bin"
	}
	return uuid.NewString() + ext
}

// sanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
	if strings.Trim(name, ".") == "" {
		return uuid.NewString()
	}
	return name
}

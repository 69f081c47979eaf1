package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxImageSize = 10 << 20 // 10 MB

// sniffable lists the declared MIME types whose content can be checked
// against http.DetectContentType.
var sniffable = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

func (s *Server) getProblemImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("problem_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mime, data, err := s.svc.Image(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	if len(data) > maxImageSize {
		return mcp.NewToolResultError(fmt.Sprintf("image too large: exceeds %d bytes", maxImageSize)), nil
	}
	if err := validateMagicBytes(data, mime); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultImage(
		fmt.Sprintf("Problem %d (%s, %d bytes)", id, mime, len(data)),
		base64.StdEncoding.EncodeToString(data),
		mime,
	), nil
}

// validateMagicBytes verifies the payload matches its declared MIME type.
func validateMagicBytes(data []byte, mime string) error {
	if mime == "image/svg+xml" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !strings.Contains(string(prefix), "<svg") {
			return fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}
	if !sniffable[mime] {
		return nil
	}
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	if detected != mime {
		return fmt.Errorf("content type mismatch: declared %s, detected %s", mime, detected)
	}
	return nil
}

package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// sanitizeBase normalizes a mount path: ensures a single leading '/',
// strips trailing slashes, and maps "" or "/" to "".
func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func writeJSON(c *gin.Context, code int, v any) {
	c.JSON(code, v)
}

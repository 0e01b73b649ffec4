package validation

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("safe_url", validateSafeURL)
}

// ValidateBaseURL checks that a mirror base URL is a safe, absolute
// HTTP(S) URL that does not point at a private or loopback address.
func ValidateBaseURL(baseURL string) error {
	if err := validate.Var(baseURL, "required,safe_url"); err != nil {
		return fmt.Errorf("invalid mirror URL %q: %w", baseURL, err)
	}
	return nil
}

// ValidateDestination checks that a task destination stays inside the
// download directory: it must be a relative path with no traversal.
func ValidateDestination(dest string) error {
	if dest == "" {
		return fmt.Errorf("destination cannot be empty")
	}
	if filepath.IsAbs(dest) {
		return fmt.Errorf("destination %q must be relative", dest)
	}
	clean := filepath.Clean(dest)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("destination %q escapes the download directory", dest)
	}
	return nil
}

func validateSafeURL(fl validator.FieldLevel) bool {
	urlStr := fl.Field().String()

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.Host == "" {
		return false
	}

	host := u.Hostname()

	forbiddenHosts := []string{
		"localhost",
		"127.0.0.1",
		"::1",
		"0.0.0.0",
		"169.254.169.254",
	}

	for _, forbidden := range forbiddenHosts {
		if strings.EqualFold(host, forbidden) {
			return false
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() {
			return false
		}
	}

	return true
}

package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserCommand returns the command that opens url in the default browser on goos.
func BrowserCommand(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	default:
		return "", nil, fmt.Errorf("%w: no browser launcher for %s", ErrNotImplemented, goos)
	}
}

// OpenBrowser opens url in the default browser without waiting for it to exit.
func OpenBrowser(url string) error {
	name, args, err := BrowserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

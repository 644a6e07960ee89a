package util

import "os/exec"

// ResolveTool returns the path to an external helper binary such as
// ffprobe or yt-dlp. If customPath is set, it validates that the path
// exists and is executable. Otherwise it searches the system PATH.
// Returns an empty string if the tool is not found.
func ResolveTool(name, customPath string) string {
	if customPath != "" {
		if _, err := exec.LookPath(customPath); err == nil {
			return customPath
		}
		return ""
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}

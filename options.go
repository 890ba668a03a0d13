package portfs

import "strings"

// ParsePathOption extracts the path=<absolute-path> option (§6) out of a
// comma-separated mount option string, the same shape FUSE mount helpers
// accept on their -o flag. Every other option is ignored: PortFS has no
// other mount-time tunables.
func ParsePathOption(opts string) (string, error) {
	for _, field := range strings.Split(opts, ",") {
		field = strings.TrimSpace(field)
		if strings.HasPrefix(field, "path=") {
			path := strings.TrimPrefix(field, "path=")
			if path == "" {
				return "", newErr("ParsePathOption", EInvalid)
			}
			return path, nil
		}
	}
	return "", newErr("ParsePathOption", EInvalid)
}
